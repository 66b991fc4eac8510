package db

import (
	"time"

	"github.com/murmurhq/murmur/internal/models"
)

// postRow is the posts table. Likes, comments and poll state live in child tables.
type postRow struct {
	ID             string     `gorm:"type:varchar(36);primaryKey;column:id"`
	AuthorID       string     `gorm:"type:varchar(128);not null;index:idx_posts_author_id,priority:1;column:author_id"`
	AuthorName     string     `gorm:"type:varchar(128);column:author_name"`
	AuthorPhotoURL string     `gorm:"type:text;column:author_photo_url"`
	Content        string     `gorm:"type:text;column:content"`
	MediaURL       string     `gorm:"type:text;column:media_url"`
	MediaType      string     `gorm:"type:varchar(8);not null;default:none;column:media_type"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_posts_recent,priority:1,sort:desc;column:created_at"`
	EditedAt       *time.Time `gorm:"column:edited_at"`
	LikeCount      int        `gorm:"not null;default:0;index:idx_posts_trending,priority:1,sort:desc;column:like_count"`
	Shares         int        `gorm:"not null;default:0;column:shares"`
	Tags           []string   `gorm:"type:jsonb;serializer:json;column:tags"`
	Feeling        string     `gorm:"type:varchar(64);column:feeling"`
	Location       string     `gorm:"type:varchar(128);column:location"`
	ScheduledDate  *time.Time `gorm:"column:scheduled_date"`
	Status         string     `gorm:"type:varchar(16);not null;index;column:status"`
}

// TableName specifies the table name for postRow
func (postRow) TableName() string {
	return "posts"
}

type likeRow struct {
	PostID    string    `gorm:"type:varchar(36);primaryKey;column:post_id"`
	UserID    string    `gorm:"type:varchar(128);primaryKey;column:user_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

func (likeRow) TableName() string {
	return "post_likes"
}

type commentRow struct {
	ID             int64     `gorm:"primaryKey;autoIncrement;column:id"`
	PostID         string    `gorm:"type:varchar(36);not null;index;column:post_id"`
	Content        string    `gorm:"type:text;not null;column:content"`
	AuthorID       string    `gorm:"type:varchar(128);not null;column:author_id"`
	AuthorName     string    `gorm:"type:varchar(128);column:author_name"`
	AuthorPhotoURL string    `gorm:"type:text;column:author_photo_url"`
	CreatedAt      time.Time `gorm:"not null;column:created_at"`
}

func (commentRow) TableName() string {
	return "post_comments"
}

type pollOptionRow struct {
	PostID string `gorm:"type:varchar(36);primaryKey;column:post_id"`
	Idx    int    `gorm:"primaryKey;autoIncrement:false;column:idx"`
	Text   string `gorm:"type:varchar(80);not null;column:text"`
}

func (pollOptionRow) TableName() string {
	return "poll_options"
}

// pollVoteRow's primary key allows one vote per user per post, whatever the option
type pollVoteRow struct {
	PostID string `gorm:"type:varchar(36);primaryKey;column:post_id"`
	UserID string `gorm:"type:varchar(128);primaryKey;column:user_id"`
	Idx    int    `gorm:"not null;column:idx"`
}

func (pollVoteRow) TableName() string {
	return "poll_votes"
}

type scheduleRow struct {
	ID            string    `gorm:"type:varchar(36);primaryKey;column:id"`
	PostID        string    `gorm:"type:varchar(36);not null;index;column:post_id"`
	ScheduledDate time.Time `gorm:"not null;index:idx_schedules_due,priority:2;column:scheduled_date"`
	Status        string    `gorm:"type:varchar(16);not null;index:idx_schedules_due,priority:1;column:status"`
}

func (scheduleRow) TableName() string {
	return "scheduled_posts"
}

type bookmarkRow struct {
	UserID    string    `gorm:"type:varchar(128);primaryKey;column:user_id"`
	PostID    string    `gorm:"type:varchar(36);primaryKey;column:post_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

func (bookmarkRow) TableName() string {
	return "bookmarks"
}

type profileRow struct {
	UID         string `gorm:"type:varchar(128);primaryKey;column:uid"`
	DisplayName string `gorm:"type:varchar(128);column:display_name"`
	PhotoURL    string `gorm:"type:text;column:photo_url"`
	CoverPhoto  string `gorm:"type:text;column:cover_photo"`
	Bio         string `gorm:"type:text;column:bio"`
	Location    string `gorm:"type:varchar(128);column:location"`
	Occupation  string `gorm:"type:varchar(128);column:occupation"`
	Website     string `gorm:"type:text;column:website"`
	Settings    string `gorm:"type:jsonb;column:settings"`
}

func (profileRow) TableName() string {
	return "profiles"
}

type followRow struct {
	FollowerID string `gorm:"type:varchar(128);primaryKey;column:follower_id"`
	FolloweeID string `gorm:"type:varchar(128);primaryKey;index;column:followee_id"`
}

func (followRow) TableName() string {
	return "follows"
}

// tables lists every row type in migration order
var tables = []interface{}{
	&postRow{},
	&likeRow{},
	&commentRow{},
	&pollOptionRow{},
	&pollVoteRow{},
	&scheduleRow{},
	&bookmarkRow{},
	&profileRow{},
	&followRow{},
}

func newPostRow(p *models.Post) *postRow {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return &postRow{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		AuthorName:     p.AuthorName,
		AuthorPhotoURL: p.AuthorPhotoURL,
		Content:        p.Content,
		MediaURL:       p.MediaURL,
		MediaType:      string(p.MediaType),
		CreatedAt:      p.CreatedAt,
		EditedAt:       p.EditedAt,
		LikeCount:      len(p.Likes),
		Shares:         p.Shares,
		Tags:           tags,
		Feeling:        p.Feeling,
		Location:       p.Location,
		ScheduledDate:  p.ScheduledDate,
		Status:         string(p.Status),
	}
}

func (r *postRow) toModel() *models.Post {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.Post{
		ID:             r.ID,
		AuthorID:       r.AuthorID,
		AuthorName:     r.AuthorName,
		AuthorPhotoURL: r.AuthorPhotoURL,
		Content:        r.Content,
		MediaURL:       r.MediaURL,
		MediaType:      models.MediaType(r.MediaType),
		CreatedAt:      r.CreatedAt.UTC(),
		EditedAt:       r.EditedAt,
		Likes:          []string{},
		LikeCount:      r.LikeCount,
		Comments:       []models.Comment{},
		Shares:         r.Shares,
		Tags:           tags,
		Feeling:        r.Feeling,
		Location:       r.Location,
		ScheduledDate:  r.ScheduledDate,
		Status:         models.Status(r.Status),
	}
}

func (r *commentRow) toModel() models.Comment {
	return models.Comment{
		Content:        r.Content,
		AuthorID:       r.AuthorID,
		AuthorName:     r.AuthorName,
		AuthorPhotoURL: r.AuthorPhotoURL,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func newProfileRow(p *models.UserProfile) *profileRow {
	settings := string(p.Settings)
	if settings == "" {
		settings = "{}"
	}
	return &profileRow{
		UID:         p.UID,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		CoverPhoto:  p.CoverPhoto,
		Bio:         p.Bio,
		Location:    p.Location,
		Occupation:  p.Occupation,
		Website:     p.Website,
		Settings:    settings,
	}
}

func (r *profileRow) toModel() *models.UserProfile {
	p := &models.UserProfile{
		UID:         r.UID,
		DisplayName: r.DisplayName,
		PhotoURL:    r.PhotoURL,
		CoverPhoto:  r.CoverPhoto,
		Bio:         r.Bio,
		Location:    r.Location,
		Occupation:  r.Occupation,
		Website:     r.Website,
		Followers:   []string{},
		Following:   []string{},
	}
	if r.Settings != "" && r.Settings != "{}" {
		p.Settings = []byte(r.Settings)
	}
	return p
}
