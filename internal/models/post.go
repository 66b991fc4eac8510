package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MediaType is the kind of attachment a post carries
type MediaType string

const (
	MediaNone  MediaType = "none"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Status is the persisted publication status of a post
type Status string

const (
	StatusPublished Status = "published"
	StatusScheduled Status = "scheduled"
)

const (
	MinPollOptions = 2
	MaxPollOptions = 4
	MaxTagLength   = 32
)

var hashtagPattern = regexp.MustCompile(`#([A-Za-z0-9_]+)`)

// Post is a user post with its engagement state embedded
type Post struct {
	ID             string       `json:"id" bson:"_id"`
	AuthorID       string       `json:"authorId" bson:"authorId"`
	AuthorName     string       `json:"authorName" bson:"authorName"`
	AuthorPhotoURL string       `json:"authorPhotoURL" bson:"authorPhotoURL"`
	Content        string       `json:"content" bson:"content"`
	MediaURL       string       `json:"mediaURL,omitempty" bson:"mediaURL,omitempty"`
	MediaType      MediaType    `json:"mediaType" bson:"mediaType"`
	CreatedAt      time.Time    `json:"createdAt" bson:"createdAt"`
	EditedAt       *time.Time   `json:"editedAt,omitempty" bson:"editedAt,omitempty"`
	Likes          []string     `json:"likes" bson:"likes"`
	LikeCount      int          `json:"likeCount" bson:"likeCount"`
	Comments       []Comment    `json:"comments" bson:"comments"`
	Shares         int          `json:"shares" bson:"shares"`
	Tags           []string     `json:"tags" bson:"tags"`
	Feeling        string       `json:"feeling,omitempty" bson:"feeling,omitempty"`
	Location       string       `json:"location,omitempty" bson:"location,omitempty"`
	PollOptions    []PollOption `json:"pollOptions,omitempty" bson:"pollOptions"`
	ScheduledDate  *time.Time   `json:"scheduledDate,omitempty" bson:"scheduledDate,omitempty"`
	Status         Status       `json:"status" bson:"status"`
}

// Comment is an immutable entry in a post's comment thread
type Comment struct {
	Content        string    `json:"content" bson:"content" validate:"notblank,max=2000"`
	AuthorID       string    `json:"authorId" bson:"authorId" validate:"required"`
	AuthorName     string    `json:"authorName" bson:"authorName"`
	AuthorPhotoURL string    `json:"authorPhotoURL" bson:"authorPhotoURL"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
}

// PollOption is one choice of a post's poll
type PollOption struct {
	Text  string   `json:"text" bson:"text"`
	Votes []string `json:"votes" bson:"votes"`
}

// PostInput is the caller-supplied shape of a new post
type PostInput struct {
	AuthorID       string     `json:"-" validate:"notblank"`
	AuthorName     string     `json:"-"`
	AuthorPhotoURL string     `json:"-"`
	Content        string     `json:"content" validate:"max=5000"`
	MediaURL       string     `json:"mediaURL" validate:"omitempty,url"`
	MediaType      MediaType  `json:"mediaType" validate:"omitempty,oneof=none image video"`
	Tags           []string   `json:"tags"`
	Feeling        string     `json:"feeling" validate:"max=64"`
	Location       string     `json:"location" validate:"max=128"`
	PollOptions    []string   `json:"pollOptions" validate:"dive,notblank,max=80"`
	ScheduledDate  *time.Time `json:"scheduledDate"`
}

// NewPost validates in and builds an unsaved post. ID, CreatedAt and Status are assigned on save.
func NewPost(in PostInput) (*Post, error) {
	const op = "models.NewPost"

	if err := checkStruct(op, in); err != nil {
		return nil, err
	}

	mediaType := in.MediaType
	if mediaType == "" {
		mediaType = MediaNone
	}
	mediaURL := strings.TrimSpace(in.MediaURL)
	switch {
	case mediaType != MediaNone && mediaURL == "":
		return nil, Validation(op, "media type %s requires a media url", mediaType)
	case mediaType == MediaNone && mediaURL != "":
		return nil, Validation(op, "media url requires a media type")
	}

	if strings.TrimSpace(in.Content) == "" && mediaURL == "" {
		return nil, Validation(op, "post needs content or media")
	}

	var poll []PollOption
	if n := len(in.PollOptions); n > 0 {
		if n < MinPollOptions || n > MaxPollOptions {
			return nil, Validation(op, "poll needs %d to %d options, got %d", MinPollOptions, MaxPollOptions, n)
		}
		poll = make([]PollOption, n)
		for i, text := range in.PollOptions {
			poll[i] = PollOption{Text: strings.TrimSpace(text), Votes: []string{}}
		}
	}

	var scheduled *time.Time
	if in.ScheduledDate != nil {
		t := in.ScheduledDate.UTC()
		scheduled = &t
	}

	return &Post{
		AuthorID:       in.AuthorID,
		AuthorName:     in.AuthorName,
		AuthorPhotoURL: in.AuthorPhotoURL,
		Content:        in.Content,
		MediaURL:       mediaURL,
		MediaType:      mediaType,
		Likes:          []string{},
		Comments:       []Comment{},
		Tags:           NormalizeTags(in.Tags, in.Content),
		Feeling:        strings.TrimSpace(in.Feeling),
		Location:       strings.TrimSpace(in.Location),
		PollOptions:    poll,
		ScheduledDate:  scheduled,
		Status:         StatusPublished,
	}, nil
}

// NormalizeTags lower-cases, strips '#', dedupes and merges in hashtags found in content
func NormalizeTags(tags []string, content string) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = truncateTag(strings.ToLower(strings.TrimLeft(strings.TrimSpace(tag), "#")))
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}
	for _, t := range tags {
		add(t)
	}
	for _, m := range hashtagPattern.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	return out
}

// truncateTag cuts tag to at most MaxTagLength bytes without splitting a rune
func truncateTag(tag string) string {
	if len(tag) <= MaxTagLength {
		return tag
	}
	end := 0
	for i, r := range tag {
		next := i + utf8.RuneLen(r)
		if next > MaxTagLength {
			break
		}
		end = next
	}
	return tag[:end]
}

// CheckEdit validates replacement content for an existing post
func (p *Post) CheckEdit(content string) error {
	if strings.TrimSpace(content) == "" && p.MediaURL == "" {
		return Validation("models.CheckEdit", "post needs content or media")
	}
	if len(content) > 5000 {
		return Validation("models.CheckEdit", "content exceeds 5000 characters")
	}
	return nil
}

// LikedBy reports whether uid is in the like set
func (p *Post) LikedBy(uid string) bool {
	for _, id := range p.Likes {
		if id == uid {
			return true
		}
	}
	return false
}

// AddLike adds uid to the like set; false if it was already there
func (p *Post) AddLike(uid string) bool {
	if p.LikedBy(uid) {
		return false
	}
	p.Likes = append(p.Likes, uid)
	p.LikeCount = len(p.Likes)
	return true
}

// RemoveLike removes uid from the like set; false if it was absent
func (p *Post) RemoveLike(uid string) bool {
	for i, id := range p.Likes {
		if id == uid {
			p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
			p.LikeCount = len(p.Likes)
			return true
		}
	}
	return false
}

// ToggleLike flips uid's membership in the like set and returns the new membership
func (p *Post) ToggleLike(uid string) bool {
	if p.RemoveLike(uid) {
		return false
	}
	p.AddLike(uid)
	return true
}

// HasVoted reports whether uid voted on any option of the poll
func (p *Post) HasVoted(uid string) bool {
	for _, opt := range p.PollOptions {
		for _, v := range opt.Votes {
			if v == uid {
				return true
			}
		}
	}
	return false
}

// Vote records uid's vote on option idx. A second vote by the same user is a no-op.
func (p *Post) Vote(idx int, uid string) (bool, error) {
	if err := p.CheckVote(idx); err != nil {
		return false, err
	}
	if p.HasVoted(uid) {
		return false, nil
	}
	p.PollOptions[idx].Votes = append(p.PollOptions[idx].Votes, uid)
	return true, nil
}

// CheckVote validates an option index against the poll
func (p *Post) CheckVote(idx int) error {
	if len(p.PollOptions) == 0 {
		return Validation("models.Vote", "post %s has no poll", p.ID)
	}
	if idx < 0 || idx >= len(p.PollOptions) {
		return Validation("models.Vote", "option %d out of range", idx)
	}
	return nil
}

// AppendComment validates c and appends it to the thread
func (p *Post) AppendComment(c Comment) error {
	if err := CheckComment(c); err != nil {
		return err
	}
	p.Comments = append(p.Comments, c)
	return nil
}

// CheckComment validates a comment before it is stored
func CheckComment(c Comment) error {
	return checkStruct("models.AppendComment", c)
}

// Clone returns a deep copy of the post
func (p *Post) Clone() *Post {
	c := *p
	c.Likes = append([]string{}, p.Likes...)
	c.Comments = append([]Comment{}, p.Comments...)
	c.Tags = append([]string{}, p.Tags...)
	if p.PollOptions != nil {
		c.PollOptions = make([]PollOption, len(p.PollOptions))
		for i, opt := range p.PollOptions {
			c.PollOptions[i] = PollOption{Text: opt.Text, Votes: append([]string{}, opt.Votes...)}
		}
	}
	if p.EditedAt != nil {
		t := *p.EditedAt
		c.EditedAt = &t
	}
	if p.ScheduledDate != nil {
		t := *p.ScheduledDate
		c.ScheduledDate = &t
	}
	return &c
}
