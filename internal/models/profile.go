package models

import (
	"encoding/json"
	"time"
)

// ScheduleStatus is the state of a ScheduledPost record
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleCompleted ScheduleStatus = "completed"
)

// ScheduledPost pairs a scheduled post with its promotion time
type ScheduledPost struct {
	ID            string         `json:"id" bson:"_id"`
	PostID        string         `json:"postId" bson:"postId"`
	ScheduledDate time.Time      `json:"scheduledDate" bson:"scheduledDate"`
	Status        ScheduleStatus `json:"status" bson:"status"`
}

// Bookmark is an existence-only record keyed by (UserID, PostID)
type Bookmark struct {
	UserID    string    `json:"userId" bson:"userId"`
	PostID    string    `json:"postId" bson:"postId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// UserProfile is the profile record the feed and fan-out read from
type UserProfile struct {
	UID         string          `json:"uid" bson:"_id"`
	DisplayName string          `json:"displayName" bson:"displayName"`
	PhotoURL    string          `json:"photoURL" bson:"photoURL"`
	CoverPhoto  string          `json:"coverPhoto" bson:"coverPhoto"`
	Bio         string          `json:"bio" bson:"bio"`
	Location    string          `json:"location" bson:"location"`
	Occupation  string          `json:"occupation" bson:"occupation"`
	Website     string          `json:"website" bson:"website"`
	Followers   []string        `json:"followers" bson:"followers"`
	Following   []string        `json:"following" bson:"following"`
	Settings    json.RawMessage `json:"settings,omitempty" bson:"-"`
}

// Author is the denormalized identity stamped on posts and comments
type Author struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// Author returns the profile's current identity snapshot
func (p *UserProfile) Author() Author {
	return Author{UID: p.UID, Name: p.DisplayName, PhotoURL: p.PhotoURL}
}

// AuthorPatch carries the denormalized author fields a fan-out rewrites. Nil fields are left alone.
type AuthorPatch struct {
	Name     *string `json:"name,omitempty"`
	PhotoURL *string `json:"photoURL,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p AuthorPatch) Empty() bool {
	return p.Name == nil && p.PhotoURL == nil
}

// Apply writes the patch onto a post
func (p AuthorPatch) Apply(post *Post) {
	if p.Name != nil {
		post.AuthorName = *p.Name
	}
	if p.PhotoURL != nil {
		post.AuthorPhotoURL = *p.PhotoURL
	}
}

// Follows reports whether the profile follows uid
func (p *UserProfile) Follows(uid string) bool {
	for _, f := range p.Following {
		if f == uid {
			return true
		}
	}
	return false
}

// ProfilePatch is a partial profile edit. Nil fields are left alone.
type ProfilePatch struct {
	DisplayName *string         `json:"displayName,omitempty" validate:"omitempty,notblank,max=50"`
	PhotoURL    *string         `json:"photoURL,omitempty" validate:"omitempty,url"`
	CoverPhoto  *string         `json:"coverPhoto,omitempty" validate:"omitempty,url"`
	Bio         *string         `json:"bio,omitempty" validate:"omitempty,max=500"`
	Location    *string         `json:"location,omitempty" validate:"omitempty,max=100"`
	Occupation  *string         `json:"occupation,omitempty" validate:"omitempty,max=100"`
	Website     *string         `json:"website,omitempty" validate:"omitempty,url"`
	Settings    json.RawMessage `json:"settings,omitempty"`
}

// Check validates the patch fields that are set
func (p ProfilePatch) Check() error {
	return checkStruct("models.ProfilePatch", p)
}

// Apply writes the patch onto prof and returns the denormalized author fields that changed
func (p ProfilePatch) Apply(prof *UserProfile) AuthorPatch {
	var changed AuthorPatch
	if p.DisplayName != nil && *p.DisplayName != prof.DisplayName {
		prof.DisplayName = *p.DisplayName
		changed.Name = p.DisplayName
	}
	if p.PhotoURL != nil && *p.PhotoURL != prof.PhotoURL {
		prof.PhotoURL = *p.PhotoURL
		changed.PhotoURL = p.PhotoURL
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&prof.CoverPhoto, p.CoverPhoto)
	set(&prof.Bio, p.Bio)
	set(&prof.Location, p.Location)
	set(&prof.Occupation, p.Occupation)
	set(&prof.Website, p.Website)
	if p.Settings != nil {
		prof.Settings = p.Settings
	}
	return changed
}
