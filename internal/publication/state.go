// Package publication implements the post lifecycle and the scheduled-post promotion job.
package publication

import (
	"time"

	"github.com/murmurhq/murmur/internal/models"
)

// State is a lifecycle state. Draft lives only on the client; Completed is reached by the
// ScheduledPost record when its post is promoted.
type State string

const (
	Draft     State = "draft"
	Scheduled State = "scheduled"
	Published State = "published"
	Completed State = "completed"
)

var transitions = map[State][]State{
	Draft:     {Scheduled, Published},
	Scheduled: {Completed},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Submit decides the state a new post enters. Only a date strictly after now schedules it.
func Submit(scheduledDate *time.Time, now time.Time) State {
	if scheduledDate != nil && scheduledDate.After(now) {
		return Scheduled
	}
	return Published
}

// Prepare applies Submit to an unsaved post and returns the paired schedule record, if any
func Prepare(post *models.Post, now time.Time) *models.ScheduledPost {
	if Submit(post.ScheduledDate, now) == Scheduled {
		post.Status = models.StatusScheduled
		return &models.ScheduledPost{
			ScheduledDate: *post.ScheduledDate,
			Status:        models.SchedulePending,
		}
	}
	post.Status = models.StatusPublished
	post.ScheduledDate = nil
	return nil
}
