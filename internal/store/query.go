package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/murmurhq/murmur/internal/models"
)

// Order is a feed sort order. Ties are broken by post ID, descending.
type Order string

const (
	// OrderRecent sorts by created_at desc, id desc
	OrderRecent Order = "recent"
	// OrderTrending sorts by like_count desc, id desc
	OrderTrending Order = "trending"
)

// Query selects a page of posts
type Query struct {
	Order Order
	// Authors restricts to these author IDs when non-nil
	Authors []string
	// Status restricts to one status when set
	Status models.Status
	After  *Cursor
	Limit  int
}

// Cursor is the sort key of the last record of the previous page
type Cursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"c"`
	LikeCount int       `json:"l"`
}

// CursorOf returns the cursor positioned at p
func CursorOf(p *models.Post) *Cursor {
	return &Cursor{ID: p.ID, CreatedAt: p.CreatedAt, LikeCount: p.LikeCount}
}

// Encode returns the opaque form handed to clients
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses an opaque cursor. An empty string yields nil.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, models.Validation("store.DecodeCursor", "malformed cursor")
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		return nil, models.Validation("store.DecodeCursor", "malformed cursor")
	}
	return &c, nil
}

// Before reports whether a sorts strictly before b under order
func Before(order Order, a, b *models.Post) bool {
	return beforeKey(order, a.ID, a.CreatedAt, a.LikeCount, b.ID, b.CreatedAt, b.LikeCount)
}

// AfterCursor reports whether p sorts strictly after the cursor under order
func AfterCursor(order Order, p *models.Post, c *Cursor) bool {
	if c == nil {
		return true
	}
	return beforeKey(order, c.ID, c.CreatedAt, c.LikeCount, p.ID, p.CreatedAt, p.LikeCount)
}

func beforeKey(order Order, aID string, aCreated time.Time, aLikes int, bID string, bCreated time.Time, bLikes int) bool {
	switch order {
	case OrderTrending:
		if aLikes != bLikes {
			return aLikes > bLikes
		}
	default:
		if !aCreated.Equal(bCreated) {
			return aCreated.After(bCreated)
		}
	}
	return aID > bID
}

// Matches reports whether p satisfies the query's filters, ignoring cursor and limit
func (q Query) Matches(p *models.Post) bool {
	if q.Status != "" && p.Status != q.Status {
		return false
	}
	if q.Authors != nil {
		for _, a := range q.Authors {
			if a == p.AuthorID {
				return true
			}
		}
		return false
	}
	return true
}

// Validate checks the query before it reaches a backend
func (q Query) Validate() error {
	switch q.Order {
	case OrderRecent, OrderTrending:
	default:
		return models.Validation("store.Query", "unknown order %q", q.Order)
	}
	if q.Limit <= 0 || q.Limit > MaxBatch {
		return models.Validation("store.Query", "limit must be between 1 and %d", MaxBatch)
	}
	if q.Authors != nil && len(q.Authors) == 0 {
		return models.Validation("store.Query", "empty author set")
	}
	return nil
}

func (q Query) String() string {
	return fmt.Sprintf("order=%s authors=%d status=%s after=%v limit=%d", q.Order, len(q.Authors), q.Status, q.After != nil, q.Limit)
}
