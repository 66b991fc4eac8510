// Package memstore is an in-process Store used by the memory driver and by tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
)

// Store keeps everything in maps behind one mutex; every method is atomic
type Store struct {
	mu        sync.Mutex
	posts     map[string]*models.Post
	schedules map[string]*models.ScheduledPost
	bookmarks map[string]map[string]time.Time
	profiles  map[string]*models.UserProfile

	clock func() time.Time
	last  time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock used as server time
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		posts:     make(map[string]*models.Post),
		schedules: make(map[string]*models.ScheduledPost),
		bookmarks: make(map[string]map[string]time.Time),
		profiles:  make(map[string]*models.UserProfile),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock
func (s *Store) Now(_ context.Context) (time.Time, error) {
	return s.clock().UTC(), nil
}

// tick returns a write timestamp strictly after the previous one. Caller holds mu.
func (s *Store) tick() time.Time {
	t := s.clock().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) post(op, id string) (*models.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return nil, models.NotFound(op, "post "+id)
	}
	return p, nil
}

func (s *Store) CreatePost(_ context.Context, post *models.Post, sched *models.ScheduledPost) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := post.Clone()
	p.ID = uuid.NewString()
	p.CreatedAt = s.tick()
	p.LikeCount = len(p.Likes)
	s.posts[p.ID] = p

	if sched != nil {
		rec := *sched
		rec.ID = uuid.NewString()
		rec.PostID = p.ID
		rec.Status = models.SchedulePending
		s.schedules[rec.ID] = &rec
	}

	post.ID, post.CreatedAt = p.ID, p.CreatedAt
	return p.ID, nil
}

func (s *Store) GetPost(_ context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.post("memstore.GetPost", id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (s *Store) ListPosts(_ context.Context, q store.Query) ([]*models.Post, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Post
	for _, p := range s.posts {
		if q.Matches(p) && store.AfterCursor(q.Order, p, q.After) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return store.Before(q.Order, matched[i], matched[j])
	})
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*models.Post, len(matched))
	for i, p := range matched {
		out[i] = p.Clone()
	}
	return out, nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.post("memstore.DeletePost", id); err != nil {
		return err
	}
	delete(s.posts, id)
	return nil
}

func (s *Store) EditPost(_ context.Context, id, content string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.post("memstore.EditPost", id)
	if err != nil {
		return nil, err
	}
	now := s.tick()
	p.Content = content
	p.EditedAt = &now
	return p.Clone(), nil
}

func (s *Store) AddLike(_ context.Context, postID, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.post("memstore.AddLike", postID)
	if err != nil {
		return false, err
	}
	return p.AddLike(uid), nil
}

func (s *Store) RemoveLike(_ context.Context, postID, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.post("memstore.RemoveLike", postID)
	if err != nil {
		return false, err
	}
	return p.RemoveLike(uid), nil
}

func (s *Store) AppendComment(_ context.Context, postID string, c models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.post("memstore.AppendComment", postID)
	if err != nil {
		return err
	}
	c.CreatedAt = s.tick()
	return p.AppendComment(c)
}

func (s *Store) RecordVote(_ context.Context, postID string, idx int, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.post("memstore.RecordVote", postID)
	if err != nil {
		return false, err
	}
	return p.Vote(idx, uid)
}

func (s *Store) IncrementShares(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.post("memstore.IncrementShares", postID)
	if err != nil {
		return err
	}
	p.Shares++
	return nil
}

func (s *Store) PromoteDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.ScheduledPost
	for _, rec := range s.schedules {
		if rec.Status == models.SchedulePending && !rec.ScheduledDate.After(now) {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledDate.Equal(due[j].ScheduledDate) {
			return due[i].ScheduledDate.Before(due[j].ScheduledDate)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	ids := make([]string, 0, len(due))
	for _, rec := range due {
		rec.Status = models.ScheduleCompleted
		// the post may have been deleted while it waited
		if p, ok := s.posts[rec.PostID]; ok {
			p.Status = models.StatusPublished
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// Schedules returns a copy of every schedule record
func (s *Store) Schedules() []models.ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScheduledPost, 0, len(s.schedules))
	for _, rec := range s.schedules {
		out = append(out, *rec)
	}
	return out
}

func (s *Store) AddBookmark(_ context.Context, uid, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.bookmarks[uid]
	if !ok {
		set = make(map[string]time.Time)
		s.bookmarks[uid] = set
	}
	if _, exists := set[postID]; exists {
		return false, nil
	}
	set[postID] = s.tick()
	return true, nil
}

func (s *Store) RemoveBookmark(_ context.Context, uid, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookmarks[uid][postID]; !exists {
		return false, nil
	}
	delete(s.bookmarks[uid], postID)
	return true, nil
}

func (s *Store) ListBookmarks(_ context.Context, uid string) ([]models.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Bookmark, 0, len(s.bookmarks[uid]))
	for postID, at := range s.bookmarks[uid] {
		out = append(out, models.Bookmark{UserID: uid, PostID: postID, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, uid string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return nil, models.NotFound("memstore.GetProfile", "profile "+uid)
	}
	return cloneProfile(p), nil
}

func (s *Store) SaveProfile(_ context.Context, p *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneProfile(p)
	if cur, ok := s.profiles[p.UID]; ok {
		next.Followers, next.Following = cur.Followers, cur.Following
	} else {
		next.Followers, next.Following = []string{}, []string{}
	}
	s.profiles[p.UID] = next
	return nil
}

func (s *Store) SetFollow(_ context.Context, uid, target string, follow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, ok := s.profiles[uid]
	if !ok {
		return models.NotFound("memstore.SetFollow", "profile "+uid)
	}
	them, ok := s.profiles[target]
	if !ok {
		return models.NotFound("memstore.SetFollow", "profile "+target)
	}
	if follow {
		me.Following = addUnique(me.Following, target)
		them.Followers = addUnique(them.Followers, uid)
	} else {
		me.Following = remove(me.Following, target)
		them.Followers = remove(them.Followers, uid)
	}
	return nil
}

func (s *Store) PatchAuthorPosts(_ context.Context, uid, afterID string, limit int, patch models.AuthorPatch) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, p := range s.posts {
		if p.AuthorID == uid && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		patch.Apply(s.posts[id])
	}
	return ids, nil
}

func (s *Store) Close(context.Context) error {
	return nil
}

func cloneProfile(p *models.UserProfile) *models.UserProfile {
	c := *p
	c.Followers = append([]string{}, p.Followers...)
	c.Following = append([]string{}, p.Following...)
	c.Settings = append([]byte(nil), p.Settings...)
	return &c
}

func addUnique(set []string, v string) []string {
	for _, x := range set {
		if x == v {
			return set
		}
	}
	return append(set, v)
}

func remove(set []string, v string) []string {
	out := set[:0:0]
	for _, x := range set {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
