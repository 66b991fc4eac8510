package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/changefeed"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/pkg/logging"
	"github.com/murmurhq/murmur/pkg/telemetry"
)

// Lister runs feed queries
type Lister interface {
	ListPosts(ctx context.Context, q store.Query) ([]*models.Post, error)
}

// Service builds feeds: stateless pages for RPC callers and live sessions for socket clients
type Service struct {
	posts    Lister
	profiles Profiles
	bus      changefeed.Bus
	pageSize int
	logger   *zap.Logger
}

// NewService creates a feed service. A non-positive pageSize means DefaultPageSize.
func NewService(posts Lister, profiles Profiles, bus changefeed.Bus, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		posts:    posts,
		profiles: profiles,
		bus:      bus,
		pageSize: pageSize,
		logger:   logging.WithComponent("feed"),
	}
}

// PageSize returns the configured page size
func (s *Service) PageSize() int {
	return s.pageSize
}

// Assembler is one viewer's live feed session.
//
// The visible feed is the live first page, replaced wholesale whenever the store reports a
// change, merged with an append-only tail of further pages. Every filter switch bumps gen;
// results that come back for an older gen are dropped.
type Assembler struct {
	svc    *Service
	uid    string
	logger *zap.Logger

	mu        sync.Mutex
	filter    Filter
	viewer    Viewer
	gen       uint64
	live      []*models.Post
	tail      []*models.Post
	cursor    *store.Cursor
	hasMore   bool
	loading   bool
	liveReq   uint64
	liveSeen  uint64
	bookmarks map[string]bool
	cancel    context.CancelFunc
	updates   chan struct{}
}

// NewAssembler creates an idle session for uid; call Start to load it
func (s *Service) NewAssembler(uid string) *Assembler {
	return &Assembler{
		svc:       s,
		uid:       uid,
		logger:    logging.WithUser(s.logger, uid),
		bookmarks: make(map[string]bool),
		updates:   make(chan struct{}, 1),
	}
}

// Start discards any current state and loads the first page of filter. The live
// subscription stays open until ctx is done, the filter changes, or Close is called.
func (a *Assembler) Start(ctx context.Context, filter Filter) error {
	viewer, err := ResolveViewer(ctx, a.svc.profiles, a.uid)
	if err != nil {
		return err
	}
	if _, err := BuildQuery(filter, viewer, nil, a.svc.pageSize); err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.gen++
	gen := a.gen
	a.filter, a.viewer = filter, viewer
	a.live, a.tail, a.cursor = nil, nil, nil
	a.hasMore, a.loading = false, false
	a.cancel = cancel
	a.mu.Unlock()

	// subscribe before the first read so no change slips between them
	events, err := a.svc.bus.Subscribe(subCtx)
	if err != nil {
		cancel()
		return models.StoreUnavailable("feed.Start", err)
	}
	if err := a.refreshLive(subCtx, gen); err != nil {
		cancel()
		return err
	}
	telemetry.RecordFeedPage(ctx, string(filter))

	go a.watch(subCtx, gen, events)
	return nil
}

// SetFilter switches the session to another filter, restarting from an empty first page
func (a *Assembler) SetFilter(ctx context.Context, filter Filter) error {
	return a.Start(ctx, filter)
}

func (a *Assembler) watch(ctx context.Context, gen uint64, events <-chan changefeed.Event) {
	for ev := range events {
		a.applyEvent(gen, ev)
		// coalesce a burst into one re-query
		for drained := false; !drained; {
			select {
			case more, ok := <-events:
				if !ok {
					return
				}
				a.applyEvent(gen, more)
			default:
				drained = true
			}
		}
		if err := a.refreshLive(ctx, gen); err != nil && ctx.Err() == nil {
			a.logger.Warn("Failed to refresh live page", zap.Error(err))
		}
	}
}

func (a *Assembler) applyEvent(gen uint64, ev changefeed.Event) {
	if ev.Type != changefeed.Removed {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen == a.gen {
		a.live = without(a.live, ev.PostID)
		a.tail = without(a.tail, ev.PostID)
	}
}

// refreshLive re-reads page 1 and replaces the live slice with it
func (a *Assembler) refreshLive(ctx context.Context, gen uint64) error {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return nil
	}
	q, err := BuildQuery(a.filter, a.viewer, nil, a.svc.pageSize)
	a.liveReq++
	req := a.liveReq
	a.mu.Unlock()
	if err != nil {
		return err
	}

	page, err := a.svc.posts.ListPosts(ctx, q)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// stale filter, or overtaken by a newer refresh
	if gen != a.gen || req <= a.liveSeen {
		return nil
	}
	a.liveSeen = req
	// Once the cursor has moved past page 1, or a LoadMore holding it is in flight, posts
	// pushed off page 1 sort before the cursor and would never be fetched again.
	paginating := len(a.tail) > 0 || a.loading
	if paginating {
		var displaced []*models.Post
		for _, p := range a.live {
			if indexOf(page, p.ID) < 0 {
				displaced = append(displaced, p)
			}
		}
		a.tail = AppendPage(displaced, a.tail)
	}
	a.live = page
	if !paginating {
		a.hasMore = len(page) == a.svc.pageSize
		a.cursor = nil
		if n := len(page); n > 0 {
			a.cursor = store.CursorOf(page[n-1])
		}
	}
	a.notify()
	return nil
}

// LoadMore fetches the page after the last one loaded and appends it. It returns the posts
// actually added; nil when the feed is exhausted, a load is already running, or the filter
// changed while the page was in flight.
func (a *Assembler) LoadMore(ctx context.Context) ([]*models.Post, error) {
	a.mu.Lock()
	if a.gen == 0 {
		a.mu.Unlock()
		return nil, models.Validation("feed.LoadMore", "feed not started")
	}
	if !a.hasMore || a.loading {
		a.mu.Unlock()
		return nil, nil
	}
	q, err := BuildQuery(a.filter, a.viewer, a.cursor, a.svc.pageSize)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	gen := a.gen
	filter := a.filter
	a.loading = true
	a.mu.Unlock()

	page, err := a.svc.posts.ListPosts(ctx, q)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		a.logger.Debug("Dropping page for abandoned filter", zap.String("filter", string(filter)))
		return nil, nil
	}
	a.loading = false
	if err != nil {
		return nil, err
	}

	merged := Merge(a.live, a.tail)
	added := AppendPage(merged, page)[len(merged):]
	a.tail = append(a.tail, added...)
	if n := len(page); n > 0 {
		a.cursor = store.CursorOf(page[n-1])
	}
	a.hasMore = len(page) == a.svc.pageSize
	telemetry.RecordFeedPage(ctx, string(filter))
	a.notify()

	return clonePosts(added), nil
}

// Posts returns a snapshot of the visible feed
func (a *Assembler) Posts() []*models.Post {
	a.mu.Lock()
	defer a.mu.Unlock()
	return clonePosts(Merge(a.live, a.tail))
}

// HasMore reports whether LoadMore may return further posts
func (a *Assembler) HasMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasMore
}

// Filter returns the active filter
func (a *Assembler) Filter() Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// Updates signals whenever the visible feed changed
func (a *Assembler) Updates() <-chan struct{} {
	return a.updates
}

// Close stops the live subscription and drops any in-flight page
func (a *Assembler) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.gen++
	a.live, a.tail, a.cursor = nil, nil, nil
	a.hasMore, a.loading = false, false
}

// notify must be called with mu held
func (a *Assembler) notify() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}

// find returns the visible copy of id, live page first. Caller holds mu.
func (a *Assembler) find(id string) *models.Post {
	if i := indexOf(a.live, id); i >= 0 {
		return a.live[i]
	}
	if i := indexOf(a.tail, id); i >= 0 {
		return a.tail[i]
	}
	return nil
}

func clonePosts(list []*models.Post) []*models.Post {
	out := make([]*models.Post, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}
