package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/engagement"
	"github.com/murmurhq/murmur/internal/feed"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// liveIn is a client-to-server frame
type liveIn struct {
	Type   string `json:"type"`
	Filter string `json:"filter,omitempty"`
	PostID string `json:"postId,omitempty"`
}

// liveOut is a server-to-client frame
type liveOut struct {
	Type      string         `json:"type"`
	Op        string         `json:"op,omitempty"`
	Filter    string         `json:"filter,omitempty"`
	Posts     []*models.Post `json:"posts,omitempty"`
	HasMore   bool           `json:"hasMore,omitempty"`
	Bookmarks []string       `json:"bookmarks,omitempty"`
	PostID    string         `json:"postId,omitempty"`
	Code      int            `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// liveSession pumps one socket: reads drive the assembler, a single writer pushes frames
type liveSession struct {
	conn       *websocket.Conn
	asm        *feed.Assembler
	engagement *engagement.Service
	uid        string
	send       chan liveOut
	logger     *zap.Logger
}

func (r *Router) upgrader() *websocket.Upgrader {
	origins := r.cfg.Server.CORSOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range origins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// liveHandler upgrades to a WebSocket and runs a feed session until either side hangs up
func (r *Router) liveHandler(c *gin.Context) {
	filter, err := feed.ParseFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := r.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	uid := currentUID(c)
	s := &liveSession{
		conn:       conn,
		asm:        r.feed.NewAssembler(uid),
		engagement: r.engagement,
		uid:        uid,
		send:       make(chan liveOut, 16),
		logger:     logging.WithUser(r.logger, uid),
	}
	s.run(c.Request.Context(), filter)
}

func (s *liveSession) run(parent context.Context, filter feed.Filter) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		s.asm.Close()
		s.conn.Close()
	}()

	if posts, err := s.engagement.ListBookmarks(ctx, s.uid); err == nil {
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		s.asm.SetBookmarks(ids)
	} else {
		s.logger.Warn("Failed to seed bookmarks", zap.Error(err))
	}

	go s.writePump(ctx, cancel)

	if err := s.asm.Start(ctx, filter); err != nil {
		s.reply(ctx, errorFrame("filter", "", err))
		return
	}
	s.logger.Info("Live feed session started", zap.String("filter", string(filter)))
	s.readPump(ctx)
	s.logger.Info("Live feed session ended")
}

func (s *liveSession) readPump(ctx context.Context) {
	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		var msg liveIn
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(ctx, liveOut{Type: "error", Code: ErrParseError, Message: "malformed frame"})
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *liveSession) handle(ctx context.Context, msg liveIn) {
	switch msg.Type {
	case "filter":
		filter, err := feed.ParseFilter(msg.Filter)
		if err == nil {
			err = s.asm.SetFilter(ctx, filter)
		}
		if err != nil {
			s.reply(ctx, errorFrame(msg.Type, "", err))
		}
	case "load_more":
		if _, err := s.asm.LoadMore(ctx); err != nil {
			s.reply(ctx, errorFrame(msg.Type, "", err))
		}
	case "like":
		want := true
		for _, p := range s.asm.Posts() {
			if p.ID == msg.PostID {
				want = !p.LikedBy(s.uid)
				break
			}
		}
		err := s.asm.Mutate(ctx, msg.PostID, feed.LikeMutation{UID: s.uid, Like: want}, func(ctx context.Context) error {
			return s.engagement.SetLike(ctx, msg.PostID, s.uid, want)
		})
		if err != nil {
			s.reply(ctx, errorFrame(msg.Type, msg.PostID, err))
		}
	case "bookmark":
		_, err := s.asm.ToggleBookmark(ctx, msg.PostID, func(ctx context.Context, on bool) error {
			return s.engagement.SetBookmark(ctx, s.uid, msg.PostID, on)
		})
		if err != nil {
			s.reply(ctx, errorFrame(msg.Type, msg.PostID, err))
		}
	case "ping":
		s.reply(ctx, liveOut{Type: "pong"})
	default:
		s.reply(ctx, liveOut{Type: "error", Code: ErrMethodNotFound, Message: "unknown frame type " + msg.Type})
	}
}

// writePump is the only writer on the connection. When it stops it cancels the session and
// closes the socket, which unblocks readPump and any pending reply.
func (s *liveSession) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		s.conn.Close()
	}()

	for {
		var out liveOut
		select {
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-s.asm.Updates():
			out = s.snapshot()
		case out = <-s.send:
		}

		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(out); err != nil {
			s.logger.Debug("WebSocket write failed", zap.Error(err))
			return
		}
	}
}

func (s *liveSession) snapshot() liveOut {
	return liveOut{
		Type:      "snapshot",
		Filter:    string(s.asm.Filter()),
		Posts:     s.asm.Posts(),
		HasMore:   s.asm.HasMore(),
		Bookmarks: s.asm.Bookmarks(),
	}
}

func (s *liveSession) reply(ctx context.Context, out liveOut) {
	select {
	case s.send <- out:
	case <-ctx.Done():
	}
}

func errorFrame(op, postID string, err error) liveOut {
	code, _ := errorCode(err)
	return liveOut{Type: "error", Op: op, PostID: postID, Code: code, Message: err.Error()}
}
