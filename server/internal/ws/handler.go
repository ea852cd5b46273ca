package ws

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/livepaste/livepaste/pkg/protocol"
	"github.com/livepaste/livepaste/pkg/snippet"
	"github.com/livepaste/livepaste/server/internal/room"
	"github.com/livepaste/livepaste/server/internal/store"
)

const (
	// DefaultWriteTimeout is the deadline for a single write to a client.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultPongWait is how long to wait for a pong response before treating
	// the connection as dead.
	DefaultPongWait = 60 * time.Second

	// DefaultMaxMessageBytes bounds one inbound frame. Images travel inline as
	// data URLs, so this is far larger than a text edit needs.
	DefaultMaxMessageBytes = 8 << 20

	// persistTimeout bounds a single store write triggered by a client message.
	persistTimeout = 5 * time.Second
)

// SnippetStore is the persistence a session writes through to.
type SnippetStore interface {
	UpdateFields(ctx context.Context, slug string, f store.Fields) error
	AddImage(ctx context.Context, slug string, img snippet.Image) error
	RemoveImage(ctx context.Context, slug, id string) error
}

// Options tunes socket behaviour. Zero fields take the defaults above.
type Options struct {
	WriteTimeout    time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	CheckOrigin     func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return o
}

// pingPeriod must stay below pongWait so a healthy peer never times out.
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Presence encodes the room's viewer count announcement. Pass it to
// room.WithPresence when building the hub the Handler serves.
func Presence(count int) []byte {
	return protocol.MustEncode(protocol.Viewers{Count: count})
}

// Handler upgrades connections and tracks the live sessions.
type Handler struct {
	hub      *room.Hub
	store    SnippetStore
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]context.CancelFunc
	closed   bool
}

// New creates a Handler that joins viewers to rooms in hub and persists their
// edits to st.
func New(hub *room.Hub, st SnippetStore, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		hub:   hub,
		store: st,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		sessions: make(map[*session]context.CancelFunc),
	}
}

// ServeHTTP serves a session for the slug in the last path segment, so the
// handler can be mounted directly at a "/ws/" prefix.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Serve(w, r, path.Base(r.URL.Path))
}

// Serve upgrades the connection and runs a session in the room for slug.
// It blocks until the session is closed.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, slug string) {
	if err := snippet.Validate(slug); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "slug", slug, "err", err)
		return
	}

	s := &session{
		id:   ulid.Make().String(),
		slug: slug,
		conn: conn,
		h:    h,
	}
	s.log = slog.With("slug", slug, "session", s.id)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	if !h.register(s, cancel) {
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer h.unregister(s)

	s.log.Info("ws: viewer connected", "remote", r.RemoteAddr)
	s.run(ctx, cancel)
	s.log.Info("ws: viewer disconnected")
}

// Run blocks until ctx is cancelled, then closes every live session and
// refuses new ones.
func (h *Handler) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Count returns the number of live sessions.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CountState returns how many tracked sessions are currently in st.
func (h *Handler) CountState(st State) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.sessions {
		if s.State() == st {
			n++
		}
	}
	return n
}

// --- internal ---------------------------------------------------------------

func (h *Handler) register(s *session, cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = cancel
	return true
}

func (h *Handler) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *Handler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, cancel := range h.sessions {
		cancel()
	}
}
