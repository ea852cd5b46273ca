package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livepaste/livepaste/pkg/protocol"
	"github.com/livepaste/livepaste/server/internal/room"
	"github.com/livepaste/livepaste/server/internal/store"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is one viewer's connection to one room.
type session struct {
	id    string
	slug  string
	conn  *websocket.Conn
	h     *Handler
	log   *slog.Logger
	state atomic.Int32
}

func (s *session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.log.Debug("ws: session state", "from", prev.String(), "to", st.String())
}

// State returns the session's current lifecycle phase.
func (s *session) State() State {
	return State(s.state.Load())
}

// run joins the room and pumps messages until either side stops. It returns
// once both goroutines have exited and the subscription is released.
func (s *session) run(ctx context.Context, cancel context.CancelFunc) {
	topic, sub, before := s.h.hub.Subscribe(s.slug)
	defer func() {
		remaining := sub.Close()
		s.setState(StateClosed)
		s.log.Debug("ws: session closed", "remaining", remaining, "state", s.State().String())
	}()

	hello := protocol.MustEncode(protocol.Connected{Slug: s.slug, Viewers: before})
	if err := s.write(websocket.TextMessage, hello); err != nil {
		s.log.Debug("ws: connected write failed", "err", err)
		s.setState(StateClosing)
		s.conn.Close()
		return
	}
	s.setState(StateActive)

	writerDone := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writePump(ctx, sub)
	}()
	go func() {
		defer close(readerDone)
		defer cancel()
		s.readPump(ctx, topic)
	}()

	<-ctx.Done()
	s.setState(StateClosing)
	// The writer sends a close frame on its way out; closing the socket after
	// that unblocks the reader.
	<-writerDone
	s.conn.Close()
	<-readerDone
}

func (s *session) readPump(ctx context.Context, topic *room.Topic) {
	opts := s.h.opts
	s.conn.SetReadLimit(opts.MaxMessageBytes)
	s.conn.SetReadDeadline(time.Now().Add(opts.PongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("ws: read error", "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		s.handle(ctx, topic, data)
	}
}

// handle persists one client message and fans it out to the room. Persistence
// failures are logged; the broadcast still goes out so connected viewers stay
// in step with each other.
func (s *session) handle(ctx context.Context, topic *room.Topic, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.log.Debug("ws: dropping client message", "err", err)
		return
	}

	// An accepted message is persisted even if the session closes meanwhile.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var out protocol.Message
	switch m := msg.(type) {
	case protocol.Edit:
		err = s.h.store.UpdateFields(pctx, s.slug, store.Fields{Content: &m.Content, Language: &m.Language})
		out = protocol.BroadcastEdit{Content: m.Content, Language: m.Language}
	case protocol.Image:
		err = s.h.store.AddImage(pctx, s.slug, m.Image)
		out = protocol.BroadcastImage{Image: m.Image}
	case protocol.RemoveImage:
		err = s.h.store.RemoveImage(pctx, s.slug, m.ID)
		out = protocol.BroadcastRemoveImage{ID: m.ID}
	default:
		s.log.Debug("ws: ignoring server-only message kind", "type", msg.Kind())
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		s.log.Debug("ws: no live snippet, broadcasting only", "type", msg.Kind())
	case err != nil:
		s.log.Warn("ws: persist failed", "type", msg.Kind(), "err", err)
	}

	b, err := protocol.Encode(out)
	if err != nil {
		s.log.Error("ws: encode broadcast", "type", out.Kind(), "err", err)
		return
	}
	topic.Publish(b)
}

func (s *session) writePump(ctx context.Context, sub *room.Subscription) {
	ticker := time.NewTicker(s.h.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return

		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.write(websocket.TextMessage, msg); err != nil {
				s.log.Debug("ws: write failed", "err", err)
				return
			}

		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write is only called from one goroutine at a time: run before the pumps
// start, writePump afterwards.
func (s *session) write(mt int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.h.opts.WriteTimeout)) //nolint:errcheck
	return s.conn.WriteMessage(mt, data)
}
