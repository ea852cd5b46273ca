package follower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livepaste/livepaste/pkg/protocol"
)

const (
	// DefaultBufferSize is the outbound queue length.
	DefaultBufferSize = 32

	writeTimeout = 10 * time.Second
	dialTimeout  = 10 * time.Second
)

// dialFunc opens a WebSocket connection. Abstracted so tests can count or
// refuse dials.
type dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// Follower follows one room.
type Follower struct {
	url       string
	buf       chan []byte
	onMessage func(protocol.Message)
	dial      dialFunc
	bo        *backoff

	connected atomic.Bool
	evicted   atomic.Uint64
}

// New creates a Follower for the room at url (ws:// or wss://). onMessage is
// called from the reader goroutine for every decoded message, in order.
func New(url string, bufferSize int, onMessage func(protocol.Message)) *Follower {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if onMessage == nil {
		onMessage = func(protocol.Message) {}
	}
	return &Follower{
		url:       url,
		buf:       make(chan []byte, bufferSize),
		onMessage: onMessage,
		dial:      defaultDial,
		bo:        newBackoff(backoffInitial, backoffMax),
	}
}

// Send encodes m and enqueues it. If the queue is full the oldest entry is
// evicted to make room.
func (f *Follower) Send(m protocol.Message) error {
	if !m.Kind().FromClient() {
		return fmt.Errorf("follower: %s is not a client message", m.Kind())
	}
	b, err := protocol.Encode(m)
	if err != nil {
		return fmt.Errorf("follower: %w", err)
	}
	for {
		select {
		case f.buf <- b:
			return nil
		default:
		}
		// Queue full: drop the oldest message, keep the newest.
		select {
		case <-f.buf:
			f.evicted.Add(1)
			slog.Warn("follower: buffer full, evicted oldest message", "buffer_cap", cap(f.buf))
		default:
		}
	}
}

// Connected reports whether a connection is currently up.
func (f *Follower) Connected() bool { return f.connected.Load() }

// Evicted returns how many queued messages were dropped for lack of room.
func (f *Follower) Evicted() uint64 { return f.evicted.Load() }

// Run keeps the room connection alive until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := f.dial(ctx, f.url)
		if err != nil {
			wait := f.bo.next()
			slog.Error("follower: dial failed, will retry", "url", f.url, "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("follower: connected", "url", f.url)
		f.bo.reset()
		f.connected.Store(true)

		err = f.session(ctx, conn)
		f.connected.Store(false)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := f.bo.next()
		slog.Warn("follower: connection lost, will reconnect", "url", f.url, "err", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// session pumps one connection until it fails or ctx is cancelled.
func (f *Follower) session(ctx context.Context, conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() { readErr <- f.readLoop(conn) }()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			<-readErr
			return nil

		case err := <-readErr:
			return err

		case msg := <-f.buf:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// Put the message back if there's room; it goes out after reconnect.
				select {
				case f.buf <- msg:
				default:
				}
				conn.Close()
				<-readErr
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (f *Follower) readLoop(conn *websocket.Conn) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("server closed the connection")
			}
			return fmt.Errorf("read: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		m, err := protocol.Decode(data)
		if err != nil {
			slog.Debug("follower: skipping undecodable frame", "err", err)
			continue
		}
		f.onMessage(m)
	}
}

func defaultDial(ctx context.Context, url string) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
