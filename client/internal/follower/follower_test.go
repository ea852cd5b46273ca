package follower

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livepaste/livepaste/pkg/protocol"
)

// fakeRoom greets every connection with Connected and echoes edits back as
// broadcasts. When dropFirst is set the first connection is closed right
// after the greeting.
type fakeRoom struct {
	dropFirst bool
	conns     atomic.Int32
}

func (r *fakeRoom) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	n := r.conns.Add(1)
	conn.WriteMessage(websocket.TextMessage, protocol.MustEncode(protocol.Connected{Slug: "room", Viewers: int(n - 1)})) //nolint:errcheck
	if r.dropFirst && n == 1 {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		if e, ok := m.(protocol.Edit); ok {
			out := protocol.BroadcastEdit{Content: e.Content, Language: e.Language}
			conn.WriteMessage(websocket.TextMessage, protocol.MustEncode(out)) //nolint:errcheck
		}
	}
}

func startRoom(t *testing.T, room *fakeRoom) string {
	t.Helper()
	srv := httptest.NewServer(room)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room"
}

// recorder collects messages delivered to the callback.
type recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recorder) add(m protocol.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) count(k protocol.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Kind() == k {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSend_EvictsOldestWhenFull(t *testing.T) {
	f := New("ws://unused", 2, nil)
	for _, c := range []string{"1", "2", "3"} {
		if err := f.Send(protocol.Edit{Content: c, Language: "go"}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if f.Evicted() != 1 {
		t.Errorf("Evicted: got %d, want 1", f.Evicted())
	}

	for _, want := range []string{"2", "3"} {
		m, err := protocol.Decode(<-f.buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got := m.(protocol.Edit).Content; got != want {
			t.Errorf("queued: got %q, want %q", got, want)
		}
	}
}

func TestSend_RejectsServerKinds(t *testing.T) {
	f := New("ws://unused", 1, nil)
	if err := f.Send(protocol.Viewers{Count: 3}); err == nil {
		t.Error("Send(Viewers): expected error")
	}
}

func TestRun_DeliversAndSends(t *testing.T) {
	url := startRoom(t, &fakeRoom{})
	rec := &recorder{}
	f := New(url, 8, rec.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	waitFor(t, func() bool { return rec.count(protocol.KindConnected) == 1 }, "no Connected message")
	f.Send(protocol.Edit{Content: "hello", Language: "go"}) //nolint:errcheck
	waitFor(t, func() bool { return rec.count(protocol.KindBroadcastEdit) == 1 }, "edit not echoed")
}

func TestRun_ReconnectsAfterDrop(t *testing.T) {
	room := &fakeRoom{dropFirst: true}
	url := startRoom(t, room)
	rec := &recorder{}
	f := New(url, 8, rec.add)
	f.bo = newBackoff(10*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	waitFor(t, func() bool { return room.conns.Load() >= 2 }, "follower did not reconnect")
	waitFor(t, f.Connected, "follower not connected after reconnect")

	f.Send(protocol.Edit{Content: "after", Language: "go"}) //nolint:errcheck
	waitFor(t, func() bool { return rec.count(protocol.KindBroadcastEdit) == 1 }, "edit not echoed after reconnect")
}

func TestRun_RetriesFailedDials(t *testing.T) {
	var dials atomic.Int32
	f := New("ws://unused", 1, nil)
	f.bo = newBackoff(time.Millisecond, 5*time.Millisecond)
	f.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		dials.Add(1)
		return nil, context.DeadlineExceeded
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	waitFor(t, func() bool { return dials.Load() >= 3 }, "dial not retried")
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := newBackoff(time.Second, 4*time.Second)
	wantBase := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, base := range wantBase {
		d := b.next()
		lo, hi := base*3/4, base*5/4
		if d < lo || d > hi {
			t.Errorf("step %d: got %v, want within [%v, %v]", i, d, lo, hi)
		}
	}
	b.reset()
	if d := b.next(); d > 1250*time.Millisecond {
		t.Errorf("after reset: got %v", d)
	}
}
