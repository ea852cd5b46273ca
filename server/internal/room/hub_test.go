package room

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func countPresence(n int) []byte { return []byte(strconv.Itoa(n)) }

// drain returns every message currently buffered on sub without blocking.
func drain(sub *Subscription) []string {
	var out []string
	for {
		select {
		case m, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, string(m))
		default:
			return out
		}
	}
}

func TestGetOrCreate_ConcurrentSameTopic(t *testing.T) {
	h := New()
	const n = 64
	got := make([]*Topic, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i] = h.GetOrCreate("shared")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < n; i++ {
		if got[i] != got[0] {
			t.Fatalf("caller %d got a different topic instance", i)
		}
	}
	if h.Len() != 1 {
		t.Errorf("Len: got %d, want 1", h.Len())
	}
}

func TestGetOrCreate_DistinctSlugs(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.GetOrCreate(fmt.Sprintf("room-%d", i%5))
		}(i)
	}
	wg.Wait()
	if h.Len() != 5 {
		t.Errorf("Len: got %d, want 5", h.Len())
	}
}

func TestSubscribe_OnlyLaterMessages(t *testing.T) {
	h := New()
	topic := h.GetOrCreate("abc")
	topic.Publish([]byte("before"))

	sub, before, err := topic.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if before != 0 {
		t.Errorf("before: got %d, want 0", before)
	}
	topic.Publish([]byte("after"))

	msgs := drain(sub)
	if len(msgs) != 1 || msgs[0] != "after" {
		t.Errorf("messages: got %v, want [after]", msgs)
	}
}

func TestPublish_PreservesOrder(t *testing.T) {
	h := New(WithCapacity(128))
	topic := h.GetOrCreate("order")
	a, _, _ := topic.Subscribe()
	b, _, _ := topic.Subscribe()

	for i := 0; i < 100; i++ {
		topic.Publish([]byte(strconv.Itoa(i)))
	}

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		msgs := drain(sub)
		if len(msgs) != 100 {
			t.Fatalf("%s: got %d messages, want 100", name, len(msgs))
		}
		for i, m := range msgs {
			if m != strconv.Itoa(i) {
				t.Fatalf("%s: message %d is %q", name, i, m)
			}
		}
	}
}

func TestPublish_FullBufferDropsOldest(t *testing.T) {
	h := New(WithCapacity(4))
	topic := h.GetOrCreate("slow")
	sub, _, _ := topic.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			topic.Publish([]byte(strconv.Itoa(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	msgs := drain(sub)
	want := []string{"6", "7", "8", "9"}
	if fmt.Sprint(msgs) != fmt.Sprint(want) {
		t.Errorf("buffered: got %v, want %v", msgs, want)
	}
	if sub.Dropped() != 6 {
		t.Errorf("Dropped: got %d, want 6", sub.Dropped())
	}
	if s := h.Stats(); s.Dropped != 6 || s.Published != 10 {
		t.Errorf("Stats: got %+v", s)
	}
}

func TestPresence_AnnouncesJoinAndLeave(t *testing.T) {
	h := New(WithPresence(countPresence))
	_, a, before := h.Subscribe("p")
	if before != 0 {
		t.Fatalf("first before: got %d", before)
	}
	_, b, before := h.Subscribe("p")
	if before != 1 {
		t.Fatalf("second before: got %d", before)
	}

	if got := drain(a); fmt.Sprint(got) != "[1 2]" {
		t.Errorf("a saw %v, want [1 2]", got)
	}
	if got := drain(b); fmt.Sprint(got) != "[2]" {
		t.Errorf("b saw %v, want [2]", got)
	}

	if remaining := b.Close(); remaining != 1 {
		t.Errorf("Close remaining: got %d, want 1", remaining)
	}
	if got := drain(a); fmt.Sprint(got) != "[1]" {
		t.Errorf("a after leave saw %v, want [1]", got)
	}
}

func TestPresence_ConvergesUnderConcurrentJoins(t *testing.T) {
	h := New(WithPresence(countPresence), WithCapacity(256))
	const n = 32

	subs := make([]*Subscription, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, subs[i], _ = h.Subscribe("busy")
		}(i)
	}
	wg.Wait()

	// Half of them leave concurrently.
	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subs[i].Close()
		}(i)
	}
	wg.Wait()

	topic, _ := h.Lookup("busy")
	if c := topic.SubscriberCount(); c != n/2 {
		t.Fatalf("SubscriberCount: got %d, want %d", c, n/2)
	}
	for i := n / 2; i < n; i++ {
		msgs := drain(subs[i])
		if len(msgs) == 0 {
			t.Fatalf("sub %d saw no presence messages", i)
		}
		if last := msgs[len(msgs)-1]; last != strconv.Itoa(n/2) {
			t.Errorf("sub %d: last presence %s, want %d", i, last, n/2)
		}
	}
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	h := New()
	topic := h.GetOrCreate("x")
	sub, _, _ := topic.Subscribe()

	sub.Close()
	sub.Close()
	if _, ok := <-sub.C(); ok {
		t.Error("channel still open after Close")
	}
	if topic.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount: got %d, want 0", topic.SubscriberCount())
	}
	topic.Publish([]byte("after close")) // must not panic on the closed channel
}

func TestSweep_RetiresIdleEmptyRooms(t *testing.T) {
	base := time.Now()
	h := New(WithIdleGrace(10 * time.Minute))
	h.now = fixedClock(base)

	h.GetOrCreate("idle")
	_, sub, _ := h.Subscribe("busy")
	defer sub.Close()

	if n := h.Sweep(base.Add(5 * time.Minute)); n != 0 {
		t.Errorf("Sweep within grace: removed %d, want 0", n)
	}
	if n := h.Sweep(base.Add(11 * time.Minute)); n != 1 {
		t.Errorf("Sweep after grace: removed %d, want 1", n)
	}
	if _, ok := h.Lookup("idle"); ok {
		t.Error("idle room still registered")
	}
	if _, ok := h.Lookup("busy"); !ok {
		t.Error("room with a subscriber was swept")
	}
}

func TestSweep_DisabledWithZeroGrace(t *testing.T) {
	h := New()
	h.GetOrCreate("keep")
	if n := h.Sweep(time.Now().Add(1000 * time.Hour)); n != 0 {
		t.Errorf("Sweep with zero grace: removed %d, want 0", n)
	}
}

func TestSweep_RetiredTopicRefusesSubscribers(t *testing.T) {
	base := time.Now()
	h := New(WithIdleGrace(time.Minute))
	h.now = fixedClock(base)

	stale := h.GetOrCreate("r")
	h.Sweep(base.Add(2 * time.Minute))

	if _, _, err := stale.Subscribe(); !errors.Is(err, ErrRetired) {
		t.Fatalf("Subscribe on retired topic: got %v, want ErrRetired", err)
	}

	fresh, sub, _ := h.Subscribe("r")
	defer sub.Close()
	if fresh == stale {
		t.Error("Hub.Subscribe returned the retired topic")
	}
}

func TestStats(t *testing.T) {
	h := New()
	_, a, _ := h.Subscribe("one")
	_, b, _ := h.Subscribe("one")
	_, c, _ := h.Subscribe("two")
	defer a.Close()
	defer b.Close()
	defer c.Close()

	s := h.Stats()
	if s.Rooms != 2 || s.Viewers != 3 {
		t.Errorf("Stats: got %+v, want 2 rooms 3 viewers", s)
	}
}

func TestRun_SweepsOnTickAndAcceptsNewInterval(t *testing.T) {
	h := New(WithIdleGrace(time.Nanosecond))
	h.GetOrCreate("gone")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, time.Hour)

	h.SetSweepInterval(10 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle room not swept after interval change")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
