package room

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRetired is returned when subscribing to a topic the hub has swept.
var ErrRetired = errors.New("room: topic retired")

// Topic is the broadcast channel for one slug.
type Topic struct {
	slug     string
	capacity int
	presence func(count int) []byte
	now      func() time.Time
	stats    *counters

	lastActive atomic.Int64 // unix nanoseconds

	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	retired bool
}

// Subscription is one subscriber's receive side of a Topic.
type Subscription struct {
	topic   *Topic
	ch      chan []byte
	closed  bool // guarded by topic.mu
	dropped atomic.Uint64
}

func newTopic(slug string, capacity int, presence func(int) []byte, now func() time.Time, stats *counters) *Topic {
	t := &Topic{
		slug:     slug,
		capacity: capacity,
		presence: presence,
		now:      now,
		stats:    stats,
		subs:     make(map[*Subscription]struct{}),
	}
	t.touch()
	return t
}

// Slug returns the slug the topic serves.
func (t *Topic) Slug() string { return t.slug }

// Subscribe registers a new subscriber that receives every message published
// after this call. It returns the number of subscribers present before it.
func (t *Topic) Subscribe() (*Subscription, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.retired {
		return nil, 0, ErrRetired
	}
	before := len(t.subs)
	sub := &Subscription{
		topic: t,
		ch:    make(chan []byte, t.capacity),
	}
	t.subs[sub] = struct{}{}
	t.touch()

	if t.presence != nil {
		t.deliverLocked(t.presence(before + 1))
	}
	return sub, before, nil
}

// Publish delivers msg to every current subscriber. It never blocks.
func (t *Topic) Publish(msg []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.deliverLocked(msg)
	t.touch()
}

// SubscriberCount returns the current number of subscribers. The value is
// advisory and may be stale by the time the caller reads it.
func (t *Topic) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// LastActive returns when the topic last saw a publish, subscribe or unsubscribe.
func (t *Topic) LastActive() time.Time {
	return time.Unix(0, t.lastActive.Load())
}

// deliverLocked requires t.mu held (read or write).
func (t *Topic) deliverLocked(msg []byte) {
	t.stats.published.Add(1)
	for sub := range t.subs {
		sub.offer(msg, t.stats)
	}
}

func (t *Topic) touch() {
	t.lastActive.Store(t.now().UnixNano())
}

// C returns the channel messages are delivered on. It is closed by Close.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Dropped returns how many messages were discarded because this subscriber
// fell behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close releases the subscription and returns the number of subscribers that
// remain. Calling Close more than once is safe.
func (s *Subscription) Close() int {
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.closed {
		return len(t.subs)
	}
	s.closed = true
	delete(t.subs, s)
	close(s.ch)

	remaining := len(t.subs)
	t.touch()
	if t.presence != nil && remaining > 0 {
		t.deliverLocked(t.presence(remaining))
	}
	return remaining
}

// offer enqueues msg, discarding the oldest buffered message if the buffer is
// full. Concurrent offers may race for the freed slot; the loser is dropped.
func (s *Subscription) offer(msg []byte, stats *counters) {
	select {
	case s.ch <- msg:
		return
	default:
	}

	select {
	case <-s.ch:
		s.dropped.Add(1)
		stats.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
		stats.dropped.Add(1)
	}
}
