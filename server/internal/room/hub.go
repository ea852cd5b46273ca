package room

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCapacity is the per-subscriber buffer depth.
	DefaultCapacity = 64

	// DefaultSweepInterval is how often Run looks for idle topics.
	DefaultSweepInterval = time.Minute
)

// Stats is a point-in-time summary of the hub.
type Stats struct {
	Rooms     int
	Viewers   int
	Published uint64
	Dropped   uint64
}

type counters struct {
	published atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithCapacity sets the per-subscriber buffer depth.
func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithPresence sets the encoder used to announce subscriber count changes.
func WithPresence(fn func(count int) []byte) Option {
	return func(h *Hub) { h.presence = fn }
}

// WithIdleGrace sets how long a topic must sit without subscribers before a
// sweep retires it. Zero disables retirement.
func WithIdleGrace(d time.Duration) Option {
	return func(h *Hub) { h.grace.Store(int64(d)) }
}

// Hub is the process-wide registry of topics, keyed by slug.
type Hub struct {
	capacity int
	presence func(count int) []byte
	now      func() time.Time // injectable for deterministic tests
	grace    atomic.Int64
	stats    counters
	resweep  chan time.Duration

	mu     sync.Mutex
	topics map[string]*Topic
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		capacity: DefaultCapacity,
		now:      time.Now,
		resweep:  make(chan time.Duration, 1),
		topics:   make(map[string]*Topic),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// GetOrCreate returns the topic for slug, creating and registering it if
// none exists. Concurrent callers for the same slug get the same topic.
func (h *Hub) GetOrCreate(slug string) *Topic {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.topics[slug]; ok {
		return t
	}
	t := newTopic(slug, h.capacity, h.presence, h.now, &h.stats)
	h.topics[slug] = t
	return t
}

// Lookup returns the topic for slug without creating one.
func (h *Hub) Lookup(slug string) (*Topic, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[slug]
	return t, ok
}

// Subscribe joins the room for slug. It returns the topic, the new
// subscription and the number of subscribers present before joining. If a
// concurrent sweep retires the topic between lookup and subscribe, a fresh
// topic is created and the subscribe is retried.
func (h *Hub) Subscribe(slug string) (*Topic, *Subscription, int) {
	for {
		t := h.GetOrCreate(slug)
		sub, before, err := t.Subscribe()
		if err == nil {
			return t, sub, before
		}
	}
}

// SetIdleGrace changes the idle grace period used by later sweeps.
func (h *Hub) SetIdleGrace(d time.Duration) {
	h.grace.Store(int64(d))
}

// SetSweepInterval changes the period of a running Run loop. Without a
// running loop the newest value is picked up when Run starts ticking.
func (h *Hub) SetSweepInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case h.resweep <- d:
			return
		default:
		}
		// Replace a pending value nobody has consumed yet.
		select {
		case <-h.resweep:
		default:
		}
	}
}

// Sweep retires every topic that has had no subscribers since now minus the
// idle grace period and returns how many were removed.
func (h *Hub) Sweep(now time.Time) int {
	grace := time.Duration(h.grace.Load())
	if grace <= 0 {
		return 0
	}
	cutoff := now.Add(-grace)

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for slug, t := range h.topics {
		t.mu.Lock()
		if len(t.subs) == 0 && !t.LastActive().After(cutoff) {
			t.retired = true
			delete(h.topics, slug)
			removed++
		}
		t.mu.Unlock()
	}
	return removed
}

// Run sweeps idle topics every interval until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-h.resweep:
			t.Reset(d)
			slog.Debug("room: sweep interval changed", "interval", d)
		case <-t.C:
			if n := h.Sweep(h.now()); n > 0 {
				slog.Debug("room: retired idle rooms", "count", n)
			}
		}
	}
}

// Len returns the number of registered topics.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// Stats returns current room and viewer counts plus message totals.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	topics := make([]*Topic, 0, len(h.topics))
	for _, t := range h.topics {
		topics = append(topics, t)
	}
	h.mu.Unlock()

	s := Stats{
		Rooms:     len(topics),
		Published: h.stats.published.Load(),
		Dropped:   h.stats.dropped.Load(),
	}
	for _, t := range topics {
		s.Viewers += t.SubscriberCount()
	}
	return s
}
