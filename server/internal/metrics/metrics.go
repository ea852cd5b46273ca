package metrics

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/livepaste/livepaste/server/internal/room"
)

// HubStats is satisfied by *room.Hub.
type HubStats interface {
	Stats() room.Stats
}

// SessionCounter is satisfied by *ws.Handler.
type SessionCounter interface {
	Count() int
}

// PurgeCounter is satisfied by *store.Store.
type PurgeCounter interface {
	Purged() int64
}

// Collector gathers metric families from the running server.
type Collector struct {
	hub      HubStats
	sessions SessionCounter
	store    PurgeCounter
}

// New returns a Collector. Any source may be nil, in which case its
// families are omitted.
func New(hub HubStats, sessions SessionCounter, st PurgeCounter) *Collector {
	return &Collector{hub: hub, sessions: sessions, store: st}
}

// Gather returns the current metric families in a stable order.
func (c *Collector) Gather() []*dto.MetricFamily {
	var out []*dto.MetricFamily
	if c.hub != nil {
		s := c.hub.Stats()
		out = append(out,
			gauge("livepaste_rooms", "Rooms currently held in memory.", float64(s.Rooms)),
			gauge("livepaste_viewers", "Viewers subscribed across all rooms.", float64(s.Viewers)),
			counter("livepaste_messages_published_total", "Messages published to rooms.", float64(s.Published)),
			counter("livepaste_messages_dropped_total", "Messages dropped from full viewer buffers.", float64(s.Dropped)),
		)
	}
	if c.sessions != nil {
		out = append(out, gauge("livepaste_sessions", "Open WebSocket sessions.", float64(c.sessions.Count())))
	}
	if c.store != nil {
		out = append(out, counter("livepaste_snippets_purged_total", "Expired snippets deleted by the cleanup loop.", float64(c.store.Purged())))
	}
	return out
}

// ServeHTTP writes the families in text format.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range c.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
			return
		}
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}
