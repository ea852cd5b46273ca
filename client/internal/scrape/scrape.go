package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	defaultTimeout = 10 * time.Second

	// DefaultHeader is the header the server reads the API key from unless
	// configured otherwise.
	DefaultHeader = "x-api-key"
)

// Metric names exported by the server.
const (
	metricRooms     = "livepaste_rooms"
	metricViewers   = "livepaste_viewers"
	metricPublished = "livepaste_messages_published_total"
	metricDropped   = "livepaste_messages_dropped_total"
	metricSessions  = "livepaste_sessions"
	metricPurged    = "livepaste_snippets_purged_total"
)

// Stats is one scrape of a server. Counters are raw totals since the server
// started.
type Stats struct {
	ScrapedAt time.Time
	Rooms     float64
	Viewers   float64
	Sessions  float64
	Published float64
	Dropped   float64
	Purged    float64
}

// Scraper fetches Stats from one server.
type Scraper struct {
	url    string
	client *http.Client
}

// New returns a Scraper for the server at base. When key is non-empty it is
// sent in header (DefaultHeader if empty) on every request.
func New(base, header, key string) *Scraper {
	var rt http.RoundTripper = http.DefaultTransport
	if key != "" {
		if header == "" {
			header = DefaultHeader
		}
		rt = &apiKeyRoundTripper{base: rt, header: header, key: key}
	}
	return &Scraper{
		url:    strings.TrimRight(base, "/") + "/metrics",
		client: &http.Client{Transport: rt, Timeout: defaultTimeout},
	}
}

// apiKeyRoundTripper injects the API key header into every outgoing request.
type apiKeyRoundTripper struct {
	base   http.RoundTripper
	header string
	key    string
}

func (t *apiKeyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(t.header, t.key)
	return t.base.RoundTrip(req)
}

// Scrape fetches and summarizes the server's metrics.
func (s *Scraper) Scrape(ctx context.Context) (Stats, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.url)
	if err != nil {
		return Stats{}, fmt.Errorf("scrape %s: %w", s.url, err)
	}
	return Stats{
		ScrapedAt: time.Now().UTC(),
		Rooms:     sumFamily(mfs[metricRooms]),
		Viewers:   sumFamily(mfs[metricViewers]),
		Sessions:  sumFamily(mfs[metricSessions]),
		Published: sumFamily(mfs[metricPublished]),
		Dropped:   sumFamily(mfs[metricDropped]),
		Purged:    sumFamily(mfs[metricPurged]),
	}, nil
}

func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a text exposition. A partial parse that yielded some
// families is treated as success.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up every counter, gauge or untyped sample in mf. A missing
// family sums to 0.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
