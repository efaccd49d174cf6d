// Package metrics implements a small Prometheus-text-format registry on the
// standard library. Counters, gauges, and histograms are grouped into
// families; label combinations are child series within a family.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are the default histogram buckets (in seconds).
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram tracks the distribution of observed values in fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// Observe records a value into the first bucket it fits.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			break
		}
	}
	h.mu.Unlock()
}

// Since observes the duration elapsed since t, in seconds.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

func (h *Histogram) snapshot() (buckets []float64, counts []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts = make([]uint64, len(h.counts))
	copy(counts, h.counts)
	return h.buckets, counts, h.sum, h.count
}

type metricKind int

const (
	kindCounter metricKind = iota
	kindGauge
	kindHistogram
)

func (k metricKind) String() string {
	switch k {
	case kindCounter:
		return "counter"
	case kindGauge:
		return "gauge"
	default:
		return "histogram"
	}
}

// family groups all label combinations of one metric name.
type family struct {
	kind     metricKind
	help     string
	buckets  []float64
	children map[string]any // label string ("" for none) -> *Counter/*Gauge/*Histogram
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	order    []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

func (r *Registry) family(name string, kind metricKind, help string) *family {
	f, ok := r.families[name]
	if !ok {
		f = &family{kind: kind, help: help, children: make(map[string]any)}
		r.families[name] = f
		r.order = append(r.order, name)
	}
	return f
}

// Counter returns (or registers) the counter series for name and labels.
// Labels are alternating key/value pairs.
func (r *Registry) Counter(name, help string, labels ...string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.family(name, kindCounter, help)
	key := labelString(labels)
	if c, ok := f.children[key]; ok {
		return c.(*Counter)
	}
	c := &Counter{}
	f.children[key] = c
	return c
}

// Gauge returns (or registers) the gauge series for name and labels.
func (r *Registry) Gauge(name, help string, labels ...string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.family(name, kindGauge, help)
	key := labelString(labels)
	if g, ok := f.children[key]; ok {
		return g.(*Gauge)
	}
	g := &Gauge{}
	f.children[key] = g
	return g
}

// Histogram returns (or registers) the histogram series for name and labels.
// Nil buckets selects DefaultBuckets. Buckets must be sorted ascending.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.family(name, kindHistogram, help)
	if f.buckets == nil {
		f.buckets = buckets
	}
	key := labelString(labels)
	if h, ok := f.children[key]; ok {
		return h.(*Histogram)
	}
	h := &Histogram{buckets: f.buckets, counts: make([]uint64, len(f.buckets))}
	f.children[key] = h
	return h
}

// labelString renders alternating key/value pairs as `k="v",k2="v2"`.
// Odd-length input drops the trailing key.
func labelString(kvs []string) string {
	if len(kvs) < 2 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	return b.String()
}

// Render writes the registry in Prometheus text exposition format.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, name := range r.order {
		f := r.families[name]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, f.kind)

		keys := make([]string, 0, len(f.children))
		for k := range f.children {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			switch m := f.children[key].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s%s %d\n", name, braced(key), m.Value())
			case *Gauge:
				fmt.Fprintf(&b, "%s%s %d\n", name, braced(key), m.Value())
			case *Histogram:
				buckets, counts, sum, count := m.snapshot()
				cumulative := uint64(0)
				for i, bk := range buckets {
					cumulative += counts[i]
					fmt.Fprintf(&b, "%s_bucket%s %d\n", name, braced(joinLabels(key, fmt.Sprintf(`le="%g"`, bk))), cumulative)
				}
				fmt.Fprintf(&b, "%s_bucket%s %d\n", name, braced(joinLabels(key, `le="+Inf"`)), count)
				fmt.Fprintf(&b, "%s_sum%s %g\n", name, braced(key), sum)
				fmt.Fprintf(&b, "%s_count%s %d\n", name, braced(key), count)
			}
		}
	}
	return b.String()
}

func braced(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

func joinLabels(a, b string) string {
	if a == "" {
		return b
	}
	return a + "," + b
}

// Handler serves the registry in text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}

// Serve blocks serving /metrics (and a trivial /) on the given port.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync starts the metrics server in a goroutine. Errors are printed.
func (r *Registry) ServeAsync(port int) {
	go func() {
		if err := r.Serve(port); err != nil {
			fmt.Printf("metrics server error on port %d: %v\n", port, err)
		}
	}()
}
