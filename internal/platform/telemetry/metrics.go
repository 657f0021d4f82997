package telemetry

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/apperr"
)

// durationBuckets are request duration bounds in seconds.
var durationBuckets = []float64{0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0}

// histogram keeps non-cumulative bucket counts; export accumulates them.
type histogram struct {
	mu      sync.Mutex
	bounds  []float64
	buckets []int64
	count   int64
	sum     uint64 // math.Float64bits
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, buckets: make([]int64, len(bounds))}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(math.Float64frombits(old)+v)) {
			break
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.bounds {
		if v <= b {
			h.buckets[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		out[i] = running
	}
	return out
}

// labelSet is a fixed, ordered list of label values joined for map keys.
type labelSet string

func labels(values ...string) labelSet { return labelSet(strings.Join(values, "\x00")) }

func (l labelSet) values() []string { return strings.Split(string(l), "\x00") }

// PoolStatsFunc reports acquired and idle database connections.
type PoolStatsFunc func() (acquired, idle int32)

// Metrics collects HTTP and booking metrics in memory.
type Metrics struct {
	mu        sync.RWMutex
	durations map[labelSet]*histogram // method, route, status
	outcomes  map[labelSet]*int64     // operation, outcome
	active    int64
	poolStats PoolStatsFunc
}

func NewMetrics() *Metrics {
	return &Metrics{
		durations: make(map[labelSet]*histogram),
		outcomes:  make(map[labelSet]*int64),
	}
}

// WithPoolStats exposes database pool gauges on scrape.
func (m *Metrics) WithPoolStats(f PoolStatsFunc) *Metrics {
	m.poolStats = f
	return m
}

func (m *Metrics) histogram(key labelSet) *histogram {
	m.mu.RLock()
	h, ok := m.durations[key]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.durations[key]; !ok {
		h = newHistogram(durationBuckets)
		m.durations[key] = h
	}
	return h
}

// RecordOutcome counts one booking operation. outcome is "ok" or an error
// code such as "conflict".
func (m *Metrics) RecordOutcome(operation, outcome string) {
	key := labels(operation, outcome)
	m.mu.RLock()
	p, ok := m.outcomes[key]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if p, ok = m.outcomes[key]; !ok {
			p = new(int64)
			m.outcomes[key] = p
		}
		m.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
}

// Outcome returns the count recorded for operation and outcome.
func (m *Metrics) Outcome(operation, outcome string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.outcomes[labels(operation, outcome)]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

// Middleware records request duration by method, route pattern and status.
// Errors not yet rendered are classified the way the error handler would.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			start := time.Now()
			err := next(c)
			atomic.AddInt64(&m.active, -1)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = apperr.HTTPStatus(err)
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.histogram(labels(c.Request().Method, route, strconv.Itoa(status))).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus text exposition.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, m.render())
	}
}

func (m *Metrics) render() string {
	var b strings.Builder

	m.mu.RLock()
	durKeys := sortedKeys(m.durations)
	outKeys := sortedKeys(m.outcomes)
	m.mu.RUnlock()

	b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
	b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
	for _, k := range durKeys {
		v := k.values()
		writeHistogram(&b, "http_server_request_duration_seconds",
			fmt.Sprintf("method=%q,route=%q,status_code=%q", v[0], v[1], v[2]), m.histogram(k))
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.active))

	b.WriteString("# HELP booking_operations_total Booking operations by outcome.\n")
	b.WriteString("# TYPE booking_operations_total counter\n")
	for _, k := range outKeys {
		v := k.values()
		fmt.Fprintf(&b, "booking_operations_total{operation=%q,outcome=%q} %d\n", v[0], v[1], m.Outcome(v[0], v[1]))
	}
	b.WriteByte('\n')

	if m.poolStats != nil {
		acquired, idle := m.poolStats()
		b.WriteString("# HELP db_pool_acquired_connections Connections currently in use.\n")
		b.WriteString("# TYPE db_pool_acquired_connections gauge\n")
		fmt.Fprintf(&b, "db_pool_acquired_connections %d\n", acquired)
		b.WriteString("# HELP db_pool_idle_connections Idle pooled connections.\n")
		b.WriteString("# TYPE db_pool_idle_connections gauge\n")
		fmt.Fprintf(&b, "db_pool_idle_connections %d\n", idle)
	}
	return b.String()
}

func writeHistogram(b *strings.Builder, name, lbls string, h *histogram) {
	cum := h.cumulative()
	for i, bound := range h.bounds {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, lbls, bound, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, lbls, h.Count())
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, lbls, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, lbls, h.Count())
}

func sortedKeys[V any](m map[labelSet]V) []labelSet {
	keys := make([]labelSet, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
