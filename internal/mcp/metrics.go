package mcp

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const sampleRingSize = 1000

// Metrics aggregates request counters and a rolling window of response times.
// Counters are atomics; the sample ring and per-method map take a short lock.
type Metrics struct {
	start time.Time

	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64

	mu       sync.Mutex
	samples  [sampleRingSize]float64 // milliseconds
	next     int
	filled   int
	byMethod map[string]int64
}

// NewMetrics starts the uptime clock.
func NewMetrics() *Metrics {
	return &Metrics{
		start:    time.Now(),
		byMethod: make(map[string]int64),
	}
}

// Record accounts one completed request.
func (m *Metrics) Record(method string, d time.Duration, ok bool) {
	m.total.Add(1)
	if ok {
		m.successful.Add(1)
	} else {
		m.failed.Add(1)
	}

	m.mu.Lock()
	m.samples[m.next] = float64(d.Microseconds()) / 1000
	m.next = (m.next + 1) % sampleRingSize
	if m.filled < sampleRingSize {
		m.filled++
	}
	m.byMethod[method]++
	m.mu.Unlock()
}

// Snapshot is the GET /stats payload.
type Snapshot struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	AvgResponseMs      float64          `json:"avg_response_ms"`
	UptimeSeconds      float64          `json:"uptime_seconds"`
	RequestsByMethod   map[string]int64 `json:"requests_by_method"`
}

// Stats returns the current aggregate view.
func (m *Metrics) Stats() Snapshot {
	snap := Snapshot{
		TotalRequests:      m.total.Load(),
		SuccessfulRequests: m.successful.Load(),
		FailedRequests:     m.failed.Load(),
		UptimeSeconds:      time.Since(m.start).Seconds(),
		RequestsByMethod:   make(map[string]int64),
	}

	m.mu.Lock()
	if m.filled > 0 {
		sum := 0.0
		for i := 0; i < m.filled; i++ {
			sum += m.samples[i]
		}
		snap.AvgResponseMs = sum / float64(m.filled)
	}
	for method, n := range m.byMethod {
		snap.RequestsByMethod[method] = n
	}
	m.mu.Unlock()
	return snap
}

// PrometheusText renders the GET /metrics body.
func (m *Metrics) PrometheusText() string {
	snap := m.Stats()
	var b strings.Builder

	b.WriteString("# TYPE codewarden_requests_total counter\n")
	fmt.Fprintf(&b, "codewarden_requests_total %d\n", snap.TotalRequests)
	b.WriteString("# TYPE codewarden_requests_successful_total counter\n")
	fmt.Fprintf(&b, "codewarden_requests_successful_total %d\n", snap.SuccessfulRequests)
	b.WriteString("# TYPE codewarden_requests_failed_total counter\n")
	fmt.Fprintf(&b, "codewarden_requests_failed_total %d\n", snap.FailedRequests)
	b.WriteString("# TYPE codewarden_response_ms_avg gauge\n")
	fmt.Fprintf(&b, "codewarden_response_ms_avg %.3f\n", snap.AvgResponseMs)
	b.WriteString("# TYPE codewarden_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "codewarden_uptime_seconds %.0f\n", snap.UptimeSeconds)

	methods := make([]string, 0, len(snap.RequestsByMethod))
	for method := range snap.RequestsByMethod {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	b.WriteString("# TYPE codewarden_requests_by_method_total counter\n")
	for _, method := range methods {
		fmt.Fprintf(&b, "codewarden_requests_by_method_total{method=%q} %d\n",
			method, snap.RequestsByMethod[method])
	}
	return b.String()
}
