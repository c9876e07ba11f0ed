package transfer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters is the progress state of one pass. Every worker shares the same
// instance; all access goes through the mutex.
type Counters struct {
	mu        sync.Mutex
	pass      string
	start     time.Time
	success   int64
	fail      int64
	retry     int64
	duplicate int64
	metrics   *Metrics
}

// NewCounters creates zeroed counters for pass. metrics may be nil.
func NewCounters(pass string, metrics *Metrics) *Counters {
	return &Counters{
		pass:    pass,
		start:   time.Now(),
		metrics: metrics,
	}
}

// Add records n records with the given outcome
func (c *Counters) Add(outcome Outcome, n int) {
	if n <= 0 {
		return
	}

	c.mu.Lock()
	switch outcome {
	case OutcomeSuccess:
		c.success += int64(n)
	case OutcomePermanentFailure:
		c.fail += int64(n)
	case OutcomeRetryCandidate:
		c.retry += int64(n)
	case OutcomeUpdateCandidate:
		c.duplicate += int64(n)
	}
	c.mu.Unlock()

	c.metrics.recordOutcome(c.pass, outcome, n)
}

// Snapshot returns a consistent copy of the counters
func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterSnapshot{
		Success:   c.success,
		Fail:      c.fail,
		Retry:     c.retry,
		Duplicate: c.duplicate,
		Elapsed:   time.Since(c.start),
	}
}

// CounterSnapshot is a point-in-time copy of Counters
type CounterSnapshot struct {
	Success   int64
	Fail      int64
	Retry     int64
	Duplicate int64
	Elapsed   time.Duration
}

// Total returns the number of records with any outcome
func (s CounterSnapshot) Total() int64 {
	return s.Success + s.Fail + s.Retry + s.Duplicate
}

// SuccessRate returns the percentage of processed records that succeeded
func (s CounterSnapshot) SuccessRate() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return math.Round(float64(s.Success)/float64(total)*10000) / 100
}

// RecordsPerMinute returns the average throughput so far
func (s CounterSnapshot) RecordsPerMinute() float64 {
	minutes := s.Elapsed.Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(s.Total()) / minutes
}

// String renders the compact progress line
func (s CounterSnapshot) String() string {
	return fmt.Sprintf("S:%d F:%d R:%d D:%d SR:%.2f%% AVG:%.0frec/m",
		s.Success, s.Fail, s.Retry, s.Duplicate, s.SuccessRate(), s.RecordsPerMinute())
}

// Metrics mirrors pass progress into Prometheus collectors
type Metrics struct {
	records *prometheus.CounterVec
	calls   *prometheus.HistogramVec
}

// NewMetrics registers the dataload collectors with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataload",
			Name:      "records_total",
			Help:      "Records processed, by pass and outcome.",
		}, []string{"pass", "outcome"}),
		calls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dataload",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of entity store calls, by pass and result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pass", "result"}),
	}

	for _, c := range []prometheus.Collector{m.records, m.calls} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) recordOutcome(pass string, outcome Outcome, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(pass, outcome.String()).Add(float64(n))
}

// ObserveCall records the duration of one remote call
func (m *Metrics) ObserveCall(pass string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.calls.WithLabelValues(pass, result).Observe(d.Seconds())
}
