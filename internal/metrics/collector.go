// Package metrics provides metrics collection and reporting for the load tester.
package metrics

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives one Result per completed request.
// Implementations must be safe for concurrent use.
type Sink interface {
	Record(result Result)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Result)

// Record calls f(result).
func (f SinkFunc) Record(result Result) { f(result) }

// Tee returns a Sink that forwards every result to each non-nil sink.
func Tee(sinks ...Sink) Sink {
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return SinkFunc(func(r Result) {
		for _, s := range active {
			s.Record(r)
		}
	})
}

// Discard is a Sink that drops every result.
var Discard Sink = SinkFunc(func(Result) {})

// Result represents the outcome of a single request.
type Result struct {
	// Name is the human-readable report name (e.g. "Fetch Partners Data").
	Name         string
	Method       string
	StatusCode   int
	Latency      time.Duration
	Success      bool
	ResponseSize int64
	// Error is the failure detail; empty on success.
	Error     string
	Timestamp time.Time
}

// Percentiles reported for every entry, in CSV column order.
var Percentiles = []float64{0.50, 0.66, 0.75, 0.80, 0.90, 0.95, 0.98, 0.99, 0.999, 0.9999, 1.0}

// AggregatedName is the entry name used for the totals row.
const AggregatedName = "Aggregated"

const (
	defaultMaxSamples      = 10000
	defaultTotalMaxSamples = 100000
)

type entryKey struct {
	method string
	name   string
}

type failureKey struct {
	method string
	name   string
	err    string
}

// entry accumulates statistics for one (method, name) pair.
type entry struct {
	requests     int64
	failures     int64
	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	totalBytes   int64
	samples      []time.Duration
	maxSamples   int
}

func newEntry(maxSamples int) *entry {
	return &entry{maxSamples: maxSamples, samples: make([]time.Duration, 0, 64)}
}

func (e *entry) add(r Result) {
	e.requests++
	if !r.Success {
		e.failures++
	}
	e.totalLatency += r.Latency
	e.totalBytes += r.ResponseSize
	if e.requests == 1 || r.Latency < e.minLatency {
		e.minLatency = r.Latency
	}
	if r.Latency > e.maxLatency {
		e.maxLatency = r.Latency
	}

	// Sliding window: keep the most recent half once the cap is reached.
	if len(e.samples) >= e.maxSamples {
		e.samples = append(e.samples[:0], e.samples[len(e.samples)-e.maxSamples/2:]...)
	}
	e.samples = append(e.samples, r.Latency)
}

// Collector aggregates request results into per-name and total statistics,
// plus a failure table keyed by (method, name, error).
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	mu       sync.Mutex
	entries  map[entryKey]*entry
	total    *entry
	failures map[failureKey]int64

	users atomic.Int64

	startTime time.Time
	endTime   time.Time
	now       func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		entries:  make(map[entryKey]*entry),
		total:    newEntry(defaultTotalMaxSamples),
		failures: make(map[failureKey]int64),
		now:      time.Now,
	}
}

// Start marks the beginning of metrics collection.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = c.now()
	c.endTime = time.Time{}
}

// Stop marks the end of metrics collection.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = c.now()
}

// Record records a request result.
func (c *Collector) Record(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := entryKey{method: r.Method, name: r.Name}
	e, ok := c.entries[key]
	if !ok {
		e = newEntry(defaultMaxSamples)
		c.entries[key] = e
	}
	e.add(r)
	c.total.add(r)

	if !r.Success {
		c.failures[failureKey{method: r.Method, name: r.Name, err: r.Error}]++
	}
}

// SetUsers sets the number of running actors.
func (c *Collector) SetUsers(n int) { c.users.Store(int64(n)) }

// AddUsers adjusts the number of running actors by delta.
func (c *Collector) AddUsers(delta int) { c.users.Add(int64(delta)) }

// Users returns the number of running actors.
func (c *Collector) Users() int { return int(c.users.Load()) }

// EntryStats is a point-in-time view of one stats entry.
type EntryStats struct {
	Method        string
	Name          string
	Requests      int64
	Failures      int64
	MinLatency    time.Duration
	MaxLatency    time.Duration
	AvgLatency    time.Duration
	MedianLatency time.Duration
	AvgSize       float64
	RPS           float64
	FailuresPerS  float64
	// Percentiles aligns with the package level Percentiles slice.
	Percentiles []time.Duration
}

// FailureRate returns failures/requests as a percentage.
func (s EntryStats) FailureRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Requests) * 100
}

// FailureStats is one row of the failure table.
type FailureStats struct {
	Method      string
	Name        string
	Error       string
	Occurrences int64
}

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	StartTime time.Time
	Taken     time.Time
	Elapsed   time.Duration
	Users     int
	// Entries are sorted by name, then method.
	Entries  []EntryStats
	Total    EntryStats
	Failures []FailureStats
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	taken := c.now()
	if !c.endTime.IsZero() {
		taken = c.endTime
	}
	var elapsed time.Duration
	if !c.startTime.IsZero() {
		elapsed = taken.Sub(c.startTime)
	}

	snap := Snapshot{
		StartTime: c.startTime,
		Taken:     taken,
		Elapsed:   elapsed,
		Users:     c.Users(),
		Entries:   make([]EntryStats, 0, len(c.entries)),
		Failures:  make([]FailureStats, 0, len(c.failures)),
	}

	for key, e := range c.entries {
		snap.Entries = append(snap.Entries, e.stats(key.method, key.name, elapsed))
	}
	slices.SortFunc(snap.Entries, func(a, b EntryStats) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Method, b.Method))
	})
	snap.Total = c.total.stats("", AggregatedName, elapsed)

	for key, n := range c.failures {
		snap.Failures = append(snap.Failures, FailureStats{
			Method: key.method, Name: key.name, Error: key.err, Occurrences: n,
		})
	}
	slices.SortFunc(snap.Failures, func(a, b FailureStats) int {
		return cmp.Or(cmp.Compare(b.Occurrences, a.Occurrences), cmp.Compare(a.Name, b.Name), cmp.Compare(a.Error, b.Error))
	})

	return snap
}

func (e *entry) stats(method, name string, elapsed time.Duration) EntryStats {
	s := EntryStats{
		Method:      method,
		Name:        name,
		Requests:    e.requests,
		Failures:    e.failures,
		MinLatency:  e.minLatency,
		MaxLatency:  e.maxLatency,
		Percentiles: make([]time.Duration, len(Percentiles)),
	}
	if e.requests > 0 {
		s.AvgLatency = e.totalLatency / time.Duration(e.requests)
		s.AvgSize = float64(e.totalBytes) / float64(e.requests)
	}
	if elapsed > 0 {
		s.RPS = float64(e.requests) / elapsed.Seconds()
		s.FailuresPerS = float64(e.failures) / elapsed.Seconds()
	}

	if len(e.samples) > 0 {
		sorted := slices.Clone(e.samples)
		slices.Sort(sorted)
		for i, p := range Percentiles {
			s.Percentiles[i] = sorted[percentileIndex(len(sorted), p)]
		}
		s.MedianLatency = s.Percentiles[0]
	}
	return s
}

// percentileIndex returns the nearest-rank index for a given percentile.
// The epsilon absorbs float error in products like 100*0.66.
func percentileIndex(n int, percentile float64) int {
	idx := int(math.Ceil(float64(n)*percentile-1e-9)) - 1
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[entryKey]*entry)
	c.total = newEntry(defaultTotalMaxSamples)
	c.failures = make(map[failureKey]int64)
	c.startTime = time.Time{}
	c.endTime = time.Time{}
}
