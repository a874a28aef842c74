// Package analysis reads the CSV results of a finished run and turns them
// into a console summary and an HTML chart report.
package analysis

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/example/odoo/loadtest/internal/metrics"
)

// ErrNoHistory is returned by Charts when no stats history was loaded.
var ErrNoHistory = errors.New("analysis: no timeline data available")

// Endpoint is one row of the stats file.
type Endpoint struct {
	Type        string
	Name        string
	Requests    int64
	Failures    int64
	AvgResponse float64
	P50         float64
	P95         float64
	MaxResponse float64
}

// Failure is one row of the failures file.
type Failure struct {
	Method      string
	Name        string
	Error       string
	Occurrences int64
}

// Sample is one Aggregated row of the stats history file.
type Sample struct {
	Timestamp   time.Time
	Users       int
	RPS         float64
	FailuresPS  float64
	AvgResponse float64
}

// FailureRate returns failures/s as a percentage of requests/s.
func (s Sample) FailureRate() float64 {
	if s.RPS == 0 {
		return 0
	}
	return s.FailuresPS / s.RPS * 100
}

// Results holds whatever files of one run were found. A nil slice means
// the corresponding file was absent.
type Results struct {
	Prefix   string
	Stats    []Endpoint
	Failures []Failure
	History  []Sample
}

// Load reads <prefix>_stats.csv, <prefix>_failures.csv and
// <prefix>_stats_history.csv. Missing files are skipped.
func Load(prefix string) (*Results, error) {
	r := &Results{Prefix: prefix}

	var err error
	if r.Stats, err = loadFile(prefix+metrics.StatsSuffix, parseEndpoint); err != nil {
		return nil, err
	}
	if r.Failures, err = loadFile(prefix+metrics.FailuresSuffix, parseFailure); err != nil {
		return nil, err
	}
	samples, err := loadFile(prefix+metrics.HistorySuffix, parseSample)
	if err != nil {
		return nil, err
	}
	if samples != nil {
		// Full history files also carry per-name rows.
		r.History = make([]Sample, 0, len(samples))
		for _, s := range samples {
			if s.aggregated {
				r.History = append(r.History, s.Sample)
			}
		}
	}
	return r, nil
}

// ChartsPath is where Charts writes by default.
func (r *Results) ChartsPath() string { return r.Prefix + "_analysis.html" }

// Endpoints returns the stats rows without the Aggregated row.
func (r *Results) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(r.Stats))
	for _, e := range r.Stats {
		if e.Name != metrics.AggregatedName {
			out = append(out, e)
		}
	}
	return out
}

// Totals summarizes the per-endpoint rows.
type Totals struct {
	Requests    int64
	Failures    int64
	FailureRate float64
	AvgResponse float64
	P50         float64
	P95         float64
	MaxResponse float64
}

// Totals sums counts and averages the per-endpoint latency columns.
func (r *Results) Totals() Totals {
	eps := r.Endpoints()
	var t Totals
	if len(eps) == 0 {
		return t
	}
	var avg, p50, p95 float64
	for _, e := range eps {
		t.Requests += e.Requests
		t.Failures += e.Failures
		avg += e.AvgResponse
		p50 += e.P50
		p95 += e.P95
		t.MaxResponse = max(t.MaxResponse, e.MaxResponse)
	}
	n := float64(len(eps))
	t.AvgResponse, t.P50, t.P95 = avg/n, p50/n, p95/n
	if t.Requests > 0 {
		t.FailureRate = float64(t.Failures) / float64(t.Requests) * 100
	}
	return t
}

// Slowest returns up to n endpoints ordered by average response time.
func (r *Results) Slowest(n int) []Endpoint {
	eps := r.Endpoints()
	slices.SortStableFunc(eps, func(a, b Endpoint) int {
		return cmp.Compare(b.AvgResponse, a.AvgResponse)
	})
	return eps[:min(n, len(eps))]
}

// ErrorCount is the number of occurrences of one error message.
type ErrorCount struct {
	Error       string
	Occurrences int64
}

// TopFailures groups failures by error message and returns the n most
// frequent.
func (r *Results) TopFailures(n int) []ErrorCount {
	byError := make(map[string]int64)
	for _, f := range r.Failures {
		byError[f.Error] += f.Occurrences
	}
	out := make([]ErrorCount, 0, len(byError))
	for e, c := range byError {
		out = append(out, ErrorCount{Error: e, Occurrences: c})
	}
	slices.SortFunc(out, func(a, b ErrorCount) int {
		return cmp.Or(cmp.Compare(b.Occurrences, a.Occurrences), cmp.Compare(a.Error, b.Error))
	})
	return out[:min(n, len(out))]
}

// row gives named access to one CSV record.
type row struct {
	cols   map[string]int
	record []string
	line   int
}

func (r row) str(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return r.record[i]
}

func (r row) float(col string) (float64, error) {
	s := r.str(col)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: column %q: %w", r.line, col, err)
	}
	return v, nil
}

func (r row) int(col string) (int64, error) {
	v, err := r.float(col)
	return int64(v), err
}

func loadFile[T any](path string, parse func(row) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	out, err := parseCSV(f, parse)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

func parseCSV[T any](r io.Reader, parse func(row) (T, error)) ([]T, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}

	out := []T{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := parse(row{cols: cols, record: record, line: line})
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func parseEndpoint(r row) (Endpoint, error) {
	e := Endpoint{Type: r.str("Type"), Name: r.str("Name")}
	var errs [6]error
	e.Requests, errs[0] = r.int("Request Count")
	e.Failures, errs[1] = r.int("Failure Count")
	e.AvgResponse, errs[2] = r.float("Average Response Time")
	e.P50, errs[3] = r.float("50%")
	e.P95, errs[4] = r.float("95%")
	e.MaxResponse, errs[5] = r.float("Max Response Time")
	return e, errors.Join(errs[:]...)
}

func parseFailure(r row) (Failure, error) {
	n, err := r.int("Occurrences")
	return Failure{
		Method:      r.str("Method"),
		Name:        r.str("Name"),
		Error:       r.str("Error"),
		Occurrences: n,
	}, err
}

type historyRow struct {
	Sample
	aggregated bool
}

func parseSample(r row) (historyRow, error) {
	ts, err := r.int("Timestamp")
	if err != nil {
		return historyRow{}, err
	}
	users, err := r.int("User Count")
	if err != nil {
		return historyRow{}, err
	}
	s := Sample{Timestamp: time.Unix(ts, 0), Users: int(users)}
	var errs [3]error
	s.RPS, errs[0] = r.float("Requests/s")
	s.FailuresPS, errs[1] = r.float("Failures/s")
	s.AvgResponse, errs[2] = r.float("Total Average Response Time")
	return historyRow{Sample: s, aggregated: r.str("Name") == metrics.AggregatedName}, errors.Join(errs[:]...)
}
