package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

// File suffixes appended to the CSV prefix.
const (
	StatsSuffix    = "_stats.csv"
	FailuresSuffix = "_failures.csv"
	HistorySuffix  = "_stats_history.csv"
)

// StatsHeader returns the column layout of the stats file.
func StatsHeader() []string {
	h := []string{
		"Type", "Name", "Request Count", "Failure Count",
		"Median Response Time", "Average Response Time", "Min Response Time", "Max Response Time",
		"Average Content Size", "Requests/s", "Failures/s",
	}
	return append(h, percentileColumns()...)
}

// FailuresHeader returns the column layout of the failures file.
func FailuresHeader() []string {
	return []string{"Method", "Name", "Error", "Occurrences"}
}

// HistoryHeader returns the column layout of the stats history file.
func HistoryHeader() []string {
	h := []string{"Timestamp", "User Count", "Type", "Name", "Requests/s", "Failures/s"}
	h = append(h, percentileColumns()...)
	return append(h,
		"Total Request Count", "Total Failure Count",
		"Total Median Response Time", "Total Average Response Time",
		"Total Min Response Time", "Total Max Response Time",
		"Total Average Content Size",
	)
}

func percentileColumns() []string {
	cols := make([]string, len(Percentiles))
	for i, p := range Percentiles {
		cols[i] = PercentileLabel(p)
	}
	return cols
}

// WriteStats writes the stats table, one row per entry plus the Aggregated row.
func WriteStats(w io.Writer, snapshot Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(StatsHeader()); err != nil {
		return err
	}
	rows := append(append([]EntryStats{}, snapshot.Entries...), snapshot.Total)
	for _, e := range rows {
		row := []string{
			e.Method, e.Name,
			strconv.FormatInt(e.Requests, 10), strconv.FormatInt(e.Failures, 10),
			millis(e.MedianLatency), avgMillis(e.AvgLatency), millis(e.MinLatency), millis(e.MaxLatency),
			formatFloat(e.AvgSize), formatFloat(e.RPS), formatFloat(e.FailuresPerS),
		}
		row = append(row, percentileValues(e)...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFailures writes the failure table.
func WriteFailures(w io.Writer, snapshot Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FailuresHeader()); err != nil {
		return err
	}
	for _, f := range snapshot.Failures {
		if err := cw.Write([]string{f.Method, f.Name, f.Error, strconv.FormatInt(f.Occurrences, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVWriter produces the stats, failures and stats history files for one run.
//
// Thread Safety: Safe for concurrent use.
type CSVWriter struct {
	mu          sync.Mutex
	prefix      string
	fullHistory bool

	history *os.File
	hw      *csv.Writer

	last     map[entryKey]counts
	lastTime time.Time
}

type counts struct {
	requests int64
	failures int64
}

// NewCSVWriter creates the history file for prefix and writes its header.
// With fullHistory, every history tick also writes one row per entry.
func NewCSVWriter(prefix string, fullHistory bool) (*CSVWriter, error) {
	f, err := os.Create(prefix + HistorySuffix)
	if err != nil {
		return nil, fmt.Errorf("creating stats history file: %w", err)
	}
	w := &CSVWriter{
		prefix:      prefix,
		fullHistory: fullHistory,
		history:     f,
		hw:          csv.NewWriter(f),
		last:        make(map[entryKey]counts),
	}
	if err := w.hw.Write(HistoryHeader()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing stats history header: %w", err)
	}
	w.hw.Flush()
	return w, w.hw.Error()
}

// WriteHistory appends one sample to the history file. Requests/s and
// Failures/s are the rates since the previous sample.
func (w *CSVWriter) WriteHistory(snapshot Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	window := snapshot.Elapsed
	if !w.lastTime.IsZero() {
		window = snapshot.Taken.Sub(w.lastTime)
	}
	w.lastTime = snapshot.Taken

	ts := strconv.FormatInt(snapshot.Taken.Unix(), 10)
	users := strconv.Itoa(snapshot.Users)

	if w.fullHistory {
		for _, e := range snapshot.Entries {
			if err := w.hw.Write(w.historyRow(ts, users, e, window)); err != nil {
				return err
			}
		}
	}
	if err := w.hw.Write(w.historyRow(ts, users, snapshot.Total, window)); err != nil {
		return err
	}
	w.hw.Flush()
	return w.hw.Error()
}

func (w *CSVWriter) historyRow(ts, users string, e EntryStats, window time.Duration) []string {
	key := entryKey{method: e.Method, name: e.Name}
	prev := w.last[key]
	w.last[key] = counts{requests: e.Requests, failures: e.Failures}

	var rps, fps float64
	if window > 0 {
		rps = float64(e.Requests-prev.requests) / window.Seconds()
		fps = float64(e.Failures-prev.failures) / window.Seconds()
	}

	row := []string{ts, users, e.Method, e.Name, formatFloat(rps), formatFloat(fps)}
	if e.Requests == 0 {
		for range Percentiles {
			row = append(row, "N/A")
		}
	} else {
		row = append(row, percentileValues(e)...)
	}
	return append(row,
		strconv.FormatInt(e.Requests, 10), strconv.FormatInt(e.Failures, 10),
		millis(e.MedianLatency), avgMillis(e.AvgLatency),
		millis(e.MinLatency), millis(e.MaxLatency),
		formatFloat(e.AvgSize),
	)
}

// Close writes the stats and failures files for the final snapshot and
// closes the history file.
func (w *CSVWriter) Close(final Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.hw.Flush()
	histErr := w.hw.Error()
	if err := w.history.Close(); err != nil && histErr == nil {
		histErr = err
	}

	if err := writeFile(w.prefix+StatsSuffix, final, WriteStats); err != nil {
		return err
	}
	if err := writeFile(w.prefix+FailuresSuffix, final, WriteFailures); err != nil {
		return err
	}
	return histErr
}

func writeFile(path string, snapshot Snapshot, write func(io.Writer, Snapshot) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f, snapshot); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func percentileValues(e EntryStats) []string {
	vals := make([]string, len(e.Percentiles))
	for i, d := range e.Percentiles {
		vals[i] = millis(d)
	}
	return vals
}

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func avgMillis(d time.Duration) string {
	return formatFloat(float64(d) / float64(time.Millisecond))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
