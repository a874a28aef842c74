package metrics

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Console prints periodic and final stats tables for headless runs.
//
// Thread Safety: Safe for concurrent use.
type Console struct {
	mu sync.Mutex

	writer io.Writer
	config ConsoleConfig

	isRunning bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// ConsoleConfig holds configuration for console output.
type ConsoleConfig struct {
	// Writer is the output destination. Default: os.Stdout
	Writer io.Writer

	// RefreshInterval is how often a stats table is printed. Default: 2s
	RefreshInterval time.Duration

	// MaxNameWidth truncates long request names. Default: 40
	MaxNameWidth int

	// UseColors enables ANSI color codes. Default: false
	UseColors bool
}

// DefaultConsoleConfig returns default configuration.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		Writer:          os.Stdout,
		RefreshInterval: 2 * time.Second,
		MaxNameWidth:    40,
	}
}

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// NewConsole creates a new console output handler.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 2 * time.Second
	}
	if config.MaxNameWidth <= 0 {
		config.MaxNameWidth = 40
	}

	return &Console{
		writer: config.Writer,
		config: config,
	}
}

func (c *Console) color(code string) string {
	if c.config.UseColors {
		return code
	}
	return ""
}

// Start begins periodic stats output from the collector.
func (c *Console) Start(collector *Collector) {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.updateLoop(collector)
}

// Stop stops the periodic output and waits for the loop to exit.
func (c *Console) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	close(c.stopCh)
	c.mu.Unlock()

	<-c.doneCh
}

func (c *Console) updateLoop(collector *Collector) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.PrintStats(collector.Snapshot())
		}
	}
}

// PrintStats prints the request table for a snapshot.
func (c *Console) PrintStats(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.writer
	nw := c.config.MaxNameWidth

	fmt.Fprintf(w, "%s%-8s %-*s %9s %12s | %7s %7s %7s %7s | %7s %10s%s\n",
		c.color(colorBold), "Type", nw, "Name", "# reqs", "# fails",
		"Avg", "Min", "Max", "Med", "req/s", "failures/s", c.color(colorReset))
	fmt.Fprintln(w, strings.Repeat("-", nw+92))

	for _, e := range snapshot.Entries {
		c.writeRow(w, e)
	}
	fmt.Fprintln(w, strings.Repeat("-", nw+92))
	c.writeRow(w, snapshot.Total)
	fmt.Fprintln(w)
}

func (c *Console) writeRow(w io.Writer, e EntryStats) {
	fails := fmt.Sprintf("%d(%.2f%%)", e.Failures, e.FailureRate())
	color := c.color(colorGreen)
	if e.Failures > 0 {
		color = c.color(colorRed)
	}
	fmt.Fprintf(w, "%-8s %-*s %9d %s%12s%s | %7d %7d %7d %7d | %7.2f %10.2f\n",
		e.Method, c.config.MaxNameWidth, truncate(e.Name, c.config.MaxNameWidth),
		e.Requests, color, fails, c.color(colorReset),
		e.AvgLatency.Milliseconds(), e.MinLatency.Milliseconds(),
		e.MaxLatency.Milliseconds(), e.MedianLatency.Milliseconds(),
		e.RPS, e.FailuresPerS)
}

// PrintFinalReport prints the stats table, the percentile table and the failure table.
func (c *Console) PrintFinalReport(snapshot Snapshot) {
	c.PrintStats(snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.writer
	nw := c.config.MaxNameWidth

	fmt.Fprintf(w, "%sResponse time percentiles (approximated)%s\n", c.color(colorCyan), c.color(colorReset))
	header := fmt.Sprintf("%-8s %-*s", "Type", nw, "Name")
	for _, p := range Percentiles {
		header += fmt.Sprintf(" %7s", PercentileLabel(p))
	}
	fmt.Fprintln(w, header+" # reqs")
	fmt.Fprintln(w, strings.Repeat("-", len(header)+7))

	rows := append(append([]EntryStats{}, snapshot.Entries...), snapshot.Total)
	for _, e := range rows {
		line := fmt.Sprintf("%-8s %-*s", e.Method, nw, truncate(e.Name, nw))
		for _, d := range e.Percentiles {
			line += fmt.Sprintf(" %7d", d.Milliseconds())
		}
		fmt.Fprintf(w, "%s %6d\n", line, e.Requests)
	}
	fmt.Fprintln(w)

	if len(snapshot.Failures) == 0 {
		return
	}
	fmt.Fprintf(w, "%sError report%s\n", c.color(colorYellow), c.color(colorReset))
	fmt.Fprintf(w, "%-12s %s\n", "# occurrences", "Error")
	for _, f := range snapshot.Failures {
		fmt.Fprintf(w, "%-13d %s %s: %s\n", f.Occurrences, f.Method, f.Name, f.Error)
	}
	fmt.Fprintln(w)
}

// PercentileLabel renders a percentile the way the stats files name it ("50%", "99.9%", "100%").
func PercentileLabel(p float64) string {
	s := fmt.Sprintf("%.2f", p*100)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + "%"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
