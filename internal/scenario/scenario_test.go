package scenario

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/odoo/loadtest/internal/history"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, []string{"light", "medium", "heavy", "stress"}, table.Names())

	tests := []struct {
		name      string
		users     int
		spawnRate int
		duration  string
	}{
		{"light", 10, 2, "5m"},
		{"medium", 50, 5, "15m"},
		{"heavy", 100, 10, "30m"},
		{"stress", 200, 20, "10m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := table.Get(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.users, d.Users)
			assert.Equal(t, tt.spawnRate, d.SpawnRate)
			assert.Equal(t, tt.duration, d.Duration)
			assert.NotEmpty(t, d.Description)
		})
	}

	_, ok := table.Get("nope")
	assert.False(t, ok)
}

func TestDescriptor_Validate(t *testing.T) {
	valid := Descriptor{Name: "soak", Users: 20, SpawnRate: 2, Duration: "2h"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
	}{
		{"missing name", func(d *Descriptor) { d.Name = "" }},
		{"reserved name", func(d *Descriptor) { d.Name = "all" }},
		{"zero users", func(d *Descriptor) { d.Users = 0 }},
		{"zero spawn rate", func(d *Descriptor) { d.SpawnRate = 0 }},
		{"bad duration", func(d *Descriptor) { d.Duration = "five minutes" }},
		{"zero duration", func(d *Descriptor) { d.Duration = "0s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidScenario)
		})
	}
}

func TestNewTable_Errors(t *testing.T) {
	_, err := NewTable(nil)
	assert.ErrorIs(t, err, ErrInvalidScenario)

	d := Descriptor{Name: "a", Users: 1, SpawnRate: 1, Duration: "1m"}
	_, err = NewTable([]Descriptor{d, d})
	assert.ErrorIs(t, err, ErrInvalidScenario)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	content := `version: "1"
scenarios:
  - name: smoke
    users: 1
    spawn_rate: 1
    duration: 1m
    description: Smoke test
  - name: soak
    users: 30
    spawn_rate: 3
    duration: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"smoke", "soak"}, table.Names())
	d, ok := table.Get("soak")
	require.True(t, ok)
	assert.Equal(t, 30, d.Users)
	assert.Equal(t, "2h", d.Duration)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid entry", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("scenarios:\n  - name: x\n    users: 0\n    spawn_rate: 1\n    duration: 1m\n"), 0o644))
		_, err := LoadFile(bad)
		assert.ErrorIs(t, err, ErrInvalidScenario)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		bad := filepath.Join(dir, "malformed.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("scenarios: [\n"), 0o644))
		_, err := LoadFile(bad)
		assert.Error(t, err)
	})
}

func TestInvocation_Args(t *testing.T) {
	inv := Invocation{
		Host:        "https://odoo.example.com",
		Users:       10,
		SpawnRate:   2,
		Duration:    "5m",
		CSVPrefix:   "results_light_20250301_101500",
		LogFile:     "odooload_light_20250301_101500.log",
		FullHistory: true,
		Headless:    true,
	}
	assert.Equal(t, []string{
		"--host", "https://odoo.example.com",
		"-u", "10", "-r", "2", "-t", "5m",
		"--csv", "results_light_20250301_101500",
		"--csv-full-history",
		"--logfile", "odooload_light_20250301_101500.log",
		"--headless",
	}, inv.Args())

	inv.Headless = false
	assert.NotContains(t, inv.Args(), "--headless")
}

// fakeLauncher records invocations and fails the named scenarios.
type fakeLauncher struct {
	mu    sync.Mutex
	calls []Invocation
	fail  map[string]bool
}

func (f *fakeLauncher) Launch(_ context.Context, inv Invocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	if f.fail[inv.Scenario.Name] {
		return errors.New("exit status 1")
	}
	return nil
}

type fakeHistory struct {
	mu   sync.Mutex
	runs []history.Run
}

func (f *fakeHistory) Record(_ context.Context, run history.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

type fakeMonitor struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeMonitor) Run(ctx context.Context, path string) error {
	<-ctx.Done()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return nil
}

type testRunner struct {
	*Runner
	launcher *fakeLauncher
	history  *fakeHistory
	out      *bytes.Buffer
	sleeps   []time.Duration
}

func newTestRunner(t *testing.T, cfg Config) *testRunner {
	t.Helper()
	tr := &testRunner{
		launcher: &fakeLauncher{fail: map[string]bool{}},
		history:  &fakeHistory{},
		out:      &bytes.Buffer{},
	}
	cfg.Launcher = tr.launcher
	cfg.History = tr.history
	cfg.Output = tr.out
	r, err := NewRunner(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC) }
	r.sleep = func(ctx context.Context, d time.Duration) error {
		tr.sleeps = append(tr.sleeps, d)
		return ctx.Err()
	}
	tr.Runner = r
	return tr
}

func TestNewRunner_RequiresLauncher(t *testing.T) {
	_, err := NewRunner(Config{}, nil)
	assert.Error(t, err)

	_, err = NewRunner(Config{Launcher: &fakeLauncher{}, Cooldown: -time.Second}, nil)
	assert.ErrorIs(t, err, ErrInvalidScenario)
}

func TestRunner_RunUnknownScenario(t *testing.T) {
	tr := newTestRunner(t, Config{})

	err := tr.Run(context.Background(), "nope", "http://localhost:8069", false)
	assert.ErrorIs(t, err, ErrUnknownScenario)
	assert.Empty(t, tr.launcher.calls)
	assert.Empty(t, tr.history.runs)
	assert.Contains(t, tr.out.String(), "Unknown scenario: nope")
	assert.Contains(t, tr.out.String(), "Available scenarios: light, medium, heavy, stress")
}

func TestRunner_RunLight(t *testing.T) {
	tr := newTestRunner(t, Config{})

	err := tr.Run(context.Background(), "light", "http://localhost:8069", false)
	require.NoError(t, err)

	require.Len(t, tr.launcher.calls, 1)
	inv := tr.launcher.calls[0]
	assert.Equal(t, 10, inv.Users)
	assert.Equal(t, 2, inv.SpawnRate)
	assert.Equal(t, "5m", inv.Duration)
	assert.Equal(t, "http://localhost:8069", inv.Host)
	assert.Equal(t, "results_light_20250301_101500", inv.CSVPrefix)
	assert.Equal(t, "odooload_light_20250301_101500.log", inv.LogFile)
	assert.True(t, inv.FullHistory)
	assert.False(t, inv.Headless)

	out := tr.out.String()
	assert.Contains(t, out, "Running scenario: Light load - 10 users, basic operations")
	assert.Contains(t, out, "Command: --host http://localhost:8069 -u 10 -r 2 -t 5m")
	assert.Contains(t, out, "Scenario 'light' completed successfully!")
	assert.Contains(t, out, "Results saved with timestamp: 20250301_101500")

	require.Len(t, tr.history.runs, 1)
	assert.Equal(t, history.StatusSucceeded, tr.history.runs[0].Status)
	assert.Equal(t, "results_light_20250301_101500", tr.history.runs[0].CSVPrefix)
}

func TestRunner_RunWithDir(t *testing.T) {
	tr := newTestRunner(t, Config{Dir: "out"})
	require.NoError(t, tr.Run(context.Background(), "medium", "http://localhost:8069", true))
	inv := tr.launcher.calls[0]
	assert.Equal(t, filepath.Join("out", "results_medium_20250301_101500"), inv.CSVPrefix)
	assert.True(t, inv.Headless)
}

func TestRunner_RunLaunchFailure(t *testing.T) {
	tr := newTestRunner(t, Config{})
	tr.launcher.fail["heavy"] = true

	err := tr.Run(context.Background(), "heavy", "http://localhost:8069", true)
	assert.ErrorIs(t, err, ErrSubprocessFailed)
	assert.Contains(t, tr.out.String(), "Test failed with error: exit status 1")

	require.Len(t, tr.history.runs, 1)
	assert.Equal(t, history.StatusFailed, tr.history.runs[0].Status)
	assert.Equal(t, "exit status 1", tr.history.runs[0].Error)
}

func TestRunner_RunAll(t *testing.T) {
	tr := newTestRunner(t, Config{Cooldown: time.Minute})
	tr.launcher.fail["medium"] = true

	err := tr.RunAll(context.Background(), "http://localhost:8069")
	assert.ErrorIs(t, err, ErrSubprocessFailed)

	var names []string
	for _, inv := range tr.launcher.calls {
		names = append(names, inv.Scenario.Name)
		assert.True(t, inv.Headless)
	}
	assert.Equal(t, []string{"light", "medium", "heavy", "stress"}, names)
	// Cool-down only between runs.
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute}, tr.sleeps)
	assert.Contains(t, tr.out.String(), "Waiting 60 seconds before next scenario...")
	assert.Contains(t, tr.out.String(), "Starting scenario: stress")
	assert.Len(t, tr.history.runs, 4)
}

func TestRunner_RunAllStopsOnCancel(t *testing.T) {
	tr := newTestRunner(t, Config{Cooldown: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	tr.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := tr.RunAll(ctx, "http://localhost:8069")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, tr.launcher.calls, 1)
}

func TestRunner_Monitor(t *testing.T) {
	mon := &fakeMonitor{}
	tr := newTestRunner(t, Config{Monitor: mon})

	require.NoError(t, tr.Run(context.Background(), "stress", "http://localhost:8069", true))
	assert.Equal(t, []string{"performance_metrics_stress_20250301_101500.json"}, mon.paths)
}

func TestExecLauncher(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	inv := Invocation{Host: "http://localhost:8069", Users: 1, SpawnRate: 1, Duration: "1m", CSVPrefix: "p", LogFile: "l"}

	ok, err := NewExecLauncher([]string{"/bin/sh", "-c", "exit 0"})
	require.NoError(t, err)
	ok.Stdout, ok.Stderr = &bytes.Buffer{}, &bytes.Buffer{}
	assert.Equal(t, append([]string{"/bin/sh", "-c", "exit 0"}, inv.Args()...), ok.CommandLine(inv))
	assert.NoError(t, ok.Launch(context.Background(), inv))

	failing, err := NewExecLauncher([]string{"/bin/sh", "-c", "exit 3"})
	require.NoError(t, err)
	failing.Stdout, failing.Stderr = &bytes.Buffer{}, &bytes.Buffer{}
	assert.Error(t, failing.Launch(context.Background(), inv))
}

func TestNewExecLauncher_DefaultsToSwarm(t *testing.T) {
	l, err := NewExecLauncher(nil)
	require.NoError(t, err)
	require.Len(t, l.Command, 2)
	assert.Equal(t, "swarm", l.Command[1])
}

func TestLoadFile_Example(t *testing.T) {
	table, err := LoadFile(filepath.Join("..", "..", "configs", "scenarios.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"light", "medium", "heavy", "stress", "soak"}, table.Names())
}
