package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/odoo/loadtest/internal/history"
)

// TimestampFormat stamps the artifacts of one run.
const TimestampFormat = "20060102_150405"

// Invocation is everything the load process needs for one scenario.
type Invocation struct {
	Scenario    Descriptor
	Host        string
	Users       int
	SpawnRate   int
	Duration    string
	CSVPrefix   string
	LogFile     string
	FullHistory bool
	Headless    bool
}

// Args renders the invocation as load tool flags.
func (inv Invocation) Args() []string {
	args := []string{
		"--host", inv.Host,
		"-u", strconv.Itoa(inv.Users),
		"-r", strconv.Itoa(inv.SpawnRate),
		"-t", inv.Duration,
		"--csv", inv.CSVPrefix,
	}
	if inv.FullHistory {
		args = append(args, "--csv-full-history")
	}
	args = append(args, "--logfile", inv.LogFile)
	if inv.Headless {
		args = append(args, "--headless")
	}
	return args
}

// Launcher runs the load test for one invocation and blocks until it ends.
type Launcher interface {
	Launch(ctx context.Context, inv Invocation) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, inv Invocation) error

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context, inv Invocation) error { return f(ctx, inv) }

// ExecLauncher runs the load test as a child process.
type ExecLauncher struct {
	// Command is the program and leading arguments; the invocation flags
	// are appended.
	Command []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewExecLauncher returns a launcher for command, or for this binary's
// swarm subcommand when command is empty.
func NewExecLauncher(command []string) (*ExecLauncher, error) {
	if len(command) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}
		command = []string{self, "swarm"}
	}
	return &ExecLauncher{Command: command, Stdout: os.Stdout, Stderr: os.Stderr}, nil
}

// CommandLine returns the full argument vector for inv.
func (l *ExecLauncher) CommandLine(inv Invocation) []string {
	return append(slices.Clone(l.Command), inv.Args()...)
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context, inv Invocation) error {
	argv := l.CommandLine(inv)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", filepath.Base(argv[0]), err)
	}
	return nil
}

// Recorder stores the outcome of each launched run.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Monitor samples the host until ctx is done and saves the samples to path.
type Monitor interface {
	Run(ctx context.Context, path string) error
}

// Config configures a Runner.
type Config struct {
	// Table defaults to DefaultTable.
	Table    *Table
	Launcher Launcher
	// Cooldown is the pause between scenarios in RunAll. Default: 60s
	Cooldown time.Duration
	// Dir is where artifacts are named. Default: current directory
	Dir string
	// Output receives progress messages. Default: os.Stdout
	Output io.Writer
	// History and Monitor are optional.
	History Recorder
	Monitor Monitor
}

// Runner launches scenarios by name.
type Runner struct {
	table    *Table
	launcher Launcher
	cooldown time.Duration
	dir      string
	out      io.Writer
	history  Recorder
	monitor  Monitor
	log      *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner. A launcher is required.
func NewRunner(cfg Config, log *zap.Logger) (*Runner, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("scenario: launcher is required")
	}
	if cfg.Table == nil {
		cfg.Table = DefaultTable()
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("%w: negative cool-down %s", ErrInvalidScenario, cfg.Cooldown)
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		table:    cfg.Table,
		launcher: cfg.Launcher,
		cooldown: cfg.Cooldown,
		dir:      cfg.Dir,
		out:      cfg.Output,
		history:  cfg.History,
		monitor:  cfg.Monitor,
		log:      log,
		now:      time.Now,
		sleep:    sleepCtx,
	}, nil
}

// Table returns the runner's scenarios.
func (r *Runner) Table() *Table { return r.table }

// Invocation builds the invocation for a scenario started at ts.
func (r *Runner) Invocation(d Descriptor, host string, headless bool, ts time.Time) Invocation {
	stamp := ts.Format(TimestampFormat)
	return Invocation{
		Scenario:    d,
		Host:        host,
		Users:       d.Users,
		SpawnRate:   d.SpawnRate,
		Duration:    d.Duration,
		CSVPrefix:   r.path(fmt.Sprintf("results_%s_%s", d.Name, stamp)),
		LogFile:     r.path(fmt.Sprintf("odooload_%s_%s.log", d.Name, stamp)),
		FullHistory: true,
		Headless:    headless,
	}
}

func (r *Runner) path(name string) string {
	if r.dir == "" {
		return name
	}
	return filepath.Join(r.dir, name)
}

// Run launches one scenario and waits for it. An unknown name launches
// nothing. A failed launch is reported and wrapped in ErrSubprocessFailed.
func (r *Runner) Run(ctx context.Context, name, host string, headless bool) error {
	d, ok := r.table.Get(name)
	if !ok {
		fmt.Fprintf(r.out, "Unknown scenario: %s\n", name)
		fmt.Fprintf(r.out, "Available scenarios: %s\n", r.table)
		return fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}

	started := r.now()
	inv := r.Invocation(d, host, headless, started)

	fmt.Fprintf(r.out, "\nRunning scenario: %s\n", d.Description)
	fmt.Fprintf(r.out, "Command: %s\n", strings.Join(r.commandLine(inv), " "))
	r.log.Info("launching scenario",
		zap.String("scenario", d.Name),
		zap.Int("users", inv.Users),
		zap.Int("spawn_rate", inv.SpawnRate),
		zap.String("duration", inv.Duration),
		zap.String("csv_prefix", inv.CSVPrefix))

	stopMonitor := r.startMonitor(ctx, d.Name, started)
	err := r.launcher.Launch(ctx, inv)
	stopMonitor()

	r.record(ctx, inv, started, err)

	if err != nil {
		fmt.Fprintf(r.out, "Test failed with error: %v\n", err)
		r.log.Error("scenario failed", zap.String("scenario", d.Name), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrSubprocessFailed, d.Name, err)
	}
	fmt.Fprintf(r.out, "\nScenario '%s' completed successfully!\n", d.Name)
	fmt.Fprintf(r.out, "Results saved with timestamp: %s\n", started.Format(TimestampFormat))
	return nil
}

// RunAll runs every scenario in table order, headless, pausing for the
// cool-down between runs. Failures do not stop the sequence; they are
// returned joined.
func (r *Runner) RunAll(ctx context.Context, host string) error {
	var errs []error
	all := r.table.All()
	for i, d := range all {
		fmt.Fprintf(r.out, "\n%s\n", strings.Repeat("=", 60))
		fmt.Fprintf(r.out, "Starting scenario: %s\n", d.Name)
		fmt.Fprintf(r.out, "%s\n", strings.Repeat("=", 60))

		if err := r.Run(ctx, d.Name, host, true); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if i == len(all)-1 || r.cooldown == 0 {
			continue
		}

		fmt.Fprintf(r.out, "\nWaiting %d seconds before next scenario...\n", int(r.cooldown.Seconds()))
		if err := r.sleep(ctx, r.cooldown); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) commandLine(inv Invocation) []string {
	if l, ok := r.launcher.(interface{ CommandLine(Invocation) []string }); ok {
		return l.CommandLine(inv)
	}
	return inv.Args()
}

// startMonitor runs the host monitor alongside a scenario and returns the
// function that stops it and waits for its file.
func (r *Runner) startMonitor(ctx context.Context, name string, started time.Time) func() {
	if r.monitor == nil {
		return func() {}
	}
	path := r.path(fmt.Sprintf("performance_metrics_%s_%s.json", name, started.Format(TimestampFormat)))
	mctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.monitor.Run(mctx, path); err != nil {
			r.log.Warn("host monitor failed", zap.String("scenario", name), zap.Error(err))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (r *Runner) record(ctx context.Context, inv Invocation, started time.Time, runErr error) {
	if r.history == nil {
		return
	}
	run := history.Run{
		Scenario:   inv.Scenario.Name,
		Host:       inv.Host,
		CSVPrefix:  inv.CSVPrefix,
		Users:      inv.Users,
		SpawnRate:  inv.SpawnRate,
		Duration:   inv.Duration,
		StartedAt:  started,
		FinishedAt: r.now(),
		Status:     history.StatusSucceeded,
	}
	if runErr != nil {
		run.Status = history.StatusFailed
		run.Error = runErr.Error()
	}
	// The run context may already be cancelled; the record should still land.
	if err := r.history.Record(context.WithoutCancel(ctx), run); err != nil {
		r.log.Warn("failed to record run", zap.String("scenario", run.Scenario), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
