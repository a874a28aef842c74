// Package main provides the odooload command line: scenario runner, actor
// swarm, result analysis, host monitor, test data generator and run history.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/odoo/loadtest/internal/config"
	"github.com/example/odoo/loadtest/internal/logger"
	"github.com/example/odoo/loadtest/internal/scenario"
)

// Version information (populated at build time)
var (
	version   = "dev"
	gitCommit = "unknown"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	return exitCode(err, stderr)
}

// exitError carries an explicit process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		// The command already reported the problem.
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	switch {
	case errors.Is(err, scenario.ErrUnknownScenario), errors.Is(err, config.ErrInvalidConfig):
		return exitUsage
	default:
		return exitFailure
	}
}

// app holds the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
	log *zap.Logger
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "odooload",
		Short: "Odoo load testing harness",
		Long: `odooload simulates populations of Odoo web users that log in and
exercise the JSON-RPC API, and reports Locust-compatible statistics.

Examples:
  odooload run --host https://odoo.example.com --scenario light --headless
  odooload run --host https://odoo.example.com --scenario all
  odooload swarm --host https://odoo.example.com -u 10 -r 2 -t 5m --headless
  odooload analyze results_light_20240101_120000
  odooload monitor --interval 5s
  odooload datagen --dir testdata
  odooload history --limit 10`,
		Version:           fmt.Sprintf("%s (commit %s)", version, gitCommit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Path to the YAML configuration file (default ./odooload.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: console or json")

	root.AddCommand(
		a.runCmd(),
		a.swarmCmd(),
		a.analyzeCmd(),
		a.monitorCmd(),
		a.datagenCmd(),
		a.historyCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.log = log.With(zap.String("command", cmd.Name()))
	return nil
}
