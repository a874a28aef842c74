package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/odoo/loadtest/internal/analysis"
	"github.com/example/odoo/loadtest/internal/client"
	"github.com/example/odoo/loadtest/internal/datagen"
	"github.com/example/odoo/loadtest/internal/history"
	"github.com/example/odoo/loadtest/internal/logger"
	"github.com/example/odoo/loadtest/internal/monitor"
	"github.com/example/odoo/loadtest/internal/odoo"
	"github.com/example/odoo/loadtest/internal/scenario"
	"github.com/example/odoo/loadtest/internal/session"
	"github.com/example/odoo/loadtest/internal/swarm"
)

func (a *app) runCmd() *cobra.Command {
	var (
		host          string
		name          string
		headless      bool
		withMonitor   bool
		scenariosFile string
		cooldown      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a named load scenario, or all of them in sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if !cmd.Flags().Changed("monitor") {
				withMonitor = cfg.Runner.Monitor
			}
			if !cmd.Flags().Changed("scenarios") {
				scenariosFile = cfg.Runner.ScenariosFile
			}
			if !cmd.Flags().Changed("cooldown") {
				cooldown = cfg.Runner.Cooldown
			}

			tbl := scenario.DefaultTable()
			if scenariosFile != "" {
				var err error
				if tbl, err = scenario.LoadFile(scenariosFile); err != nil {
					return err
				}
			}

			launcher, err := scenario.NewExecLauncher(a.swarmCommand())
			if err != nil {
				return err
			}
			launcher.Stdout, launcher.Stderr = a.stdout, a.stderr

			rc := scenario.Config{
				Table:    tbl,
				Launcher: launcher,
				Cooldown: cooldown,
				Output:   a.stdout,
			}
			if withMonitor {
				rc.Monitor = monitor.New(monitor.Config{Interval: cfg.Monitor.Interval, Output: a.stdout}, a.log.Named("monitor"))
			}
			if cfg.History.Enabled {
				store, err := history.Open(cfg.History.Path)
				if err != nil {
					return err
				}
				defer store.Close()
				rc.History = store
			}

			runner, err := scenario.NewRunner(rc, a.log.Named("runner"))
			if err != nil {
				return err
			}
			if name == "all" {
				return runner.RunAll(cmd.Context(), host)
			}
			err = runner.Run(cmd.Context(), name, host, headless)
			if errors.Is(err, scenario.ErrUnknownScenario) {
				return &exitError{code: exitUsage, err: err}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "host", "", "Odoo host URL")
	f.StringVar(&name, "scenario", "medium", "Scenario to run, or \"all\"")
	f.BoolVar(&headless, "headless", false, "Run without the web UI")
	f.BoolVar(&withMonitor, "monitor", false, "Sample host resources while each scenario runs")
	f.StringVar(&scenariosFile, "scenarios", "", "YAML file replacing the built-in scenario table")
	f.DurationVar(&cooldown, "cooldown", 0, "Pause between scenarios when running all")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

// swarmCommand is the child process each scenario launches.
func (a *app) swarmCommand() []string {
	if len(a.cfg.Runner.Command) > 0 {
		return a.cfg.Runner.Command
	}
	self, err := os.Executable()
	if err != nil {
		// NewExecLauncher reports the same failure.
		return nil
	}
	argv := []string{self}
	if a.configPath != "" {
		argv = append(argv, "--config", a.configPath)
	}
	return append(argv, "swarm")
}

func (a *app) swarmCmd() *cobra.Command {
	var (
		host        string
		users       int
		spawnRate   float64
		runTime     string
		csvPrefix   string
		fullHistory bool
		logFile     string
		headless    bool
		profiles    []string
		webAddr     string
		exitOnError int
	)
	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Run a population of simulated Odoo users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if host != "" {
				cfg.Target.Host = host
			}
			if err := cfg.ValidateForSwarm(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("profiles") {
				profiles = cfg.Swarm.Profiles
			}
			if webAddr == "" {
				webAddr = cfg.Swarm.WebAddr
			}

			var duration time.Duration
			if runTime != "" {
				var err error
				if duration, err = time.ParseDuration(runTime); err != nil {
					return fmt.Errorf("%w: run time %q: %w", swarm.ErrInvalidOptions, runTime, err)
				}
			}

			log := a.log
			if logFile != "" {
				lc := logger.FileConfig(logFile)
				lc.Level = cfg.Log.Level
				fileLog, err := logger.New(lc)
				if err != nil {
					return fmt.Errorf("creating log file: %w", err)
				}
				defer func() { _ = fileLog.Sync() }()
				log = fileLog
			}

			pop, err := odoo.Profiles(profiles)
			if err != nil {
				return err
			}

			sw, err := swarm.New(swarm.Options{
				Host:      cfg.Target.Host,
				Users:     users,
				SpawnRate: spawnRate,
				Duration:  duration,
				Profiles:  pop,
				Credentials: session.Credentials{
					Login:    cfg.Credentials.Login,
					Password: cfg.Credentials.Password,
					Database: cfg.Credentials.Database,
				},
				LoginPath: cfg.Target.LoginPath,
				ShellPath: cfg.Target.ShellPath,
				Client: client.Options{
					Timeout:       cfg.Target.Timeout,
					TLSSkipVerify: cfg.Target.TLSSkipVerify,
				},
				Headless:      headless,
				WebAddr:       webAddr,
				CSVPrefix:     csvPrefix,
				FullHistory:   fullHistory,
				StatsInterval: cfg.Swarm.StatsInterval,
				Output:        a.stdout,
			}, log.Named("swarm"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if !headless {
				go func() {
					if addr, err := sw.WebAddr(ctx); err == nil {
						fmt.Fprintf(a.stdout, "Web UI available at http://%s\n", addr)
					}
				}()
			}

			final, err := sw.Run(ctx)
			if err != nil {
				return err
			}
			if final.Total.Failures > 0 && exitOnError != 0 {
				return &exitError{code: exitOnError, err: fmt.Errorf("%d of %d requests failed", final.Total.Failures, final.Total.Requests)}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "host", "", "Odoo host URL (overrides target.host)")
	f.IntVarP(&users, "users", "u", 1, "Number of simulated users")
	f.Float64VarP(&spawnRate, "spawn-rate", "r", 1, "Users started per second")
	f.StringVarP(&runTime, "run-time", "t", "", "Stop after this long (e.g. 300s, 5m, 1h30m); empty runs until interrupted")
	f.StringVar(&csvPrefix, "csv", "", "Write <prefix>_stats.csv, _failures.csv and _stats_history.csv")
	f.BoolVar(&fullHistory, "csv-full-history", false, "Write a history row per request name, not only Aggregated")
	f.StringVar(&logFile, "logfile", "", "Write logs to this file as JSON")
	f.BoolVar(&headless, "headless", false, "Print console stats instead of serving the web UI")
	f.StringSliceVar(&profiles, "profiles", nil, "User profiles making up the population (default from config)")
	f.StringVar(&webAddr, "web-addr", "", "Web UI listen address (default from config)")
	f.IntVar(&exitOnError, "exit-code-on-error", exitFailure, "Exit code when any request failed")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var (
		charts bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "analyze PREFIX",
		Short: "Summarize a run's CSV results and chart its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := analysis.Load(args[0])
			if err != nil {
				return err
			}
			if res.Stats != nil {
				fmt.Fprintf(a.stdout, "Loaded stats data: %d rows\n", len(res.Stats))
			}
			if res.Failures != nil {
				fmt.Fprintf(a.stdout, "Loaded failures data: %d rows\n", len(res.Failures))
			}
			if res.History != nil {
				fmt.Fprintf(a.stdout, "Loaded history data: %d rows\n", len(res.History))
			}

			if err := res.Summary(a.stdout); err != nil {
				return err
			}
			if !charts {
				return nil
			}
			path, err := res.Charts(output)
			if errors.Is(err, analysis.ErrNoHistory) {
				fmt.Fprintln(a.stdout, "No timeline data available for visualizations")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Visualizations saved as %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&charts, "charts", true, "Write the HTML chart report")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Chart report path (default <prefix>_analysis.html)")
	return cmd
}

func (a *app) monitorCmd() *cobra.Command {
	var (
		interval time.Duration
		output   string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample host CPU, memory, disk and network until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.Monitor.Interval
			}
			if output == "" {
				output = monitor.DefaultPath(time.Now())
			}
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			m := monitor.New(monitor.Config{Interval: interval, Output: a.stdout}, a.log.Named("monitor"))
			return m.Run(ctx, output)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&interval, "interval", 0, "Pause between samples (default from config)")
	f.StringVarP(&output, "output", "o", "", "JSON output file (default performance_metrics_<unix>.json)")
	f.DurationVar(&duration, "duration", 0, "Stop after this long; zero runs until interrupted")
	return cmd
}

func (a *app) datagenCmd() *cobra.Command {
	var (
		dir      string
		partners int
		products int
		seed     uint64
	)
	cmd := &cobra.Command{
		Use:   "datagen",
		Short: "Generate fake partner and product records as JSON",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := datagen.New(seed).Save(dir, partners, products)
			if err != nil {
				return err
			}
			a.log.Info("test data written", zap.Strings("files", paths), zap.Int("partners", partners), zap.Int("products", products))
			fmt.Fprintln(a.stdout, "Test data generated and saved to files")
			for _, p := range paths {
				fmt.Fprintf(a.stdout, "  %s\n", p)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dir, "dir", ".", "Output directory")
	f.IntVar(&partners, "partners", datagen.DefaultPartners, "Number of partners")
	f.IntVar(&products, "products", datagen.DefaultProducts, "Number of products")
	f.Uint64Var(&seed, "seed", 0, "Random seed; zero picks one")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scenario runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(a.cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.stdout, "No runs recorded")
				return nil
			}
			fmt.Fprintln(a.stdout, runsTable(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs; zero lists all")
	return cmd
}

func runsTable(runs []history.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Scenario,
			strconv.Itoa(r.Users),
			strconv.Itoa(r.SpawnRate),
			r.Duration,
			r.Elapsed().Round(time.Second).String(),
			r.Status,
			r.CSVPrefix,
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STARTED", "SCENARIO", "USERS", "RATE", "DURATION", "ELAPSED", "STATUS", "RESULTS").
		Rows(rows...).
		String()
}
