// Package swarm runs a population of simulated users against a host for a
// fixed duration and reports their statistics.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/example/odoo/loadtest/internal/actor"
	"github.com/example/odoo/loadtest/internal/client"
	"github.com/example/odoo/loadtest/internal/metrics"
	"github.com/example/odoo/loadtest/internal/selector"
	"github.com/example/odoo/loadtest/internal/session"
)

// ErrInvalidOptions is returned when a swarm cannot be started.
var ErrInvalidOptions = errors.New("swarm: invalid options")

// Options configures one swarm run.
type Options struct {
	Host string
	// Users is the number of simulated users.
	Users int
	// SpawnRate is the number of users started per second.
	SpawnRate float64
	// Duration bounds the run. Zero runs until ctx is done.
	Duration time.Duration
	Profiles []*actor.Profile

	Credentials session.Credentials
	LoginPath   string
	ShellPath   string
	Client      client.Options

	// Headless prints console stats instead of serving the web UI.
	Headless bool
	WebAddr  string
	// CSVPrefix enables the stats files when set.
	CSVPrefix   string
	FullHistory bool
	// StatsInterval is the history sampling period. Default: 1s
	StatsInterval time.Duration
	// Output receives the console tables. Default: os.Stdout
	Output io.Writer
}

// Validate checks the options.
func (o *Options) Validate() error {
	var errs []error
	if o.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if o.Users <= 0 {
		errs = append(errs, fmt.Errorf("users must be positive, got %d", o.Users))
	}
	if o.SpawnRate <= 0 {
		errs = append(errs, fmt.Errorf("spawn rate must be positive, got %g", o.SpawnRate))
	}
	if o.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must not be negative, got %s", o.Duration))
	}
	if len(o.Profiles) == 0 {
		errs = append(errs, errors.New("at least one profile is required"))
	}
	for _, p := range o.Profiles {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if !o.Headless && o.WebAddr == "" {
		errs = append(errs, errors.New("web address is required unless headless"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.StatsInterval <= 0 {
		o.StatsInterval = time.Second
	}
	if o.Output == nil {
		o.Output = os.Stdout
	}
}

// Swarm owns the metrics pipeline of one run.
type Swarm struct {
	opts      Options
	log       *zap.Logger
	collector *metrics.Collector
	exporter  *metrics.PrometheusExporter
	sink      metrics.Sink
	auth      actor.Authenticator

	// webAddr receives the listen address once the web UI is up.
	webAddr chan string
}

// New validates opts and prepares a swarm.
func New(opts Options, log *zap.Logger) (*Swarm, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := client.New(opts.Host, opts.Client); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(metrics.PrometheusExporterConfig{})
	return &Swarm{
		opts:      opts,
		log:       log,
		collector: collector,
		exporter:  exporter,
		sink:      metrics.Tee(collector, exporter),
		auth:      session.NewBootstrapper(opts.LoginPath, opts.ShellPath, log.Named("session")),
		webAddr:   make(chan string, 1),
	}, nil
}

// Collector exposes the run's statistics.
func (s *Swarm) Collector() *metrics.Collector { return s.collector }

// Exporter exposes the run's Prometheus metrics.
func (s *Swarm) Exporter() *metrics.PrometheusExporter { return s.exporter }

// Run spawns the users, waits for the duration to elapse (or ctx to be
// done), writes the stats files and prints the final report. It returns the
// final snapshot.
func (s *Swarm) Run(ctx context.Context) (metrics.Snapshot, error) {
	o := s.opts
	if o.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Duration)
		defer cancel()
	}

	plan, err := Plan(o.Users, o.Profiles)
	if err != nil {
		return metrics.Snapshot{}, err
	}

	var csvw *metrics.CSVWriter
	if o.CSVPrefix != "" {
		if csvw, err = metrics.NewCSVWriter(o.CSVPrefix, o.FullHistory); err != nil {
			return metrics.Snapshot{}, err
		}
	}

	s.collector.Start()

	stopReporting, err := s.startReporting()
	if err != nil {
		if csvw != nil {
			_ = csvw.Close(s.collector.Snapshot())
		}
		return metrics.Snapshot{}, err
	}

	var history errgroup.Group
	historyDone := make(chan struct{})
	if csvw != nil {
		history.Go(func() error {
			s.writeHistory(csvw, historyDone)
			return nil
		})
	}

	s.log.Info("ramping users",
		zap.Int("users", o.Users),
		zap.Float64("spawn_rate", o.SpawnRate),
		zap.Duration("duration", o.Duration))

	var actors errgroup.Group
	limiter := rate.NewLimiter(rate.Limit(o.SpawnRate), 1)
	spawned := make(map[string]int, len(o.Profiles))
	for _, p := range plan {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		a, err := s.newActor(p)
		if err != nil {
			s.log.Error("failed to create user", zap.String("profile", p.Name), zap.Error(err))
			continue
		}
		spawned[p.Name]++
		s.collector.AddUsers(1)
		s.exporter.SetUsers(s.collector.Users())
		actors.Go(func() error {
			a.Run(ctx)
			return nil
		})
	}
	if ctx.Err() == nil {
		s.log.Info("all users spawned", zap.String("mix", formatMix(o.Profiles, spawned)), zap.Int("total", s.collector.Users()))
	}

	_ = actors.Wait()
	s.collector.Stop()
	close(historyDone)
	_ = history.Wait()
	stopReporting()

	final := s.collector.Snapshot()
	if csvw != nil {
		if err := csvw.Close(final); err != nil {
			s.log.Error("failed to write stats files", zap.String("prefix", o.CSVPrefix), zap.Error(err))
			return final, err
		}
		s.log.Info("stats written", zap.String("prefix", o.CSVPrefix))
	}

	metrics.NewConsole(metrics.ConsoleConfig{Writer: o.Output}).PrintFinalReport(final)
	return final, nil
}

func (s *Swarm) newActor(p *actor.Profile) (*actor.Actor, error) {
	copts := s.opts.Client
	copts.Recorder = s.sink
	c, err := client.New(s.opts.Host, copts)
	if err != nil {
		return nil, err
	}
	return actor.New(actor.Config{
		Profile:     p,
		Client:      c,
		Auth:        s.auth,
		Credentials: s.opts.Credentials,
		Log:         s.log.Named("actor"),
	}), nil
}

// startReporting starts the console printer or the web UI and returns the
// function that stops it.
func (s *Swarm) startReporting() (func(), error) {
	if s.opts.Headless {
		console := metrics.NewConsole(metrics.ConsoleConfig{
			Writer:          s.opts.Output,
			RefreshInterval: 2 * time.Second,
		})
		console.Start(s.collector)
		return console.Stop, nil
	}

	ui := metrics.NewWebUI(s.opts.WebAddr, s.collector, s.exporter)
	if err := ui.Start(); err != nil {
		return nil, fmt.Errorf("starting web UI: %w", err)
	}
	s.webAddr <- ui.Addr()
	s.log.Info("web interface started", zap.String("url", "http://"+ui.Addr()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ui.Stop(ctx); err != nil {
			s.log.Warn("web UI shutdown", zap.Error(err))
		}
	}, nil
}

func (s *Swarm) writeHistory(w *metrics.CSVWriter, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := w.WriteHistory(s.collector.Snapshot()); err != nil {
				s.log.Warn("failed to write stats history", zap.Error(err))
			}
		}
	}
}

// WebAddr blocks until the web UI listens and returns its address.
func (s *Swarm) WebAddr(ctx context.Context) (string, error) {
	select {
	case addr := <-s.webAddr:
		s.webAddr <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Plan assigns a profile to each of users actors. Counts follow the profile
// weights by largest remainder; profiles are interleaved so a partial ramp
// still carries the full mix.
func Plan(users int, profiles []*actor.Profile) ([]*actor.Profile, error) {
	weights := make([]int, len(profiles))
	for i, p := range profiles {
		weights[i] = p.Weight
	}
	counts, err := selector.Apportion(users, weights)
	if err != nil {
		return nil, fmt.Errorf("apportioning users: %w", err)
	}

	plan := make([]*actor.Profile, 0, users)
	for len(plan) < users {
		for i, p := range profiles {
			if counts[i] > 0 {
				counts[i]--
				plan = append(plan, p)
			}
		}
	}
	return plan, nil
}

func formatMix(profiles []*actor.Profile, spawned map[string]int) string {
	parts := make([]string, 0, len(profiles))
	for _, p := range profiles {
		parts = append(parts, fmt.Sprintf("%s: %d", p.Name, spawned[p.Name]))
	}
	return strings.Join(parts, ", ")
}
