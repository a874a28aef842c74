// Package actor runs one simulated user: bootstrap a session, then
// repeatedly think and execute the next unit of work from its profile.
package actor

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/odoo/loadtest/internal/client"
	"github.com/example/odoo/loadtest/internal/session"
)

// Authenticator establishes a session for a client.
type Authenticator interface {
	Authenticate(ctx context.Context, c *client.Client, creds session.Credentials) (*session.Session, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds what an actor needs. Profile, Client and Auth are required.
type Config struct {
	// ID defaults to a random UUID.
	ID          string
	Profile     *Profile
	Client      *client.Client
	Auth        Authenticator
	Credentials session.Credentials
	// Seed seeds the actor's generators. Zero picks a random seed.
	Seed uint64
	Log  *zap.Logger
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
}

// Actor is one simulated user. It is driven by a single goroutine and
// shares nothing mutable with other actors.
type Actor struct {
	ID      string
	Profile *Profile
	Client  *client.Client
	// Session is replaced on every bootstrap. Never nil after Bootstrap.
	Session *session.Session
	// Faker generates randomized request bodies.
	Faker *gofakeit.Faker
	// Rand drives task selection, think time and RPC ids.
	Rand *rand.Rand
	Log  *zap.Logger

	auth   Authenticator
	creds  session.Credentials
	sleep  SleepFunc
	passes int
}

// New creates an actor.
func New(cfg Config) *Actor {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}

	return &Actor{
		ID:      cfg.ID,
		Profile: cfg.Profile,
		Client:  cfg.Client,
		Session: &session.Session{},
		Faker:   gofakeit.New(cfg.Seed),
		Rand:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		Log:     cfg.Log.With(zap.String("actor", cfg.ID), zap.String("profile", cfg.Profile.Name)),
		auth:    cfg.Auth,
		creds:   cfg.Credentials,
		sleep:   cfg.Sleep,
	}
}

// Run executes the profile until ctx is done: Start once, then think and
// Tick in a loop. Failures are recorded and logged; they never stop the loop.
func (a *Actor) Run(ctx context.Context) {
	a.Log.Debug("actor started")
	defer a.Log.Debug("actor stopped")

	if err := a.Profile.Behavior.Start(ctx, a); err != nil {
		a.Log.Warn("start failed, continuing with a degraded session", zap.Error(err))
	}

	for {
		if err := a.Sleep(ctx, a.Profile.ThinkTime.Next(a.Rand)); err != nil {
			return
		}
		a.Profile.Behavior.Tick(ctx, a)
		if ctx.Err() != nil {
			return
		}
	}
}

// Bootstrap starts a fresh server session and authenticates it.
func (a *Actor) Bootstrap(ctx context.Context) error {
	if err := a.Client.ResetSession(); err != nil {
		return err
	}
	s, err := a.auth.Authenticate(ctx, a.Client, a.creds)
	if s == nil {
		s = &session.Session{}
	}
	a.Session = s
	return err
}

// Sleep pauses the actor, returning early with ctx.Err() on cancellation.
func (a *Actor) Sleep(ctx context.Context, d time.Duration) error {
	return a.sleep(ctx, d)
}

// RPCID draws a JSON-RPC request id in 1..client.MaxRPCID.
func (a *Actor) RPCID() int {
	return 1 + a.Rand.IntN(client.MaxRPCID)
}

// Call issues a JSON-RPC call, filling in a random id when none is set.
func (a *Actor) Call(ctx context.Context, call client.Call) (*client.Response, error) {
	if call.ID == 0 {
		call.ID = a.RPCID()
	}
	resp, err := a.Client.CallKW(ctx, call)
	if err != nil {
		a.Log.Debug("call failed", zap.String("name", call.Name), zap.Error(err))
	}
	return resp, err
}

// Get issues a page request recorded under name.
func (a *Actor) Get(ctx context.Context, name, path string) (*client.Response, error) {
	resp, err := a.Client.Get(ctx, name, path)
	if err != nil {
		a.Log.Debug("request failed", zap.String("name", name), zap.Error(err))
	}
	return resp, err
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
