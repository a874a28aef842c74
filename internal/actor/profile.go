package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/odoo/loadtest/internal/selector"
)

// ErrInvalidProfile is returned when a profile cannot be used.
var ErrInvalidProfile = errors.New("actor: invalid profile")

// Behavior is what an actor does between think times.
type Behavior interface {
	// Start runs once when the actor starts.
	Start(ctx context.Context, a *Actor) error
	// Tick runs one unit of work.
	Tick(ctx context.Context, a *Actor)
}

// ThinkTime is the uniform pause range between units of work.
type ThinkTime struct {
	Min time.Duration
	Max time.Duration
}

// Between returns a ThinkTime of whole seconds.
func Between(minSec, maxSec int) ThinkTime {
	return ThinkTime{Min: time.Duration(minSec) * time.Second, Max: time.Duration(maxSec) * time.Second}
}

// Next draws a pause in [Min, Max].
func (t ThinkTime) Next(src selector.Source) time.Duration {
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + time.Duration(src.IntN(int(t.Max-t.Min)+1))
}

// Profile is an immutable user archetype, built once at start-up and
// shared by pointer between actors.
type Profile struct {
	Name      string
	Weight    int
	ThinkTime ThinkTime
	Behavior  Behavior
}

// Validate checks the profile invariants.
func (p *Profile) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	case p.Weight <= 0:
		return fmt.Errorf("%w: %s: weight must be positive", ErrInvalidProfile, p.Name)
	case p.ThinkTime.Min < 0 || p.ThinkTime.Max < p.ThinkTime.Min:
		return fmt.Errorf("%w: %s: think time range %s..%s", ErrInvalidProfile, p.Name, p.ThinkTime.Min, p.ThinkTime.Max)
	case p.Behavior == nil:
		return fmt.Errorf("%w: %s: behavior is required", ErrInvalidProfile, p.Name)
	}
	return nil
}

// TaskFunc performs one task. Outcomes are recorded by the client.
type TaskFunc func(ctx context.Context, a *Actor)

// Task is one weighted entry of a catalog.
type Task struct {
	Name   string
	Weight int
	Run    TaskFunc
}

// Catalog picks exactly one task per tick with probability weight/total.
type Catalog struct {
	tasks *selector.Weighted[Task]
}

// NewCatalog builds a catalog. Weights must be non-negative and not all zero.
func NewCatalog(tasks ...Task) (*Catalog, error) {
	weights := make([]int, len(tasks))
	for i, t := range tasks {
		if t.Run == nil {
			return nil, fmt.Errorf("%w: task %q has no function", ErrInvalidProfile, t.Name)
		}
		weights[i] = t.Weight
	}
	w, err := selector.NewWeighted(tasks, weights)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}
	return &Catalog{tasks: w}, nil
}

// Start bootstraps the actor's session.
func (c *Catalog) Start(ctx context.Context, a *Actor) error {
	return a.Bootstrap(ctx)
}

// Tick runs one sampled task.
func (c *Catalog) Tick(ctx context.Context, a *Actor) {
	t := c.tasks.Pick(a.Rand)
	a.Log.Debug("running task", zap.String("task", t.Name))
	t.Run(ctx, a)
}

// Tasks returns the catalog entries in declaration order.
func (c *Catalog) Tasks() []Task {
	out := make([]Task, c.tasks.Len())
	for i := range out {
		out[i] = c.tasks.Item(i)
	}
	return out
}

// Probability returns the selection probability of the named task.
func (c *Catalog) Probability(name string) float64 {
	p := 0.0
	for i := range c.tasks.Len() {
		if c.tasks.Item(i).Name == name {
			p += c.tasks.Probability(i)
		}
	}
	return p
}
