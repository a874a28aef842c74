package actor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Ref carries an entity id from one sequence step to the next.
type Ref struct {
	id    int
	found bool
}

// Found returns a Ref holding id.
func Found(id int) Ref { return Ref{id: id, found: true} }

// Missing is the empty Ref.
var Missing = Ref{}

// ID returns the id and whether it is present.
func (r Ref) ID() (int, bool) { return r.id, r.found }

// Step is one stage of a business process.
type Step struct {
	Name string
	// Pause is slept before the step runs.
	Pause time.Duration
	// NeedsRef guards the step: a Missing input skips it and every later step.
	NeedsRef bool
	Run      func(ctx context.Context, a *Actor, in Ref) Ref
}

// Sequencer runs its steps in fixed order. Each pass after the first
// starts from a freshly bootstrapped session.
type Sequencer struct {
	Name  string
	Steps []Step
}

// Start bootstraps the actor's session.
func (s *Sequencer) Start(ctx context.Context, a *Actor) error {
	return a.Bootstrap(ctx)
}

// Tick runs one full pass.
func (s *Sequencer) Tick(ctx context.Context, a *Actor) {
	if a.passes > 0 {
		if err := a.Bootstrap(ctx); err != nil {
			a.Log.Warn("re-bootstrap failed", zap.String("sequence", s.Name), zap.Error(err))
		}
	}
	a.passes++
	s.Pass(ctx, a)
}

// Pass runs the steps once. It stops early on cancellation or when a
// guarded step's input is Missing.
func (s *Sequencer) Pass(ctx context.Context, a *Actor) {
	ref := Missing
	for i, step := range s.Steps {
		if step.NeedsRef {
			if _, ok := ref.ID(); !ok {
				a.Log.Info("DependencyMissing: skipping remaining steps",
					zap.String("sequence", s.Name),
					zap.String("step", step.Name),
					zap.Int("skipped", len(s.Steps)-i))
				return
			}
		}
		if step.Pause > 0 {
			if err := a.Sleep(ctx, step.Pause); err != nil {
				return
			}
		}
		ref = step.Run(ctx, a, ref)
	}
}
