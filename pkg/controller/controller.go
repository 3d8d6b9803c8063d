// Package controller implements the session state machine sequencing the
// three stages: scenario setup, simulation, and evaluation.
//
// The controller is driven by discrete events (submit scenario request,
// submit move, finish, reset) rather than re-render polling. Each event is
// handled to completion, including any gateway call, before the next is
// accepted, so no two stage invocations for the same session overlap.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"influencesim/pkg/logx"
	"influencesim/pkg/session"
	"influencesim/pkg/stage"
)

// State identifies a phase of the interactive run.
type State string

const (
	// StateSetup accepts a scenario request.
	StateSetup State = "SETUP"
	// StateSimulating accepts repeated moves and one finish event.
	StateSimulating State = "SIMULATING"
	// StateFinished runs the evaluator once, then only renders.
	StateFinished State = "FINISHED"
)

// TransitionTable lists the valid forward transitions per state. RESET is
// handled separately: it is legal from every state.
type TransitionTable map[State][]State

//nolint:gochecknoglobals // Static transition table
var validTransitions = TransitionTable{
	StateSetup:      {StateSimulating},
	StateSimulating: {StateFinished},
	StateFinished:   {},
}

// Transition records one state change for diagnostics.
type Transition struct {
	From      State
	To        State
	Timestamp time.Time
}

// Archive receives completed sessions for durable storage. Archiving is
// best-effort: failures are logged, never surfaced as session errors.
type Archive interface {
	RecordSession(ctx context.Context, sess *session.Session, finalState string) error
}

// Controller owns one Session and dispatches user-triggered events to the
// appropriate stage. The mutex serializes events; stage and renderer
// instances are stateless and safely shared across controllers.
type Controller struct {
	mu          sync.Mutex
	state       State
	sess        *session.Session
	design      *stage.DesignStage
	sim         *stage.SimulationStage
	eval        *stage.EvaluationStage
	archive     Archive
	transitions []Transition
	logger      *logx.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithArchive attaches a session archive.
func WithArchive(a Archive) Option {
	return func(c *Controller) { c.archive = a }
}

// New creates a controller in the SETUP state with a fresh session.
func New(design *stage.DesignStage, sim *stage.SimulationStage, eval *stage.EvaluationStage, opts ...Option) *Controller {
	c := &Controller{
		state:  StateSetup,
		sess:   session.New(),
		design: design,
		sim:    sim,
		eval:   eval,
		logger: logx.NewLogger("controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the session aggregate for rendering. Callers must treat
// it as read-only; all mutation goes through controller events.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Transitions returns the state transition history.
func (c *Controller) Transitions() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transition{}, c.transitions...)
}

// transitionTo moves to a new state. Caller holds the lock.
func (c *Controller) transitionTo(next State) error {
	valid := false
	for _, s := range validTransitions[c.state] {
		if s == next {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid transition from %s to %s", c.state, next)
	}

	c.transitions = append(c.transitions, Transition{
		From:      c.state,
		To:        next,
		Timestamp: time.Now().UTC(),
	})
	c.logger.Info("session %s: %s -> %s", c.sess.ID(), c.state, next)
	c.state = next
	return nil
}

// SubmitScenarioRequest handles the SETUP submit event: it invokes the
// design stage and transitions to SIMULATING on success. On failure the
// controller remains in SETUP with the session unchanged and the error is
// surfaced to the caller.
func (c *Controller) SubmitScenarioRequest(ctx context.Context, req *session.ScenarioRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSetup {
		return fmt.Errorf("scenario request not accepted in state %s", c.state)
	}

	if err := c.design.Generate(ctx, c.sess, req); err != nil {
		return err
	}
	return c.transitionTo(StateSimulating)
}

// SubmitMove handles one SIMULATING move event and returns the
// facilitator's reply. The controller stays in SIMULATING.
func (c *Controller) SubmitMove(ctx context.Context, move string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSimulating {
		return "", fmt.Errorf("moves not accepted in state %s", c.state)
	}
	return c.sim.SubmitMove(ctx, c.sess, move)
}

// Finish handles the finish event: it ends the simulation phase,
// transitions to FINISHED, and runs the evaluator once on entry. If the
// evaluation call fails the controller remains in FINISHED with feedback
// unset; Evaluate may be called again to retry.
func (c *Controller) Finish(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSimulating {
		return "", fmt.Errorf("finish not accepted in state %s", c.state)
	}

	if err := c.sim.Finish(c.sess); err != nil {
		return "", err
	}
	if err := c.transitionTo(StateFinished); err != nil {
		return "", err
	}

	return c.evaluateLocked(ctx)
}

// Evaluate runs (or re-runs, after a failure) the evaluation in FINISHED
// state. The stage's idempotence guard ensures at most one gateway call
// ever produces feedback.
func (c *Controller) Evaluate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateFinished {
		return "", fmt.Errorf("evaluation not accepted in state %s", c.state)
	}
	return c.evaluateLocked(ctx)
}

// evaluateLocked runs the evaluation stage and archives the completed
// session on first success. Caller holds the lock.
func (c *Controller) evaluateLocked(ctx context.Context) (string, error) {
	_, had := c.sess.Feedback()

	feedback, err := c.eval.Evaluate(ctx, c.sess)
	if err != nil {
		return "", err
	}

	if !had && c.archive != nil {
		if archiveErr := c.archive.RecordSession(ctx, c.sess, string(c.state)); archiveErr != nil {
			c.logger.Warn("failed to archive session %s: %v", c.sess.ID(), archiveErr)
		}
	}
	return feedback, nil
}

// Reset clears the session to its initial values and returns to SETUP.
// Legal from any state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.sess.ID()
	c.sess.Reset()
	c.transitions = append(c.transitions, Transition{
		From:      c.state,
		To:        StateSetup,
		Timestamp: time.Now().UTC(),
	})
	c.logger.Info("session %s reset (was %s); new session %s", old, c.state, c.sess.ID())
	c.state = StateSetup
}
