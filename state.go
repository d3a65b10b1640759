package migrator

import "fmt"

// MigrationState is the lifecycle state of a single migration within a run.
type MigrationState string

const (
	// MigrationStatePending indicates the migration is defined but not applied.
	MigrationStatePending MigrationState = "pending"

	// MigrationStateApplying indicates the migration's strategy is executing.
	MigrationStateApplying MigrationState = "applying"

	// MigrationStateApplied indicates the forward SQL committed and the ledger row exists.
	MigrationStateApplied MigrationState = "applied"

	// MigrationStateFailed indicates the strategy failed. The migration stays unapplied.
	MigrationStateFailed MigrationState = "failed"
)

var migrationTransitions = map[MigrationState][]MigrationState{
	MigrationStatePending:  {MigrationStateApplying},
	MigrationStateApplying: {MigrationStateApplied, MigrationStateFailed},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s MigrationState) CanTransitionTo(next MigrationState) bool {
	for _, allowed := range migrationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if it is a legal successor of s.
// Returns ErrInvalidTransition otherwise.
func (s MigrationState) Transition(next MigrationState) (MigrationState, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: migration %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// RunState is the lifecycle state of an apply run.
type RunState string

const (
	// RunStateNotStarted is the initial state of every run.
	RunStateNotStarted RunState = "not_started"

	// RunStateLockAcquired indicates the run holds the migration lease.
	RunStateLockAcquired RunState = "lock_acquired"

	// RunStateIterating indicates pending migrations are being applied in order.
	RunStateIterating RunState = "iterating"

	// RunStateCompleted indicates every pending migration was applied.
	RunStateCompleted RunState = "completed"

	// RunStateHaltedOnFailure indicates the run stopped at the first failure.
	RunStateHaltedOnFailure RunState = "halted_on_failure"

	// RunStateLockReleased is the terminal state of every run that acquired the lease.
	RunStateLockReleased RunState = "lock_released"
)

// LockAcquired may jump straight to LockReleased when setup fails before iterating,
// and Iterating may do the same when the context is cancelled mid-run.
var runTransitions = map[RunState][]RunState{
	RunStateNotStarted:      {RunStateLockAcquired},
	RunStateLockAcquired:    {RunStateIterating, RunStateLockReleased},
	RunStateIterating:       {RunStateCompleted, RunStateHaltedOnFailure, RunStateLockReleased},
	RunStateCompleted:       {RunStateLockReleased},
	RunStateHaltedOnFailure: {RunStateLockReleased},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunMachine tracks the state of a run and records every transition.
type RunMachine struct {
	current RunState
	history []RunState
}

// NewRunMachine returns a machine in RunStateNotStarted.
func NewRunMachine() *RunMachine {
	return &RunMachine{
		current: RunStateNotStarted,
		history: []RunState{RunStateNotStarted},
	}
}

// Current returns the current state.
func (m *RunMachine) Current() RunState {
	return m.current
}

// History returns a copy of every state visited, oldest first.
func (m *RunMachine) History() []RunState {
	out := make([]RunState, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves the machine to next.
// Returns ErrInvalidTransition if next is not a legal successor of the current state.
func (m *RunMachine) Transition(next RunState) error {
	if !m.current.CanTransitionTo(next) {
		return fmt.Errorf("%w: run %s -> %s", ErrInvalidTransition, m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}
