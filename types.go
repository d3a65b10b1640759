package migrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultVersion is assigned to definitions whose unit declares no version.
const DefaultVersion = "1.0.0"

// Definition is an immutable migration unit parsed from the migration source.
// Definitions are created once at load time and never mutated afterwards.
type Definition struct {
	// ID is derived from the source unit name (file stem) and is unique.
	ID string

	// Name is the human readable name (default: ID).
	Name string

	// Version is the declared version string (default: "1.0.0").
	Version string

	// ForwardSQL is the SQL applied by the forward migration.
	ForwardSQL string

	// RollbackSQL is the optional SQL that reverts ForwardSQL.
	RollbackSQL string

	// IsBreaking marks migrations that break backward compatibility of the schema.
	IsBreaking bool

	// RequiresMaintenance marks migrations that should run inside a maintenance window.
	RequiresMaintenance bool

	// EstimatedDuration is the author's estimate of the run time.
	EstimatedDuration time.Duration

	// Dependencies lists definition IDs that must be applied before this one.
	Dependencies []string

	// TargetTable names the table rebuilt by the shadow-table strategy.
	// Empty for migrations that are not table-shaped.
	TargetTable string

	// CopyColumns lists the columns copied from TargetTable into the shadow table.
	// Empty means all columns (SELECT *).
	CopyColumns []string
}

// Checksum returns the hex encoded SHA-256 of the forward and rollback SQL.
func (d Definition) Checksum() string {
	sum := sha256.Sum256([]byte(d.ForwardSQL + d.RollbackSQL))
	return hex.EncodeToString(sum[:])
}

// HasRollback reports whether the definition carries rollback SQL.
func (d Definition) HasRollback() bool {
	return d.RollbackSQL != ""
}

// Source supplies migration definitions in source order.
type Source interface {
	Load(ctx context.Context) ([]Definition, error)
}

// RecordMetadata is the JSON document stored in the ledger's metadata column.
type RecordMetadata struct {
	// EstimatedDurationSeconds mirrors Definition.EstimatedDuration.
	EstimatedDurationSeconds int64 `json:"estimated_duration"`

	// Dependencies mirrors Definition.Dependencies.
	Dependencies []string `json:"dependencies"`

	// Strategy is the strategy that applied the migration.
	Strategy string `json:"strategy,omitempty"`
}

// AppliedRecord is a ledger row. Presence in the ledger is the sole
// definition of a migration being applied.
type AppliedRecord struct {
	// ID equals the Definition ID and is the ledger primary key.
	ID string

	// Name is the definition name at apply time.
	Name string

	// Version is the definition version at apply time.
	Version string

	// AppliedAt is when the ledger row was written.
	AppliedAt time.Time

	// Duration is how long the forward SQL took to apply.
	Duration time.Duration

	// Checksum is Definition.Checksum at apply time.
	Checksum string

	// RollbackSQL is the rollback SQL captured at apply time.
	// Rollback always executes this text, never the current source.
	RollbackSQL string

	// IsBreaking mirrors Definition.IsBreaking.
	IsBreaking bool

	// Metadata carries the remaining definition attributes.
	Metadata RecordMetadata
}

// NewAppliedRecord builds the ledger row for a definition applied by strategy.
func NewAppliedRecord(def Definition, strategy string, appliedAt time.Time, duration time.Duration) AppliedRecord {
	deps := make([]string, len(def.Dependencies))
	copy(deps, def.Dependencies)

	return AppliedRecord{
		ID:          def.ID,
		Name:        def.Name,
		Version:     def.Version,
		AppliedAt:   appliedAt,
		Duration:    duration,
		Checksum:    def.Checksum(),
		RollbackSQL: def.RollbackSQL,
		IsBreaking:  def.IsBreaking,
		Metadata: RecordMetadata{
			EstimatedDurationSeconds: int64(def.EstimatedDuration / time.Second),
			Dependencies:             deps,
			Strategy:                 strategy,
		},
	}
}

// ExecutionResult is the outcome of one attempted migration or rollback.
type ExecutionResult struct {
	// MigrationID identifies the definition the result belongs to.
	MigrationID string

	// Strategy is the strategy that produced the result (empty for rollbacks).
	Strategy string

	// Success is true when the SQL committed.
	Success bool

	// Duration is the wall-clock time of the attempt.
	Duration time.Duration

	// Error is the failure message when Success is false.
	Error string

	// AffectedRows is the driver-reported affected row count, when available.
	AffectedRows int64

	// RollbackExecuted is true for results produced by the rollback executor.
	RollbackExecuted bool
}

// StatusSnapshot is published to the coordination store while a run is active
// and removed when the run ends.
type StatusSnapshot struct {
	// Operation is the lease operation of the run (e.g. apply_migrations_online).
	Operation string

	// Strategy is the strategy the run uses.
	Strategy string

	// CurrentMigration is the definition currently being applied.
	CurrentMigration string

	// Phase is the state of CurrentMigration.
	Phase MigrationState

	// StartedAt is when CurrentMigration started applying.
	StartedAt time.Time

	// FailedAt is set when Phase is failed.
	FailedAt time.Time

	// Error carries the failure message when Phase is failed.
	Error string
}

// RunOutcome summarises how an apply run ended.
type RunOutcome string

const (
	// RunOutcomeNothingToDo indicates there were no pending migrations. No lock was taken.
	RunOutcomeNothingToDo RunOutcome = "nothing_to_do"

	// RunOutcomeDryRun indicates a dry run. No lock was taken and nothing was executed.
	RunOutcomeDryRun RunOutcome = "dry_run"

	// RunOutcomeCompleted indicates every pending migration was applied.
	RunOutcomeCompleted RunOutcome = "completed"

	// RunOutcomeHalted indicates the run stopped at the first failed migration.
	RunOutcomeHalted RunOutcome = "halted_on_failure"
)

// RunReport describes one apply invocation.
type RunReport struct {
	// Strategy is the strategy used (or that would have been used).
	Strategy string

	// DryRun is true when no SQL was executed.
	DryRun bool

	// Outcome is how the run ended.
	Outcome RunOutcome

	// Results holds one entry per attempted migration, in order.
	Results []ExecutionResult

	// WouldApply lists the pending definitions of a dry run.
	WouldApply []Definition

	// StillPending lists definitions that were not attempted because the run halted.
	StillPending []Definition

	// Transitions is the sequence of run states the orchestrator went through.
	Transitions []RunState

	// States holds the final state of every attempted migration, by ID.
	States map[string]MigrationState
}

// Failed reports whether any attempted migration failed.
func (r *RunReport) Failed() bool {
	for _, res := range r.Results {
		if !res.Success {
			return true
		}
	}
	return false
}

// Applied returns the IDs of the migrations applied by this run.
func (r *RunReport) Applied() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Success {
			ids = append(ids, res.MigrationID)
		}
	}
	return ids
}
