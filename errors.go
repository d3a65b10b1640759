package migrator

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable indicates the migration source location exists but cannot be read.
	ErrSourceUnavailable = errors.New("migration source unavailable")

	// ErrParse indicates a single migration unit is malformed.
	// Loaders skip such units and keep loading the rest.
	ErrParse = errors.New("malformed migration unit")

	// ErrMissingDependency indicates a migration depends on one that is not applied yet.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrLockHeld indicates the migration lease is held by another operation.
	// Callers should not retry automatically.
	ErrLockHeld = errors.New("migration lock held")

	// ErrLeaseLost indicates the lease expired and was re-acquired by another owner.
	ErrLeaseLost = errors.New("migration lease lost")

	// ErrNotApplied indicates the migration has no ledger row.
	ErrNotApplied = errors.New("migration not applied")

	// ErrNoRollbackAvailable indicates the ledger row carries no rollback SQL.
	ErrNoRollbackAvailable = errors.New("no rollback sql available")

	// ErrUnknownStrategy indicates a strategy name that is not one of the supported variants.
	ErrUnknownStrategy = errors.New("unknown migration strategy")

	// ErrInvalidTransition indicates an illegal state machine transition.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// SourceUnavailableError reports an unreadable migration source location.
type SourceUnavailableError struct {
	Location string
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("migration source %q unavailable: %v", e.Location, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// Is matches ErrSourceUnavailable.
func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// ParseError reports a malformed migration unit.
type ParseError struct {
	Unit string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse migration unit %s: %v", e.Unit, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// LockHeldError reports that the lease key already has a live owner.
type LockHeldError struct {
	Key   string
	Owner string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("migration lock %s is held by: %s", e.Key, e.Owner)
}

// Is matches ErrLockHeld.
func (e *LockHeldError) Is(target error) bool {
	return target == ErrLockHeld
}
