// Package status publishes and reports the progress of migration runs.
package status

import (
	"context"
	"fmt"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
)

// DefaultKey is the coordination key holding the live run snapshot.
const DefaultKey = "migrations:status"

const (
	fieldCurrentMigration = "current_migration"
	fieldStatus           = "status"
	fieldStrategy         = "strategy"
	fieldOperation        = "operation"
	fieldStartedAt        = "started_at"
	fieldFailedAt         = "failed_at"
	fieldError            = "error"
)

// Board stores the live StatusSnapshot of the active run as a hash.
// Every field is written on each publish so no stale values survive.
type Board struct {
	store coordination.Store
	key   string
}

// NewBoard creates a Board over store. An empty key means DefaultKey.
func NewBoard(store coordination.Store, key string) *Board {
	if key == "" {
		key = DefaultKey
	}
	return &Board{store: store, key: key}
}

// Key returns the coordination key of the snapshot.
func (b *Board) Key() string {
	return b.key
}

// Publish replaces the snapshot.
func (b *Board) Publish(ctx context.Context, snap migrator.StatusSnapshot) error {
	fields := map[string]string{
		fieldCurrentMigration: snap.CurrentMigration,
		fieldStatus:           string(snap.Phase),
		fieldStrategy:         snap.Strategy,
		fieldOperation:        snap.Operation,
		fieldStartedAt:        formatTime(snap.StartedAt),
		fieldFailedAt:         formatTime(snap.FailedAt),
		fieldError:            snap.Error,
	}

	if err := b.store.HSet(ctx, b.key, fields); err != nil {
		return fmt.Errorf("failed to publish status snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot.
func (b *Board) Clear(ctx context.Context) error {
	if err := b.store.Del(ctx, b.key); err != nil {
		return fmt.Errorf("failed to clear status snapshot: %w", err)
	}
	return nil
}

// Current returns the published snapshot, or nil if no run is active.
func (b *Board) Current(ctx context.Context) (*migrator.StatusSnapshot, error) {
	fields, err := b.store.HGetAll(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read status snapshot: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	snap := &migrator.StatusSnapshot{
		CurrentMigration: fields[fieldCurrentMigration],
		Phase:            migrator.MigrationState(fields[fieldStatus]),
		Strategy:         fields[fieldStrategy],
		Operation:        fields[fieldOperation],
		Error:            fields[fieldError],
	}
	if snap.StartedAt, err = parseTime(fields[fieldStartedAt]); err != nil {
		return nil, fmt.Errorf("invalid %s in status snapshot: %w", fieldStartedAt, err)
	}
	if snap.FailedAt, err = parseTime(fields[fieldFailedAt]); err != nil {
		return nil, fmt.Errorf("invalid %s in status snapshot: %w", fieldFailedAt, err)
	}
	return snap, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
