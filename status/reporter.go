package status

import (
	"context"
	"fmt"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/ledger"
	"github.com/getpup/pupsourcing-migrator/resolver"
)

// Summary is the read-only view returned by Reporter.Status.
type Summary struct {
	// Current is the live snapshot, nil when no run is active.
	Current *migrator.StatusSnapshot

	AppliedCount int
	PendingCount int
	BlockedCount int

	// LastApplied is the most recently applied record, nil when the ledger is empty.
	LastApplied *migrator.AppliedRecord

	// NextPending is the name of the next definition to apply, empty when none.
	NextPending string
}

// Listing is the read-only view returned by Reporter.List.
type Listing struct {
	Applied []migrator.AppliedRecord
	Pending []migrator.Definition
	Blocked []resolver.Blocked
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	// Source supplies the migration definitions (required).
	Source migrator.Source

	// Ledger is the applied-migrations ledger (required).
	Ledger *ledger.Ledger

	// Board is the live snapshot board. If nil, Summary.Current is always nil.
	Board *Board

	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger
}

// Reporter answers status queries. It never writes.
type Reporter struct {
	source   migrator.Source
	ledger   *ledger.Ledger
	board    *Board
	resolver *resolver.Resolver
}

// NewReporter creates a Reporter.
func NewReporter(cfg ReporterConfig) *Reporter {
	return &Reporter{
		source:   cfg.Source,
		ledger:   cfg.Ledger,
		board:    cfg.Board,
		resolver: &resolver.Resolver{Logger: cfg.Logger},
	}
}

// Status summarises the live run and the ledger against the source.
func (r *Reporter) Status(ctx context.Context) (Summary, error) {
	listing, err := r.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		AppliedCount: len(listing.Applied),
		PendingCount: len(listing.Pending),
		BlockedCount: len(listing.Blocked),
	}
	if n := len(listing.Applied); n > 0 {
		last := listing.Applied[n-1]
		summary.LastApplied = &last
	}
	if len(listing.Pending) > 0 {
		summary.NextPending = listing.Pending[0].Name
	}

	if r.board != nil {
		summary.Current, err = r.board.Current(ctx)
		if err != nil {
			return Summary{}, err
		}
	}
	return summary, nil
}

// List returns the applied records, in apply order, and the pending and
// blocked definitions, in source order.
func (r *Reporter) List(ctx context.Context) (Listing, error) {
	defs, err := r.source.Load(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := r.ledger.Applied(ctx)
	if err != nil {
		return Listing{}, err
	}

	ids := make(map[string]struct{}, len(applied))
	for _, rec := range applied {
		ids[rec.ID] = struct{}{}
	}
	plan := r.resolver.Pending(ctx, defs, ids)

	return Listing{
		Applied: applied,
		Pending: plan.Pending,
		Blocked: plan.Blocked,
	}, nil
}
