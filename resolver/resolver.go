// Package resolver computes which migration definitions are ready to apply.
package resolver

import (
	"context"
	"fmt"
	"strings"

	migrator "github.com/getpup/pupsourcing-migrator"
)

// Blocked is a pending definition whose dependencies are not all applied.
type Blocked struct {
	Definition migrator.Definition
	Missing    []string
}

// Err returns an error matching migrator.ErrMissingDependency.
func (b Blocked) Err() error {
	return fmt.Errorf("%w: %s requires %s", migrator.ErrMissingDependency, b.Definition.ID, strings.Join(b.Missing, ", "))
}

// Plan is the result of resolving definitions against the ledger.
type Plan struct {
	// Pending holds the definitions ready to apply, in source order.
	Pending []migrator.Definition

	// Blocked holds unapplied definitions excluded because of missing dependencies.
	Blocked []Blocked
}

// Resolver computes plans. The zero value is ready to use.
type Resolver struct {
	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger
}

// Pending returns the definitions not present in applied whose dependencies
// are all present in applied, preserving the order of defs. Each blocked
// definition is logged as a warning.
//
// Dependencies gate against applied only. A definition depending on another
// pending one becomes pending once that one is applied, so dependency cycles
// stay blocked forever.
func (r *Resolver) Pending(ctx context.Context, defs []migrator.Definition, applied map[string]struct{}) Plan {
	plan := Resolve(defs, applied)

	if r.Logger != nil {
		for _, blocked := range plan.Blocked {
			r.Logger.Warn(ctx, "skipping migration with missing dependencies",
				"migration_id", blocked.Definition.ID,
				"missing", blocked.Missing,
				"error", blocked.Err())
		}
	}

	return plan
}

// Resolve is Pending without logging.
func Resolve(defs []migrator.Definition, applied map[string]struct{}) Plan {
	plan := Plan{Pending: []migrator.Definition{}}

	for _, def := range defs {
		if _, ok := applied[def.ID]; ok {
			continue
		}

		var missing []string
		for _, dep := range def.Dependencies {
			if _, ok := applied[dep]; !ok {
				missing = append(missing, dep)
			}
		}

		if len(missing) > 0 {
			plan.Blocked = append(plan.Blocked, Blocked{Definition: def, Missing: missing})
			continue
		}

		plan.Pending = append(plan.Pending, def)
	}

	return plan
}

// Schedule returns the order in which a run that applies every migration
// successfully would apply defs: after each step the applied definition
// joins the applied set and defs are resolved again. applied is not modified.
func Schedule(defs []migrator.Definition, applied map[string]struct{}) []migrator.Definition {
	done := make(map[string]struct{}, len(applied)+len(defs))
	for id := range applied {
		done[id] = struct{}{}
	}

	order := []migrator.Definition{}
	for {
		plan := Resolve(defs, done)
		if len(plan.Pending) == 0 {
			return order
		}
		next := plan.Pending[0]
		order = append(order, next)
		done[next.ID] = struct{}{}
	}
}

// AppliedSet builds the lookup set Pending expects from ledger ids.
func AppliedSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
