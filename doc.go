// Package migrator holds the domain model of the zero-downtime schema
// migration orchestrator: migration definitions, ledger records, execution
// results, run reports, the per-migration and per-run state machines, the
// logger interface and the error values shared by every component.
//
// The components live in sub-packages:
//
//   - source: loads migration units from a directory
//   - resolver: computes the pending set gated by dependencies
//   - coordination: the key/value store used for leases and status
//   - lock: single-shot, TTL-bounded leases
//   - ledger: the durable record of applied migrations
//   - strategy: the four execution strategies
//   - orchestrator: drives pending migrations through a strategy
//   - rollback: reverts one applied migration
//   - status: read-only status over the ledger and the live run
//
// Most callers use the façade in pkg/migrator.
package migrator
