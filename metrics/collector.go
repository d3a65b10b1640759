package metrics

// Collector wraps metrics and provides helper methods with the ledger label pre-filled.
type Collector struct {
	ledger string
}

// NewCollector creates a new Collector for the given ledger table.
func NewCollector(ledger string) *Collector {
	return &Collector{ledger: ledger}
}

// IncApplied increments the applied migrations counter.
func (c *Collector) IncApplied(strategy string) {
	MigrationsAppliedTotal.WithLabelValues(c.ledger, strategy).Inc()
}

// IncFailed increments the failed migrations counter.
func (c *Collector) IncFailed(strategy string) {
	MigrationsFailedTotal.WithLabelValues(c.ledger, strategy).Inc()
}

// IncRollback increments the rollbacks counter for a successful or failed rollback.
func (c *Collector) IncRollback(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	RollbacksTotal.WithLabelValues(c.ledger, result).Inc()
}

// IncLockContention increments the lock contention counter for an operation.
func (c *Collector) IncLockContention(operation string) {
	LockContentionTotal.WithLabelValues(c.ledger, operation).Inc()
}

// IncRun increments the runs counter for an outcome.
func (c *Collector) IncRun(outcome string) {
	RunsTotal.WithLabelValues(c.ledger, outcome).Inc()
}

// SetPending sets the pending and blocked migrations gauges.
func (c *Collector) SetPending(pending, blocked int) {
	PendingMigrations.WithLabelValues(c.ledger).Set(float64(pending))
	BlockedMigrations.WithLabelValues(c.ledger).Set(float64(blocked))
}

// ObserveMigrationDuration records a migration duration observation.
func (c *Collector) ObserveMigrationDuration(strategy string, seconds float64) {
	MigrationDuration.WithLabelValues(c.ledger, strategy).Observe(seconds)
}

// ObserveRunDuration records a run duration observation.
func (c *Collector) ObserveRunDuration(seconds float64) {
	RunDuration.WithLabelValues(c.ledger).Observe(seconds)
}
