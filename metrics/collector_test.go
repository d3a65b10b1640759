package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_CreatesCollectorWithLedger(t *testing.T) {
	collector := NewCollector("schema_migrations")

	assert.NotNil(t, collector)
	assert.Equal(t, "schema_migrations", collector.ledger)
}

func TestCollector_IncApplied(t *testing.T) {
	collector := NewCollector("coll-ledger-1")

	before := testutil.ToFloat64(MigrationsAppliedTotal.WithLabelValues("coll-ledger-1", "online"))
	collector.IncApplied("online")
	after := testutil.ToFloat64(MigrationsAppliedTotal.WithLabelValues("coll-ledger-1", "online"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncFailed(t *testing.T) {
	collector := NewCollector("coll-ledger-2")

	before := testutil.ToFloat64(MigrationsFailedTotal.WithLabelValues("coll-ledger-2", "maintenance"))
	collector.IncFailed("maintenance")
	after := testutil.ToFloat64(MigrationsFailedTotal.WithLabelValues("coll-ledger-2", "maintenance"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncRollback(t *testing.T) {
	collector := NewCollector("coll-ledger-3")

	collector.IncRollback(true)
	collector.IncRollback(false)
	collector.IncRollback(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(RollbacksTotal.WithLabelValues("coll-ledger-3", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(RollbacksTotal.WithLabelValues("coll-ledger-3", "failure")))
}

func TestCollector_IncLockContention(t *testing.T) {
	collector := NewCollector("coll-ledger-4")

	collector.IncLockContention("apply_migrations_online")

	assert.Equal(t, float64(1), testutil.ToFloat64(LockContentionTotal.WithLabelValues("coll-ledger-4", "apply_migrations_online")))
}

func TestCollector_IncRun(t *testing.T) {
	collector := NewCollector("coll-ledger-5")

	collector.IncRun("completed")
	collector.IncRun("completed")

	assert.Equal(t, float64(2), testutil.ToFloat64(RunsTotal.WithLabelValues("coll-ledger-5", "completed")))
}

func TestCollector_SetPending(t *testing.T) {
	collector := NewCollector("coll-ledger-6")

	collector.SetPending(3, 1)

	assert.Equal(t, float64(3), testutil.ToFloat64(PendingMigrations.WithLabelValues("coll-ledger-6")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BlockedMigrations.WithLabelValues("coll-ledger-6")))

	collector.SetPending(0, 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(PendingMigrations.WithLabelValues("coll-ledger-6")))
}

func TestCollector_ObserveDurations(t *testing.T) {
	collector := NewCollector("coll-ledger-7")

	collector.ObserveMigrationDuration("online", 0.25)
	collector.ObserveRunDuration(1.5)

	assert.Greater(t, testutil.CollectAndCount(MigrationDuration), 0)
	assert.Greater(t, testutil.CollectAndCount(RunDuration), 0)
}
