//go:build integration

package integration_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rootpkg "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
	"github.com/getpup/pupsourcing-migrator/ledger"
	"github.com/getpup/pupsourcing-migrator/pkg/migrator"
	"github.com/getpup/pupsourcing-migrator/source"
	"github.com/getpup/pupsourcing-migrator/strategy"
)

func newTestMigrator(t *testing.T, store coordination.Store, table string, defs ...rootpkg.Definition) *migrator.Migrator {
	t.Helper()

	m, err := migrator.New(
		migrator.WithDatabase(getTestDB(t), ledger.Postgres),
		migrator.WithCoordinationStore(store),
		migrator.WithSource(source.Static(defs)),
		migrator.WithTableName(table),
		migrator.WithMetricsEnabled(false),
	)
	require.NoError(t, err)
	return m
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)
	ledgerTable := uniqueTable("it_ledger")
	users := uniqueTable("it_users")
	t.Cleanup(func() { dropTables(t, db, users, ledgerTable) })

	m := newTestMigrator(t, getTestStore(t), ledgerTable,
		rootpkg.Definition{
			ID: "0001_users", Name: "create users", Version: "1.0.0",
			ForwardSQL:  fmt.Sprintf("CREATE TABLE %s (id SERIAL PRIMARY KEY, email TEXT)", users),
			RollbackSQL: fmt.Sprintf("DROP TABLE %s", users),
		},
		rootpkg.Definition{
			ID: "0002_index", Name: "index email", Version: "1.0.0",
			ForwardSQL:   fmt.Sprintf("CREATE INDEX idx_%s_email ON %s (email)", users, users),
			RollbackSQL:  fmt.Sprintf("DROP INDEX idx_%s_email", users),
			Dependencies: []string{"0001_users"},
		},
	)

	report, err := m.Apply(ctx, migrator.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users", "0002_index"}, report.Applied())
	assert.True(t, tableExists(t, db, users))

	rec, err := m.Ledger().Get(ctx, "0001_users")
	require.NoError(t, err)
	assert.Len(t, rec.Checksum, 64)

	report, err = m.Apply(ctx, migrator.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, rootpkg.RunOutcomeNothingToDo, report.Outcome)

	res, err := m.Rollback(ctx, "0002_index")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)

	res, err = m.Rollback(ctx, "0001_users")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.False(t, tableExists(t, db, users))
}

func TestConcurrentApplyIsMutuallyExclusive(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)
	store := getTestStore(t)
	ledgerTable := uniqueTable("it_concurrent")
	target := uniqueTable("it_slow")
	t.Cleanup(func() { dropTables(t, db, target, ledgerTable) })

	def := rootpkg.Definition{
		ID: "0001_slow", Name: "slow", Version: "1.0.0",
		ForwardSQL: fmt.Sprintf("SELECT pg_sleep(1); CREATE TABLE %s (id INT)", target),
	}

	const runners = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		applied  int
		lockHeld int
	)
	for i := 0; i < runners; i++ {
		m := newTestMigrator(t, store, ledgerTable, def)
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := m.Apply(ctx, migrator.ApplyOptions{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, rootpkg.ErrLockHeld):
				lockHeld++
			case err == nil && len(report.Applied()) == 1:
				applied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	// Runners that start after the winner finished find nothing to do.
	assert.LessOrEqual(t, lockHeld, runners-1)

	var rows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+ledgerTable).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestShadowTableStrategy(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)
	ledgerTable := uniqueTable("it_shadow_ledger")
	orders := uniqueTable("it_orders")
	t.Cleanup(func() { dropTables(t, db, orders, "shadow_"+orders, ledgerTable) })

	_, err := db.Exec(fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, total INT)", orders))
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (id, total) VALUES (1, 10), (2, 20)", orders))
	require.NoError(t, err)

	m := newTestMigrator(t, getTestStore(t), ledgerTable, rootpkg.Definition{
		ID: "0001_orders_v2", Name: "orders v2", Version: "1.0.0",
		TargetTable: orders,
		CopyColumns: []string{"id", "total"},
		ForwardSQL:  fmt.Sprintf("CREATE TABLE shadow_%s (id INT PRIMARY KEY, total INT, currency TEXT DEFAULT 'USD')", orders),
	})

	report, err := m.Apply(ctx, migrator.ApplyOptions{Strategy: strategy.KindShadowTable})
	require.NoError(t, err)
	require.False(t, report.Failed(), report.Results)

	var count int
	require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE currency = 'USD'", orders)).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRedisLeaseExpires(t *testing.T) {
	store := getTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok, err := store.SetNX(ctx, "lease", "owner", 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		ok, err := store.SetNX(ctx, "lease", "other", time.Minute)
		return err == nil && ok
	}, 5*time.Second, 50*time.Millisecond)
}
