package strategy

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
	"github.com/getpup/pupsourcing-migrator/coordination/memory"
	"github.com/getpup/pupsourcing-migrator/internal/logtest"
	"github.com/getpup/pupsourcing-migrator/internal/sqltest"
	"github.com/getpup/pupsourcing-migrator/ledger"
)

func newEnv(t *testing.T) (Env, *ledger.Ledger) {
	t.Helper()
	db := sqltest.Open(t)
	l, err := ledger.New(db, ledger.Config{Dialect: ledger.SQLite})
	require.NoError(t, err)
	require.NoError(t, l.EnsureTable(context.Background()))
	return Env{DB: db, Dialect: ledger.SQLite, Logger: logtest.New()}, l
}

// recordInto returns a Recorder writing def into l, counting its calls.
func recordInto(l *ledger.Ledger, def migrator.Definition, kind Kind, calls *int) Recorder {
	return func(ctx context.Context, tx *sql.Tx, d time.Duration) error {
		*calls++
		return l.RecordTx(ctx, tx, migrator.NewAppliedRecord(def, string(kind), time.Now().UTC(), d))
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"online", "shadow_table", "dual_write", "maintenance"} {
		k, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, Kind(name), k)
	}

	_, err := ParseKind("blue_green")
	assert.ErrorIs(t, err, migrator.ErrUnknownStrategy)
}

func TestParse(t *testing.T) {
	s, err := Parse("shadow_table", Options{ShadowPrefix: "tmp_"})
	require.NoError(t, err)
	assert.Equal(t, KindShadowTable, s.Kind())
	assert.Equal(t, "tmp_orders", s.(ShadowTable).ShadowName("orders"))

	_, err = Parse("maintenance", Options{})
	assert.Error(t, err, "maintenance needs a flag store")

	s, err = Parse("maintenance", Options{Flags: memory.New()})
	require.NoError(t, err)
	assert.Equal(t, KindMaintenance, s.Kind())

	_, err = New(Kind("nope"), Options{})
	assert.ErrorIs(t, err, migrator.ErrUnknownStrategy)
}

func TestOnline_Success(t *testing.T) {
	env, l := newEnv(t)
	def := migrator.Definition{
		ID:         "0001_users",
		Name:       "users",
		ForwardSQL: "CREATE TABLE users (id INTEGER PRIMARY KEY); INSERT INTO users (id) VALUES (1), (2);",
	}
	calls := 0
	env.Record = recordInto(l, def, KindOnline, &calls)

	res := Online{}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "0001_users", res.MigrationID)
	assert.Equal(t, "online", res.Strategy)
	assert.Empty(t, res.Error)
	assert.Equal(t, int64(2), res.AffectedRows)
	assert.Greater(t, res.Duration, time.Duration(0))
	assert.False(t, res.RollbackExecuted)
	assert.Equal(t, 1, calls)

	assert.Equal(t, 2, countRows(t, env.DB, "users"))
	rec, err := l.Get(context.Background(), "0001_users")
	require.NoError(t, err)
	assert.Equal(t, def.Checksum(), rec.Checksum)
}

func TestOnline_FailureRecordsNothing(t *testing.T) {
	env, l := newEnv(t)
	def := migrator.Definition{ID: "0001_bad", ForwardSQL: "CREATE TABLE ok (id INT); CREATE TABLEE broken"}
	calls := 0
	env.Record = recordInto(l, def, KindOnline, &calls)

	res := Online{}.Apply(context.Background(), env, def)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, 0, calls)
	assert.False(t, sqltest.TableExists(t, env.DB, "ok"), "partial forward sql must roll back")

	_, err := l.Get(context.Background(), "0001_bad")
	assert.ErrorIs(t, err, migrator.ErrNotApplied)
}

func TestOnline_RecorderFailureRollsBackForwardSQL(t *testing.T) {
	env, _ := newEnv(t)
	def := migrator.Definition{ID: "0001", ForwardSQL: "CREATE TABLE t (id INT)"}
	env.Record = func(ctx context.Context, tx *sql.Tx, d time.Duration) error {
		return errors.New("ledger unavailable")
	}

	res := Online{}.Apply(context.Background(), env, def)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "ledger unavailable")
	assert.False(t, sqltest.TableExists(t, env.DB, "t"))
}

func TestDualWrite_BehavesLikeOnline(t *testing.T) {
	env, l := newEnv(t)
	def := migrator.Definition{ID: "0001", ForwardSQL: "CREATE TABLE t (id INT)"}
	calls := 0
	env.Record = recordInto(l, def, KindDualWrite, &calls)

	res := DualWrite{}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "dual_write", res.Strategy)
	assert.Equal(t, 1, calls)
	assert.True(t, sqltest.TableExists(t, env.DB, "t"))
}

func seedOrders(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL);
INSERT INTO orders (id, total) VALUES (1, 100), (2, 250);`)
	require.NoError(t, err)
}

func TestShadowTable_Success(t *testing.T) {
	env, l := newEnv(t)
	seedOrders(t, env.DB)
	def := migrator.Definition{
		ID:          "0002_orders_note",
		ForwardSQL:  "CREATE TABLE shadow_orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL, note TEXT NOT NULL DEFAULT '')",
		TargetTable: "orders",
		CopyColumns: []string{"id", "total"},
	}
	calls := 0
	env.Record = recordInto(l, def, KindShadowTable, &calls)

	res := ShadowTable{}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "shadow_table", res.Strategy)
	assert.Equal(t, int64(2), res.AffectedRows)
	assert.Equal(t, 1, calls)

	assert.False(t, sqltest.TableExists(t, env.DB, "shadow_orders"))
	assert.Equal(t, []string{"id", "total", "note"}, sqltest.Columns(t, env.DB, "orders"))
	assert.Equal(t, 2, countRows(t, env.DB, "orders"))

	var total int
	require.NoError(t, env.DB.QueryRow("SELECT total FROM orders WHERE id = 2").Scan(&total))
	assert.Equal(t, 250, total)

	_, err := l.Get(context.Background(), def.ID)
	assert.NoError(t, err)
}

func TestShadowTable_CopiesTargetColumnsByDefault(t *testing.T) {
	env, _ := newEnv(t)
	seedOrders(t, env.DB)
	def := migrator.Definition{
		ID:          "0002",
		ForwardSQL:  "CREATE TABLE shadow_orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL)",
		TargetTable: "orders",
	}

	res := ShadowTable{}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, countRows(t, env.DB, "orders"))
}

func TestShadowTable_CopyFailureKeepsTarget(t *testing.T) {
	env, l := newEnv(t)
	seedOrders(t, env.DB)
	def := migrator.Definition{
		ID:          "0002",
		ForwardSQL:  "CREATE TABLE shadow_orders (id INTEGER PRIMARY KEY, amount INTEGER)",
		TargetTable: "orders",
		CopyColumns: []string{"id", "missing_column"},
	}
	calls := 0
	env.Record = recordInto(l, def, KindShadowTable, &calls)

	res := ShadowTable{}.Apply(context.Background(), env, def)

	assert.False(t, res.Success)
	assert.Equal(t, 0, calls)
	assert.False(t, sqltest.TableExists(t, env.DB, "shadow_orders"))
	assert.Equal(t, []string{"id", "total"}, sqltest.Columns(t, env.DB, "orders"))
	assert.Equal(t, 2, countRows(t, env.DB, "orders"))
}

func TestShadowTable_SwapFailureRestoresTarget(t *testing.T) {
	env, _ := newEnv(t)
	seedOrders(t, env.DB)
	def := migrator.Definition{
		ID:          "0002",
		ForwardSQL:  "CREATE TABLE shadow_orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL, note TEXT)",
		TargetTable: "orders",
	}
	env.Record = func(ctx context.Context, tx *sql.Tx, d time.Duration) error {
		return errors.New("ledger write failed")
	}

	res := ShadowTable{}.Apply(context.Background(), env, def)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "ledger write failed")
	assert.False(t, sqltest.TableExists(t, env.DB, "shadow_orders"))
	assert.Equal(t, []string{"id", "total"}, sqltest.Columns(t, env.DB, "orders"))
	assert.Equal(t, 2, countRows(t, env.DB, "orders"))
}

func TestShadowTable_AddsColumnWithoutCopyColumns(t *testing.T) {
	env, l := newEnv(t)
	seedOrders(t, env.DB)
	def := migrator.Definition{
		ID:          "0002_orders_note",
		ForwardSQL:  "CREATE TABLE shadow_orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL, note TEXT NOT NULL DEFAULT '')",
		TargetTable: "orders",
	}
	calls := 0
	env.Record = recordInto(l, def, KindShadowTable, &calls)

	res := ShadowTable{}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(2), res.AffectedRows)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"id", "total", "note"}, sqltest.Columns(t, env.DB, "orders"))
	assert.Equal(t, 2, countRows(t, env.DB, "orders"))
}

func TestShadowTable_DroppedTargetKeepsShadow(t *testing.T) {
	env, _ := newEnv(t)
	logger := logtest.New()
	env.Logger = logger
	seedOrders(t, env.DB)
	def := migrator.Definition{
		ID:          "0002",
		ForwardSQL:  "CREATE TABLE shadow_orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL)",
		TargetTable: "orders",
	}
	// Commits the drop before failing, as MySQL does for DDL.
	s := ShadowTable{afterDrop: func(tx *sql.Tx) error {
		if err := tx.Commit(); err != nil {
			return err
		}
		return errors.New("rename failed")
	}}

	res := s.Apply(context.Background(), env, def)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rename failed")
	assert.False(t, sqltest.TableExists(t, env.DB, "orders"))
	require.True(t, sqltest.TableExists(t, env.DB, "shadow_orders"))
	assert.Equal(t, 2, countRows(t, env.DB, "shadow_orders"))

	errs := logger.Level("error")
	require.NotEmpty(t, errs)
	assert.Equal(t, "shadow_orders", errs[0].Value("shadow"))
}

func TestShadowTable_WithoutTargetFallsBackToOnline(t *testing.T) {
	env, _ := newEnv(t)
	def := migrator.Definition{ID: "0001", ForwardSQL: "CREATE TABLE plain (id INT)"}

	res := ShadowTable{}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "shadow_table", res.Strategy)
	assert.True(t, sqltest.TableExists(t, env.DB, "plain"))
	assert.False(t, sqltest.TableExists(t, env.DB, "shadow_plain"))
}

func TestMaintenance_RaisesFlagThenApplies(t *testing.T) {
	env, _ := newEnv(t)
	flags := coordination.NewMockStore()
	def := migrator.Definition{ID: "0001", ForwardSQL: "CREATE TABLE t (id INT)"}

	res := Maintenance{Flags: flags}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "maintenance", res.Strategy)
	require.Len(t, flags.SetCalls, 1)
	assert.Equal(t, coordination.SetCall{Key: DefaultMaintenanceKey, Value: "true", TTL: time.Hour}, flags.SetCalls[0])
	assert.True(t, sqltest.TableExists(t, env.DB, "t"))
}

func TestMaintenance_FlagFailureRunsNoSQL(t *testing.T) {
	env, _ := newEnv(t)
	flags := coordination.NewMockStore()
	flags.SetFunc = func(ctx context.Context, key, value string, ttl time.Duration) error {
		return errors.New("redis down")
	}
	def := migrator.Definition{ID: "0001", ForwardSQL: "CREATE TABLE t (id INT)"}
	calls := 0
	env.Record = func(ctx context.Context, tx *sql.Tx, d time.Duration) error {
		calls++
		return nil
	}

	res := Maintenance{Flags: flags}.Apply(context.Background(), env, def)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "redis down")
	assert.Equal(t, 0, calls)
	assert.False(t, sqltest.TableExists(t, env.DB, "t"))
}

func TestMaintenance_CustomKeyAndTTL(t *testing.T) {
	env, _ := newEnv(t)
	flags := memory.New()
	def := migrator.Definition{ID: "0001", ForwardSQL: "CREATE TABLE t (id INT)"}

	res := Maintenance{Flags: flags, Key: "spr:maintenance:required", TTL: time.Minute}.Apply(context.Background(), env, def)

	require.True(t, res.Success, res.Error)
	val, err := flags.Get(context.Background(), "spr:maintenance:required")
	require.NoError(t, err)
	assert.Equal(t, "true", val)
}
