package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestNew_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")

	db, err := New(Config{Path: path, Profile: ProfileStandard, Name: "fleet"})
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, db.QuickCheck(context.Background()))
	assert.Equal(t, "fleet", db.Name())
	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, path, db.Path())
}

func TestNew_DefaultsToStandardProfile(t *testing.T) {
	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), "unnamed.db"),
		Name: "unnamed",
	})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
}

func TestNew_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "telemetry.db")

	db, err := New(Config{Path: path, Profile: ProfileStandard, Name: "telemetry"})
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestMigrate_AppliesFleetSchema(t *testing.T) {
	db := newTestDB(t, "fleet", ProfileStandard)

	require.NoError(t, db.Migrate())

	// Schema should be usable immediately
	_, err := db.Exec(
		`INSERT INTO drivers (name, email, password_hash) VALUES (?, ?, ?)`,
		"Asha Pillai", "asha@example.com", "x",
	)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM drivers`).Scan(&count))
	assert.Equal(t, 1, count)

	// Re-running migration must be a no-op
	require.NoError(t, db.Migrate())
}

func TestMigrate_AllSchemas(t *testing.T) {
	// Each database name maps to a schema file; verify a representative
	// table from each schema exists after migration.
	tests := []struct {
		name    string
		profile DatabaseProfile
		table   string
	}{
		{"fleet", ProfileStandard, "assignments"},
		{"telemetry", ProfileStandard, "health_events"},
		{"ledger", ProfileLedger, "insurance_payouts"},
		{"cache", ProfileCache, "api_cache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t, tt.name, tt.profile)
			require.NoError(t, db.Migrate())

			var found string
			err := db.QueryRow(
				`SELECT name FROM sqlite_master WHERE type='table' AND name=?`,
				tt.table,
			).Scan(&found)
			require.NoError(t, err)
			assert.Equal(t, tt.table, found)
		})
	}
}

func TestMigrate_UnknownDatabaseNameSkips(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)
	require.NoError(t, db.Migrate())
}

func TestAssignments_UniquePerPackageAndDate(t *testing.T) {
	db := newTestDB(t, "fleet", ProfileStandard)
	require.NoError(t, db.Migrate())

	_, err := db.Exec(
		`INSERT INTO drivers (id, name, email, password_hash) VALUES (1, 'A', 'a@x.com', 'h')`)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO packages (id, tracking_number, delivery_address) VALUES (1, 'TRK-1', 'somewhere')`)
	require.NoError(t, err)

	_, err = db.Exec(
		`INSERT INTO assignments (package_id, driver_id, operational_date) VALUES (1, 1, '2025-06-01')`)
	require.NoError(t, err)

	// Same package, same date: rejected
	_, err = db.Exec(
		`INSERT INTO assignments (package_id, driver_id, operational_date) VALUES (1, 1, '2025-06-01')`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")

	// Same package, different date: fine
	_, err = db.Exec(
		`INSERT INTO assignments (package_id, driver_id, operational_date) VALUES (1, 1, '2025-06-02')`)
	require.NoError(t, err)
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t, "txtest", ProfileStandard)
	_, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, val TEXT)`)
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO items (val) VALUES ('kept')`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t, "txtest", ProfileStandard)
	_, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, val TEXT)`)
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO items (val) VALUES ('discarded')`); err != nil {
			return err
		}
		return fmt.Errorf("business rule violated")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "business rule violated")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversFromPanic(t *testing.T) {
	db := newTestDB(t, "txtest", ProfileStandard)
	_, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, val TEXT)`)
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, _ = tx.Exec(`INSERT INTO items (val) VALUES ('discarded')`)
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_NilDB(t *testing.T) {
	err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
	require.Error(t, err)
}

func TestWithTransactionContext_CancelledContext(t *testing.T) {
	db := newTestDB(t, "txtest", ProfileStandard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTransactionContext(ctx, db.Conn(), func(tx *sql.Tx) error { return nil })
	require.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t, "fleet", ProfileStandard)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.HealthCheck(context.Background()))
}

func TestWALCheckpoint_DefaultMode(t *testing.T) {
	db := newTestDB(t, "fleet", ProfileStandard)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.WALCheckpoint(""))
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t, "fleet", ProfileStandard)
	require.NoError(t, db.Migrate())

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
	assert.Greater(t, stats.SizeBytes, int64(0))
}
