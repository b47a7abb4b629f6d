// Package testing provides testing utilities and helpers for the dispatch project.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/fleetops/dispatch/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a temporary SQLite database for testing with automatic
// schema migration. Returns the database instance and a cleanup function
// that closes the connection. The cleanup function is idempotent.
//
// Supported schema names:
//   - "fleet" - drivers, packages, assignments, deliveries, swap_requests, settings
//   - "telemetry" - health_events, gps_logs
//   - "ledger" - insurance_payouts
//   - "cache" - api_cache, job_runs
//   - Unknown names - creates an empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temporary file per test for isolation; shared in-memory databases
	// leak state between parallel tests.
	tmpFile, err := os.CreateTemp(t.TempDir(), fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database %s: %v", name, err)
		}
	}
}

// NewTestDBWithSchema creates a temporary SQLite database and executes the
// given schema SQL directly instead of running migrations. Useful for
// narrow repository tests that only need one table.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if schema != "" {
		if _, err := db.Conn().Exec(schema); err != nil {
			_ = db.Close()
			t.Fatalf("Failed to execute schema for test database %s: %v", name, err)
		}
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database %s: %v", name, err)
		}
	}
}

// GetRawConnection returns the raw *sql.DB connection from a database.DB
// instance for tests that need direct access.
func GetRawConnection(db *database.DB) *sql.DB {
	return db.Conn()
}
