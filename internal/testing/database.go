package testing

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/mend/db"
)

// CreateTestDB creates a migrated file-backed SQLite database in t.TempDir().
// A file is used because every pooled connection to ":memory:" sees its own database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mend_test.db")
	database, err := db.OpenWithMigrations(path, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// CreateTable creates a source table with a tid column followed by columns
// (a comma separated column definition list) and inserts rows, each starting with its tid.
func CreateTable(t *testing.T, database *sqlx.DB, table, columns string, rows ...[]any) {
	t.Helper()

	ddl := "CREATE TABLE " + table + " (tid INTEGER PRIMARY KEY, " + columns + ")"
	if _, err := database.Exec(ddl); err != nil {
		t.Fatalf("Failed to create table %s: %v", table, err)
	}

	for _, row := range rows {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(row)), ", ")
		query := database.Rebind("INSERT INTO " + table + " VALUES (" + placeholders + ")")
		if _, err := database.Exec(query, row...); err != nil {
			t.Fatalf("Failed to insert into %s: %v", table, err)
		}
	}
}

// HospitalColumns is the column list of the hospital fixtures.
const HospitalColumns = "zipcode TEXT, city TEXT, beds INTEGER, rating REAL"

// CreateHospital creates hospital_noise and hospital_clean. Tuples 1 and 2 share
// zipcode 60611; tuple 2 carries a misspelled city in the noisy table.
func CreateHospital(t *testing.T, database *sqlx.DB) {
	t.Helper()

	CreateTable(t, database, "hospital_noise", HospitalColumns,
		[]any{1, "60611", "Chicago", 120, 4.5},
		[]any{2, "60611", "Chicgo", 80, 3.5},
		[]any{3, "10001", "New York", 300, 4.0},
	)
	CreateTable(t, database, "hospital_clean", HospitalColumns,
		[]any{1, "60611", "Chicago", 120, 4.5},
		[]any{2, "60611", "Chicago", 80, 3.5},
		[]any{3, "10001", "New York", 300, 4.0},
	)
}
