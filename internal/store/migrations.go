package store

import (
	"database/sql"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
)

// migration adds a column to databases created before the column existed in
// the base DDL. Applied only when the table exists and the column is missing.
type migration struct {
	Table  string
	Column string
	Query  string
}

// pendingMigrations lists schema deltas in application order.
var pendingMigrations = []migration{
	{"error_records", "error_scene", `ALTER TABLE error_records ADD COLUMN error_scene TEXT DEFAULT ''`},
	{"error_records", "auto_fix", `ALTER TABLE error_records ADD COLUMN auto_fix INTEGER NOT NULL DEFAULT 0`},
	{"todos", "estimated_hours", `ALTER TABLE todos ADD COLUMN estimated_hours REAL DEFAULT 0`},
	{"todos", "completion_note", `ALTER TABLE todos ADD COLUMN completion_note TEXT DEFAULT ''`},
	{"notes", "resolved_note", `ALTER TABLE notes ADD COLUMN resolved_note TEXT DEFAULT ''`},
	{"quality_issues", "resolved_by", `ALTER TABLE quality_issues ADD COLUMN resolved_by TEXT DEFAULT ''`},
}

// runMigrations applies schema migrations for existing databases.
func runMigrations(db *sql.DB) error {
	applied, skipped := 0, 0
	for _, m := range pendingMigrations {
		ok, err := tableExists(db, m.Table)
		if err != nil {
			return apperr.Storage(err, "check table %s", m.Table)
		}
		if !ok {
			skipped++
			continue
		}
		has, err := columnExists(db, m.Table, m.Column)
		if err != nil {
			return apperr.Storage(err, "check column %s.%s", m.Table, m.Column)
		}
		if has {
			skipped++
			continue
		}
		logging.StoreDebug("Applying migration: %s", m.Query)
		if _, err := db.Exec(m.Query); err != nil {
			// Column may already exist in a different form; keep going.
			logging.Get(logging.CategoryStore).Warn("Migration %s.%s failed: %v", m.Table, m.Column, err)
			continue
		}
		applied++
	}
	if applied > 0 {
		logging.Store("Schema migrations complete: applied=%d, skipped=%d", applied, skipped)
	}
	return nil
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
	return n > 0, err
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
