package store

import "codewarden/internal/apperr"

// schemaDDL creates every table. Nullable tuple columns on quality_issues use
// '' / 0 defaults so the open-issue dedupe comparison stays a plain equality.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		path       TEXT NOT NULL,
		language   TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS code_entities (
		entity_id      TEXT NOT NULL,
		project_id     TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		kind           TEXT NOT NULL,
		name           TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		file_path      TEXT NOT NULL,
		line_start     INTEGER NOT NULL,
		line_end       INTEGER DEFAULT 0,
		signature      TEXT DEFAULT '',
		docstring      TEXT DEFAULT '',
		parent_id      TEXT DEFAULT '',
		metadata       TEXT DEFAULT '',
		PRIMARY KEY (project_id, entity_id)
	)`,

	`CREATE TABLE IF NOT EXISTS code_relations (
		relation_id TEXT PRIMARY KEY,
		project_id  TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		source_id   TEXT NOT NULL,
		target_id   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		file_path   TEXT DEFAULT '',
		resolved    INTEGER NOT NULL DEFAULT 0,
		metadata    TEXT DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		session_id         TEXT PRIMARY KEY,
		project_id         TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		start_time         TIMESTAMP NOT NULL,
		end_time           TIMESTAMP,
		duration_minutes   INTEGER DEFAULT 0,
		goals              TEXT NOT NULL,
		achievements       TEXT DEFAULT '',
		next_steps         TEXT DEFAULT '',
		files_modified     TEXT DEFAULT '',
		issues_encountered TEXT DEFAULT '',
		context_summary    TEXT DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS decisions (
		decision_id   TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		session_id    TEXT DEFAULT '',
		category      TEXT NOT NULL,
		title         TEXT NOT NULL,
		description   TEXT DEFAULT '',
		reasoning     TEXT NOT NULL,
		alternatives  TEXT DEFAULT '',
		trade_offs    TEXT DEFAULT '',
		impact_scope  TEXT DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'active',
		superseded_by TEXT DEFAULT '',
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS notes (
		note_id          TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		session_id       TEXT DEFAULT '',
		category         TEXT NOT NULL,
		title            TEXT NOT NULL,
		content          TEXT NOT NULL,
		importance       INTEGER NOT NULL DEFAULT 3,
		related_code     TEXT DEFAULT '',
		related_entities TEXT DEFAULT '',
		tags             TEXT DEFAULT '',
		is_resolved      INTEGER NOT NULL DEFAULT 0,
		resolved_at      TIMESTAMP,
		resolved_note    TEXT DEFAULT '',
		created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS todos (
		todo_id              TEXT PRIMARY KEY,
		project_id           TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		session_id           TEXT DEFAULT '',
		title                TEXT NOT NULL,
		description          TEXT DEFAULT '',
		category             TEXT NOT NULL DEFAULT 'feature',
		priority             INTEGER NOT NULL DEFAULT 3,
		estimated_difficulty INTEGER NOT NULL DEFAULT 3,
		estimated_hours      REAL DEFAULT 0,
		status               TEXT NOT NULL DEFAULT 'pending',
		progress             INTEGER NOT NULL DEFAULT 0,
		completed_at         TIMESTAMP,
		completion_note      TEXT DEFAULT '',
		created_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS todo_deps (
		project_id    TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		todo_id       TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (todo_id, depends_on_id)
	)`,

	`CREATE TABLE IF NOT EXISTS quality_issues (
		issue_id    TEXT PRIMARY KEY,
		project_id  TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		issue_type  TEXT NOT NULL,
		severity    TEXT NOT NULL,
		entity_id   TEXT DEFAULT '',
		file_path   TEXT DEFAULT '',
		line_number INTEGER DEFAULT 0,
		title       TEXT NOT NULL,
		description TEXT DEFAULT '',
		suggestion  TEXT DEFAULT '',
		metadata    TEXT DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'open',
		detected_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		resolved_at TIMESTAMP,
		resolved_by TEXT DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS debt_snapshots (
		snapshot_id        TEXT PRIMARY KEY,
		project_id         TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		overall_score      REAL NOT NULL,
		code_quality_score REAL NOT NULL,
		test_score         REAL NOT NULL,
		docs_score         REAL NOT NULL,
		deps_score         REAL NOT NULL,
		todo_score         REAL NOT NULL,
		critical_count     INTEGER NOT NULL DEFAULT 0,
		high_count         INTEGER NOT NULL DEFAULT 0,
		medium_count       INTEGER NOT NULL DEFAULT 0,
		low_count          INTEGER NOT NULL DEFAULT 0,
		estimated_days     REAL NOT NULL DEFAULT 0,
		created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS error_records (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		error_id            TEXT NOT NULL UNIQUE,
		error_type          TEXT NOT NULL,
		error_scene         TEXT DEFAULT '',
		error_pattern       TEXT NOT NULL,
		error_message       TEXT DEFAULT '',
		solution            TEXT DEFAULT '',
		solution_confidence REAL NOT NULL DEFAULT 0,
		block_level         TEXT NOT NULL DEFAULT 'none',
		auto_fix            INTEGER NOT NULL DEFAULT 0,
		occurrence_count    INTEGER NOT NULL DEFAULT 1,
		blocked_count       INTEGER NOT NULL DEFAULT 0,
		last_occurred_at    TIMESTAMP NOT NULL,
		created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS intercept_logs (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		error_record_id  INTEGER REFERENCES error_records(id) ON DELETE CASCADE,
		intercept_type   TEXT NOT NULL DEFAULT 'before',
		intercept_action TEXT NOT NULL,
		operation_type   TEXT NOT NULL,
		operation_params TEXT DEFAULT '',
		match_confidence REAL NOT NULL DEFAULT 0,
		session_id       TEXT DEFAULT '',
		created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS memories (
		memory_id    TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
		content      TEXT NOT NULL,
		memory_level TEXT NOT NULL DEFAULT 'mid',
		created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

var indexDDL = []string{
	`CREATE INDEX IF NOT EXISTS idx_entities_project_kind ON code_entities(project_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_project_file ON code_entities(project_id, file_path)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_project_name ON code_entities(project_id, name)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_project_parent ON code_entities(project_id, parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_project_source ON code_relations(project_id, source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_project_target ON code_relations(project_id, target_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_project_kind ON code_relations(project_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_todos_project_status_priority ON todos(project_id, status, priority)`,
	`CREATE INDEX IF NOT EXISTS idx_error_records_type ON error_records(error_type)`,
	`CREATE INDEX IF NOT EXISTS idx_error_records_last_occurred ON error_records(last_occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_project_status ON quality_issues(project_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_project_importance ON notes(project_id, importance)`,
}

func (s *Store) initSchema() error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "create table")
		}
	}
	for _, ddl := range indexDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "create index")
		}
	}
	return runMigrations(s.db)
}
