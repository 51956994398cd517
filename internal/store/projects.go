package store

import (
	"context"
	"database/sql"
	"time"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
	"codewarden/internal/types"
)

// UpsertProject creates the project or refreshes its name/path/language.
// CreatedAt is preserved on conflict.
func (s *Store) UpsertProject(ctx context.Context, p *types.Project) error {
	if p.ProjectID == "" {
		return apperr.InvalidArgs("project_id", "project_id must not be empty")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (project_id, name, path, language, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			language = excluded.language`,
		p.ProjectID, p.Name, p.Path, p.Language, p.CreatedAt)
	if err != nil {
		return apperr.Storage(err, "upsert project %s", p.ProjectID)
	}
	logging.StoreDebug("Upserted project %s (%s)", p.ProjectID, p.Path)
	return nil
}

// GetProject loads one project by id.
func (s *Store) GetProject(ctx context.Context, projectID string) (*types.Project, error) {
	var p types.Project
	var language sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, name, path, language, created_at
		FROM projects WHERE project_id = ?`, projectID).
		Scan(&p.ProjectID, &p.Name, &p.Path, &language, &p.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "project %s", projectID)
	}
	p.Language = language.String
	return &p, nil
}

// ProjectExists reports whether the id is known.
func (s *Store) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return false, apperr.Storage(err, "check project %s", projectID)
	}
	return n > 0, nil
}

// ListProjects returns all projects ordered by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, name, path, language, created_at
		FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.Storage(err, "list projects")
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		var p types.Project
		var language sql.NullString
		if err := rows.Scan(&p.ProjectID, &p.Name, &p.Path, &language, &p.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan project")
		}
		p.Language = language.String
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteProject removes the project and every dependent row.
// Cascade is explicit so it holds even with foreign_keys off.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{
			"code_relations", "code_entities", "todo_deps", "todos", "notes",
			"decisions", "sessions", "quality_issues", "debt_snapshots", "memories",
		} {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE project_id = ?", projectID); err != nil {
				return apperr.Storage(err, "cascade delete %s for project %s", table, projectID)
			}
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM projects WHERE project_id = ?`, projectID)
		if err != nil {
			return apperr.Storage(err, "delete project %s", projectID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("project %s", projectID)
		}
		logging.Store("Deleted project %s with cascade", projectID)
		return nil
	})
}

// ProjectStatistics counts rows per child table plus todo/note breakdowns.
type ProjectStatistics struct {
	Entities       int            `json:"entities"`
	Relations      int            `json:"relations"`
	Sessions       int            `json:"sessions"`
	Decisions      int            `json:"decisions"`
	Notes          int            `json:"notes"`
	Todos          int            `json:"todos"`
	QualityIssues  int            `json:"quality_issues"`
	DebtSnapshots  int            `json:"debt_snapshots"`
	Memories       int            `json:"memories"`
	TodosByStatus  map[string]int `json:"todos_by_status"`
	NotesByCat     map[string]int `json:"notes_by_category"`
	UnresolvedNote int            `json:"unresolved_notes"`
}

// GetProjectStatistics aggregates counts for one project.
func (s *Store) GetProjectStatistics(ctx context.Context, projectID string) (*ProjectStatistics, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	stats := &ProjectStatistics{
		TodosByStatus: make(map[string]int),
		NotesByCat:    make(map[string]int),
	}
	counts := map[string]*int{
		"code_entities":  &stats.Entities,
		"code_relations": &stats.Relations,
		"sessions":       &stats.Sessions,
		"decisions":      &stats.Decisions,
		"notes":          &stats.Notes,
		"todos":          &stats.Todos,
		"quality_issues": &stats.QualityIssues,
		"debt_snapshots": &stats.DebtSnapshots,
		"memories":       &stats.Memories,
	}
	for table, dst := range counts {
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table+" WHERE project_id = ?", projectID).Scan(dst); err != nil {
			return nil, apperr.Storage(err, "count %s", table)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM todos WHERE project_id = ? GROUP BY status`, projectID)
	if err != nil {
		return nil, apperr.Storage(err, "todo breakdown")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperr.Storage(err, "scan todo breakdown")
		}
		stats.TodosByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "todo breakdown")
	}

	nrows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM notes WHERE project_id = ? GROUP BY category`, projectID)
	if err != nil {
		return nil, apperr.Storage(err, "note breakdown")
	}
	defer nrows.Close()
	for nrows.Next() {
		var cat string
		var n int
		if err := nrows.Scan(&cat, &n); err != nil {
			return nil, apperr.Storage(err, "scan note breakdown")
		}
		stats.NotesByCat[cat] = n
	}
	if err := nrows.Err(); err != nil {
		return nil, apperr.Storage(err, "note breakdown")
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE project_id = ? AND is_resolved = 0`, projectID).
		Scan(&stats.UnresolvedNote); err != nil {
		return nil, apperr.Storage(err, "count unresolved notes")
	}
	return stats, nil
}
