package store

import (
	"context"
	"database/sql"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
	"codewarden/internal/types"
)

const entityColumns = `entity_id, project_id, kind, name, qualified_name,
	file_path, line_start, line_end, signature, docstring, parent_id, metadata`

const relationColumns = `relation_id, project_id, source_id, target_id, kind,
	file_path, resolved, metadata`

// ReplaceProjectAnalysis atomically swaps the whole entity/relation graph for
// a project. Used by a full analyze run.
func (s *Store) ReplaceProjectAnalysis(ctx context.Context, projectID string, entities []*types.CodeEntity, relations []*types.CodeRelation) error {
	timer := logging.StartTimer(logging.CategoryStore, "ReplaceProjectAnalysis")
	defer timer.Stop()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM code_relations WHERE project_id = ?`, projectID); err != nil {
			return apperr.Storage(err, "clear relations for %s", projectID)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM code_entities WHERE project_id = ?`, projectID); err != nil {
			return apperr.Storage(err, "clear entities for %s", projectID)
		}
		return insertGraph(ctx, tx, entities, relations)
	})
}

// ReplaceFileAnalysis swaps entities/relations for the given files only.
// Used by watch-mode incremental re-analysis; files no longer on disk are
// passed with no new entities so their rows are removed.
func (s *Store) ReplaceFileAnalysis(ctx context.Context, projectID string, files []string, entities []*types.CodeEntity, relations []*types.CodeRelation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, f := range files {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM code_relations WHERE project_id = ? AND file_path = ?`,
				projectID, f); err != nil {
				return apperr.Storage(err, "clear relations for file %s", f)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM code_entities WHERE project_id = ? AND file_path = ?`,
				projectID, f); err != nil {
				return apperr.Storage(err, "clear entities for file %s", f)
			}
		}
		return insertGraph(ctx, tx, entities, relations)
	})
}

func insertGraph(ctx context.Context, tx *sql.Tx, entities []*types.CodeEntity, relations []*types.CodeRelation) error {
	estmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.Storage(err, "prepare entity insert")
	}
	defer estmt.Close()
	for _, e := range entities {
		if _, err := estmt.ExecContext(ctx,
			e.EntityID, e.ProjectID, e.Kind, e.Name, e.QualifiedName,
			e.FilePath, e.LineStart, e.LineEnd, e.Signature, e.Docstring,
			e.ParentID, marshalJSON(e.Metadata)); err != nil {
			return apperr.Storage(err, "insert entity %s", e.QualifiedName)
		}
	}

	rstmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_relations (`+relationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.Storage(err, "prepare relation insert")
	}
	defer rstmt.Close()
	for _, r := range relations {
		resolved := 0
		if r.Resolved {
			resolved = 1
		}
		if _, err := rstmt.ExecContext(ctx,
			r.RelationID, r.ProjectID, r.SourceID, r.TargetID, r.Kind,
			r.FilePath, resolved, marshalJSON(r.Metadata)); err != nil {
			return apperr.Storage(err, "insert relation %s", r.RelationID)
		}
	}
	return nil
}

// ResolveRelations binds unresolved relation targets to entities in the same
// project by qualified name or file_path:name. Returns how many were bound.
func (s *Store) ResolveRelations(ctx context.Context, projectID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE code_relations SET
			target_id = (
				SELECT e.entity_id FROM code_entities e
				WHERE e.project_id = code_relations.project_id
				  AND (e.qualified_name = code_relations.target_id
				       OR e.file_path || ':' || e.name = code_relations.target_id)
				LIMIT 1),
			resolved = 1
		WHERE project_id = ? AND resolved = 0 AND EXISTS (
			SELECT 1 FROM code_entities e
			WHERE e.project_id = code_relations.project_id
			  AND (e.qualified_name = code_relations.target_id
			       OR e.file_path || ':' || e.name = code_relations.target_id))`,
		projectID)
	if err != nil {
		return 0, apperr.Storage(err, "resolve relations for %s", projectID)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.StoreDebug("Resolved %d relation targets in %s", n, projectID)
	}
	return int(n), nil
}

// GetEntity loads one entity by id within a project.
func (s *Store) GetEntity(ctx context.Context, projectID, entityID string) (*types.CodeEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM code_entities
		WHERE project_id = ? AND entity_id = ?`, projectID, entityID)
	e, err := scanEntity(row)
	if err != nil {
		return nil, notFoundOr(err, "entity %s", entityID)
	}
	return e, nil
}

// FindEntities searches by name, exact or substring when fuzzy.
func (s *Store) FindEntities(ctx context.Context, projectID, name string, fuzzy bool) ([]*types.CodeEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM code_entities
		WHERE project_id = ? AND name = ? ORDER BY file_path, line_start`
	arg := interface{}(name)
	if fuzzy {
		query = `SELECT ` + entityColumns + ` FROM code_entities
			WHERE project_id = ? AND (name LIKE ? OR qualified_name LIKE ?)
			ORDER BY file_path, line_start`
		pattern := "%" + name + "%"
		return s.queryEntities(ctx, query, projectID, pattern, pattern)
	}
	return s.queryEntities(ctx, query, projectID, arg)
}

// SearchEntities matches a SQL LIKE pattern over name and qualified name with
// an optional kind filter.
func (s *Store) SearchEntities(ctx context.Context, projectID, pattern string, kind types.EntityKind, limit int) ([]*types.CodeEntity, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + pattern + "%"
	if kind != "" {
		return s.queryEntities(ctx, `
			SELECT `+entityColumns+` FROM code_entities
			WHERE project_id = ? AND kind = ?
			  AND (name LIKE ? OR qualified_name LIKE ?)
			ORDER BY file_path, line_start LIMIT ?`,
			projectID, kind, like, like, limit)
	}
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM code_entities
		WHERE project_id = ? AND (name LIKE ? OR qualified_name LIKE ?)
		ORDER BY file_path, line_start LIMIT ?`,
		projectID, like, like, limit)
}

// ListEntities returns all entities for a project, optionally by kind.
func (s *Store) ListEntities(ctx context.Context, projectID string, kind types.EntityKind) ([]*types.CodeEntity, error) {
	if kind != "" {
		return s.queryEntities(ctx, `
			SELECT `+entityColumns+` FROM code_entities
			WHERE project_id = ? AND kind = ? ORDER BY file_path, line_start`,
			projectID, kind)
	}
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM code_entities
		WHERE project_id = ? ORDER BY file_path, line_start`, projectID)
}

// ListEntitiesByFile returns the entities declared in one file.
func (s *Store) ListEntitiesByFile(ctx context.Context, projectID, filePath string) ([]*types.CodeEntity, error) {
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM code_entities
		WHERE project_id = ? AND file_path = ? ORDER BY line_start`,
		projectID, filePath)
}

// ListFiles returns the distinct analyzed file paths with entity counts.
func (s *Store) ListFiles(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, COUNT(*) FROM code_entities
		WHERE project_id = ? GROUP BY file_path ORDER BY file_path`, projectID)
	if err != nil {
		return nil, apperr.Storage(err, "list files for %s", projectID)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var f string
		var n int
		if err := rows.Scan(&f, &n); err != nil {
			return nil, apperr.Storage(err, "scan file row")
		}
		out[f] = n
	}
	return out, rows.Err()
}

// CountEntitiesByKind returns the kind histogram for query_architecture.
func (s *Store) CountEntitiesByKind(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM code_entities
		WHERE project_id = ? GROUP BY kind`, projectID)
	if err != nil {
		return nil, apperr.Storage(err, "count entities for %s", projectID)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, apperr.Storage(err, "scan kind row")
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// ListRelations returns all relations for a project, optionally by kind.
func (s *Store) ListRelations(ctx context.Context, projectID string, kind types.RelationKind) ([]*types.CodeRelation, error) {
	if kind != "" {
		return s.queryRelations(ctx, `
			SELECT `+relationColumns+` FROM code_relations
			WHERE project_id = ? AND kind = ?`, projectID, kind)
	}
	return s.queryRelations(ctx, `
		SELECT `+relationColumns+` FROM code_relations
		WHERE project_id = ?`, projectID)
}

// RelationsFrom returns relations whose source is the given entity.
func (s *Store) RelationsFrom(ctx context.Context, projectID, entityID string) ([]*types.CodeRelation, error) {
	return s.queryRelations(ctx, `
		SELECT `+relationColumns+` FROM code_relations
		WHERE project_id = ? AND source_id = ?`, projectID, entityID)
}

// RelationsTo returns relations whose target is the given entity.
func (s *Store) RelationsTo(ctx context.Context, projectID, entityID string) ([]*types.CodeRelation, error) {
	return s.queryRelations(ctx, `
		SELECT `+relationColumns+` FROM code_relations
		WHERE project_id = ? AND target_id = ?`, projectID, entityID)
}

func (s *Store) queryEntities(ctx context.Context, query string, args ...interface{}) ([]*types.CodeEntity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "query entities")
	}
	defer rows.Close()
	var out []*types.CodeEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan entity")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) queryRelations(ctx context.Context, query string, args ...interface{}) ([]*types.CodeRelation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "query relations")
	}
	defer rows.Close()
	var out []*types.CodeRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan relation")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanEntity(row rowScanner) (*types.CodeEntity, error) {
	var e types.CodeEntity
	var metadata string
	if err := row.Scan(&e.EntityID, &e.ProjectID, &e.Kind, &e.Name,
		&e.QualifiedName, &e.FilePath, &e.LineStart, &e.LineEnd,
		&e.Signature, &e.Docstring, &e.ParentID, &metadata); err != nil {
		return nil, err
	}
	e.Metadata = unmarshalStringMap(metadata)
	return &e, nil
}

func scanRelation(row rowScanner) (*types.CodeRelation, error) {
	var r types.CodeRelation
	var resolved int
	var metadata string
	if err := row.Scan(&r.RelationID, &r.ProjectID, &r.SourceID, &r.TargetID,
		&r.Kind, &r.FilePath, &resolved, &metadata); err != nil {
		return nil, err
	}
	r.Resolved = resolved != 0
	r.Metadata = unmarshalStringMap(metadata)
	return &r, nil
}
