package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"codewarden/internal/apperr"
	"codewarden/internal/types"
)

const noteColumns = `note_id, project_id, session_id, category, title, content,
	importance, related_code, related_entities, tags, is_resolved, resolved_at,
	resolved_note, created_at`

// CreateNote stores a new project note.
func (s *Store) CreateNote(ctx context.Context, n *types.Note) (*types.Note, error) {
	if _, err := s.GetProject(ctx, n.ProjectID); err != nil {
		return nil, err
	}
	if n.Importance < 1 || n.Importance > 5 {
		return nil, apperr.InvalidArgs("importance", "importance must be 1..5, got %d", n.Importance)
	}
	if n.NoteID == "" {
		n.NoteID = uuid.NewString()
	}
	n.IsResolved = false
	n.ResolvedAt = nil
	n.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.NoteID, n.ProjectID, n.SessionID, n.Category, n.Title, n.Content,
		n.Importance, n.RelatedCode, marshalJSON(n.RelatedEntities),
		marshalJSON(n.Tags), 0, nil, "", n.CreatedAt)
	if err != nil {
		return nil, apperr.Storage(err, "create note")
	}
	return n, nil
}

// GetNote loads one note by id.
func (s *Store) GetNote(ctx context.Context, noteID string) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE note_id = ?`, noteID)
	n, err := scanNote(row)
	if err != nil {
		return nil, notFoundOr(err, "note %s", noteID)
	}
	return n, nil
}

// ListNotes filters by category, minimum importance, and resolution state,
// ordered by importance then recency.
func (s *Store) ListNotes(ctx context.Context, projectID string, category types.NoteCategory, minImportance int, unresolvedOnly bool, limit int) ([]*types.Note, error) {
	if minImportance < 1 {
		minImportance = 1
	}
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE project_id = ? AND importance >= ?`
	args := []interface{}{projectID, minImportance}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if unresolvedOnly {
		query += ` AND is_resolved = 0`
	}
	query += ` ORDER BY importance DESC, created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "list notes for %s", projectID)
	}
	defer rows.Close()
	var out []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan note")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ResolveNote marks a note resolved with an optional closing comment.
func (s *Store) ResolveNote(ctx context.Context, noteID, resolvedNote string) (*types.Note, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notes SET is_resolved = 1, resolved_at = ?, resolved_note = ?
		WHERE note_id = ?`, time.Now().UTC(), resolvedNote, noteID)
	if err != nil {
		return nil, apperr.Storage(err, "resolve note %s", noteID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("note %s", noteID)
	}
	return s.GetNote(ctx, noteID)
}

func scanNote(row rowScanner) (*types.Note, error) {
	var n types.Note
	var isResolved int
	var resolvedAt sql.NullTime
	var relatedEntities, tags string
	if err := row.Scan(&n.NoteID, &n.ProjectID, &n.SessionID, &n.Category,
		&n.Title, &n.Content, &n.Importance, &n.RelatedCode, &relatedEntities,
		&tags, &isResolved, &resolvedAt, &n.ResolvedNote, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.IsResolved = isResolved != 0
	n.ResolvedAt = nullTime(resolvedAt)
	n.RelatedEntities = unmarshalStrings(relatedEntities)
	n.Tags = unmarshalStrings(tags)
	return &n, nil
}
