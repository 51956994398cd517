package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codewarden/internal/apperr"
	"codewarden/internal/types"
)

// SaveMemory stores one context fragment for later keyword retrieval.
func (s *Store) SaveMemory(ctx context.Context, m *types.Memory) (*types.Memory, error) {
	if _, err := s.GetProject(ctx, m.ProjectID); err != nil {
		return nil, err
	}
	if m.MemoryID == "" {
		m.MemoryID = uuid.NewString()
	}
	if m.Level == "" {
		m.Level = types.MemoryMid
	}
	switch m.Level {
	case types.MemoryShort, types.MemoryMid, types.MemoryLong:
	default:
		return nil, apperr.InvalidArgs("memory_level", "unknown memory level %q", m.Level)
	}
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (memory_id, project_id, content, memory_level, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.MemoryID, m.ProjectID, m.Content, m.Level, m.CreatedAt)
	if err != nil {
		return nil, apperr.Storage(err, "save memory")
	}
	return m, nil
}

// ListMemories returns every memory for a project, newest first. Retrieval
// scoring happens in the handler; the corpus per project stays small.
func (s *Store) ListMemories(ctx context.Context, projectID string) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, project_id, content, memory_level, created_at
		FROM memories WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, apperr.Storage(err, "list memories for %s", projectID)
	}
	defer rows.Close()
	var out []*types.Memory
	for rows.Next() {
		var m types.Memory
		if err := rows.Scan(&m.MemoryID, &m.ProjectID, &m.Content, &m.Level,
			&m.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan memory")
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
