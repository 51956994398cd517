package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
	"codewarden/internal/types"
)

const todoColumns = `todo_id, project_id, session_id, title, description,
	category, priority, estimated_difficulty, estimated_hours, status,
	progress, completed_at, completion_note, created_at`

// CreateTodo inserts a todo together with its depends_on edges. Every
// dependency must exist in the same project and must not introduce a cycle.
func (s *Store) CreateTodo(ctx context.Context, t *types.Todo) (*types.Todo, error) {
	if _, err := s.GetProject(ctx, t.ProjectID); err != nil {
		return nil, err
	}
	if t.Priority < 1 || t.Priority > 5 {
		return nil, apperr.InvalidArgs("priority", "priority must be 1..5, got %d", t.Priority)
	}
	if t.EstimatedDifficulty != 0 && (t.EstimatedDifficulty < 1 || t.EstimatedDifficulty > 5) {
		return nil, apperr.InvalidArgs("estimated_difficulty", "estimated_difficulty must be 1..5, got %d", t.EstimatedDifficulty)
	}
	if t.TodoID == "" {
		t.TodoID = uuid.NewString()
	}
	if t.Category == "" {
		t.Category = types.TodoFeature
	}
	if t.EstimatedDifficulty == 0 {
		t.EstimatedDifficulty = 3
	}
	t.Status = types.TodoPending
	t.Progress = 0
	t.CreatedAt = time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO todos (`+todoColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.TodoID, t.ProjectID, t.SessionID, t.Title, t.Description,
			t.Category, t.Priority, t.EstimatedDifficulty, t.EstimatedHours,
			t.Status, t.Progress, nil, "", t.CreatedAt); err != nil {
			return apperr.Storage(err, "insert todo")
		}
		for _, dep := range t.DependsOn {
			if err := addDependency(ctx, tx, t.ProjectID, t.TodoID, dep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.StoreDebug("Created todo %s (%s) deps=%d", t.TodoID, t.Title, len(t.DependsOn))
	return t, nil
}

// AddTodoDependency records that todoID depends on depID, rejecting cycles.
func (s *Store) AddTodoDependency(ctx context.Context, todoID, depID string) error {
	t, err := s.GetTodo(ctx, todoID)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return addDependency(ctx, tx, t.ProjectID, todoID, depID)
	})
}

// addDependency validates the target and walks the transitive depends_on set
// of depID; if todoID appears there the edge would close a cycle.
func addDependency(ctx context.Context, tx *sql.Tx, projectID, todoID, depID string) error {
	if todoID == depID {
		return apperr.Conflict("todo %s cannot depend on itself", todoID)
	}
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM todos WHERE todo_id = ? AND project_id = ?`,
		depID, projectID).Scan(&n); err != nil {
		return apperr.Storage(err, "check dependency %s", depID)
	}
	if n == 0 {
		return apperr.NotFound("dependency todo %s", depID)
	}

	var cycle int
	err := tx.QueryRowContext(ctx, `
		WITH RECURSIVE reach(id, depth) AS (
			SELECT depends_on_id, 1 FROM todo_deps WHERE todo_id = ?
			UNION
			SELECT d.depends_on_id, reach.depth + 1
			FROM todo_deps d JOIN reach ON d.todo_id = reach.id
			WHERE reach.depth < 100
		)
		SELECT COUNT(*) FROM reach WHERE id = ?`, depID, todoID).Scan(&cycle)
	if err != nil {
		return apperr.Storage(err, "check dependency cycle")
	}
	if cycle > 0 {
		return apperr.Conflict("dependency %s -> %s would create a cycle", todoID, depID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO todo_deps (project_id, todo_id, depends_on_id)
		VALUES (?, ?, ?)`, projectID, todoID, depID); err != nil {
		return apperr.Storage(err, "insert dependency")
	}
	return nil
}

// UpdateTodoStatus transitions a todo. Completing sets progress=100 and
// stamps completed_at; any other status clears both.
func (s *Store) UpdateTodoStatus(ctx context.Context, todoID string, status types.TodoStatus, progress *int, completionNote string) (*types.Todo, error) {
	switch status {
	case types.TodoPending, types.TodoInProgress, types.TodoCompleted,
		types.TodoBlocked, types.TodoCancelled:
	default:
		return nil, apperr.InvalidArgs("status", "unknown todo status %q", status)
	}
	if progress != nil && (*progress < 0 || *progress > 100) {
		return nil, apperr.InvalidArgs("progress", "progress must be 0..100, got %d", *progress)
	}
	if _, err := s.GetTodo(ctx, todoID); err != nil {
		return nil, err
	}

	var completedAt interface{}
	newProgress := -1
	if status == types.TodoCompleted {
		completedAt = time.Now().UTC()
		newProgress = 100
	} else if progress != nil {
		newProgress = *progress
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if newProgress >= 0 {
			_, err := tx.ExecContext(ctx, `
				UPDATE todos SET status = ?, progress = ?, completed_at = ?,
					completion_note = ?
				WHERE todo_id = ?`,
				status, newProgress, completedAt, completionNote, todoID)
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE todos SET status = ?, completed_at = ?, completion_note = ?
			WHERE todo_id = ?`,
			status, completedAt, completionNote, todoID)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err, "update todo %s", todoID)
	}
	return s.GetTodo(ctx, todoID)
}

// GetTodo loads one todo with its depends_on and derived blocks edges.
func (s *Store) GetTodo(ctx context.Context, todoID string) (*types.Todo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+todoColumns+` FROM todos WHERE todo_id = ?`, todoID)
	t, err := scanTodo(row)
	if err != nil {
		return nil, notFoundOr(err, "todo %s", todoID)
	}
	if err := s.loadTodoEdges(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTodos filters by status, category, and minimum priority, ordered by
// priority descending then creation time ascending.
func (s *Store) ListTodos(ctx context.Context, projectID string, status types.TodoStatus, category types.TodoCategory, minPriority, limit int) ([]*types.Todo, error) {
	if minPriority < 1 {
		minPriority = 1
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + todoColumns + ` FROM todos
		WHERE project_id = ? AND priority >= ?`
	args := []interface{}{projectID, minPriority}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY priority DESC, created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "list todos for %s", projectID)
	}
	defer rows.Close()
	var out []*types.Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan todo")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "list todos for %s", projectID)
	}
	for _, t := range out {
		if err := s.loadTodoEdges(ctx, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetNextTodo returns the highest-priority pending todo whose every
// dependency is completed; ties break by earliest creation. Returns nil when
// nothing is actionable.
func (s *Store) GetNextTodo(ctx context.Context, projectID string) (*types.Todo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+todoColumns+` FROM todos t
		WHERE t.project_id = ? AND t.status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM todo_deps d
			JOIN todos dt ON dt.todo_id = d.depends_on_id
			WHERE d.todo_id = t.todo_id AND dt.status != 'completed')
		ORDER BY t.priority DESC, t.created_at ASC
		LIMIT 1`, projectID)
	t, err := scanTodo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err, "get next todo for %s", projectID)
	}
	if err := s.loadTodoEdges(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) loadTodoEdges(ctx context.Context, t *types.Todo) error {
	deps, err := s.queryIDs(ctx,
		`SELECT depends_on_id FROM todo_deps WHERE todo_id = ? ORDER BY depends_on_id`,
		t.TodoID)
	if err != nil {
		return err
	}
	blocks, err := s.queryIDs(ctx,
		`SELECT todo_id FROM todo_deps WHERE depends_on_id = ? ORDER BY todo_id`,
		t.TodoID)
	if err != nil {
		return err
	}
	t.DependsOn = deps
	t.Blocks = blocks
	return nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "query ids")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage(err, "scan id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanTodo(row rowScanner) (*types.Todo, error) {
	var t types.Todo
	var completedAt sql.NullTime
	var estimatedHours sql.NullFloat64
	if err := row.Scan(&t.TodoID, &t.ProjectID, &t.SessionID, &t.Title,
		&t.Description, &t.Category, &t.Priority, &t.EstimatedDifficulty,
		&estimatedHours, &t.Status, &t.Progress, &completedAt,
		&t.CompletionNote, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.EstimatedHours = estimatedHours.Float64
	t.CompletedAt = nullTime(completedAt)
	return &t, nil
}
