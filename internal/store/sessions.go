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

const sessionColumns = `session_id, project_id, start_time, end_time,
	duration_minutes, goals, achievements, next_steps, files_modified,
	issues_encountered, context_summary`

// StartSession opens a new development session for a project.
func (s *Store) StartSession(ctx context.Context, projectID, goals string) (*types.Session, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	sess := &types.Session{
		SessionID: uuid.NewString(),
		ProjectID: projectID,
		StartTime: time.Now().UTC(),
		Goals:     goals,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project_id, start_time, goals)
		VALUES (?, ?, ?, ?)`,
		sess.SessionID, sess.ProjectID, sess.StartTime, sess.Goals)
	if err != nil {
		return nil, apperr.Storage(err, "start session")
	}
	logging.StoreDebug("Started session %s for %s", sess.SessionID, projectID)
	return sess, nil
}

// EndSessionParams carries the closing summary of a session.
type EndSessionParams struct {
	Achievements      string
	NextSteps         string
	FilesModified     []string
	IssuesEncountered []string
	ContextSummary    string
}

// EndSession closes a session and computes its duration. Idempotent: ending
// an already-ended session returns the stored record unchanged.
func (s *Store) EndSession(ctx context.Context, sessionID string, p EndSessionParams) (*types.Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.EndTime != nil {
		return sess, nil
	}

	end := time.Now().UTC()
	if end.Before(sess.StartTime) {
		end = sess.StartTime
	}
	duration := int(end.Sub(sess.StartTime) / time.Minute)

	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET
			end_time = ?, duration_minutes = ?, achievements = ?,
			next_steps = ?, files_modified = ?, issues_encountered = ?,
			context_summary = ?
		WHERE session_id = ? AND end_time IS NULL`,
		end, duration, p.Achievements, p.NextSteps,
		marshalJSON(p.FilesModified), marshalJSON(p.IssuesEncountered),
		p.ContextSummary, sessionID)
	if err != nil {
		return nil, apperr.Storage(err, "end session %s", sessionID)
	}
	return s.GetSession(ctx, sessionID)
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundOr(err, "session %s", sessionID)
	}
	return sess, nil
}

// LastSession returns the most recently started session for a project, or
// nil when none exists.
func (s *Store) LastSession(ctx context.Context, projectID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_id = ? ORDER BY start_time DESC LIMIT 1`, projectID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err, "last session for %s", projectID)
	}
	return sess, nil
}

// ListSessions returns sessions for a project, newest first.
func (s *Store) ListSessions(ctx context.Context, projectID string, limit int) ([]*types.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_id = ? ORDER BY start_time DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, apperr.Storage(err, "list sessions for %s", projectID)
	}
	defer rows.Close()
	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan session")
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var endTime sql.NullTime
	var filesModified, issuesEncountered string
	if err := row.Scan(&sess.SessionID, &sess.ProjectID, &sess.StartTime,
		&endTime, &sess.DurationMinutes, &sess.Goals, &sess.Achievements,
		&sess.NextSteps, &filesModified, &issuesEncountered,
		&sess.ContextSummary); err != nil {
		return nil, err
	}
	sess.EndTime = nullTime(endTime)
	sess.FilesModified = unmarshalStrings(filesModified)
	sess.IssuesEncountered = unmarshalStrings(issuesEncountered)
	return &sess, nil
}
