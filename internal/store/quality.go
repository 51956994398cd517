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

const issueColumns = `issue_id, project_id, issue_type, severity, entity_id,
	file_path, line_number, title, description, suggestion, metadata, status,
	detected_at, resolved_at, resolved_by`

const snapshotColumns = `snapshot_id, project_id, overall_score,
	code_quality_score, test_score, docs_score, deps_score, todo_score,
	critical_count, high_count, medium_count, low_count, estimated_days,
	created_at`

// SaveQualityIssues persists detector output in one transaction. An issue is
// skipped when an open row already exists for the same
// (project, type, entity, file, line) tuple, so re-runs do not duplicate.
// Returns the number of newly inserted rows.
func (s *Store) SaveQualityIssues(ctx context.Context, issues []*types.QualityIssue) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, issue := range issues {
			var existing int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM quality_issues
				WHERE project_id = ? AND issue_type = ? AND entity_id = ?
				  AND file_path = ? AND line_number = ? AND status = 'open'`,
				issue.ProjectID, issue.IssueType, issue.EntityID,
				issue.FilePath, issue.LineNumber).Scan(&existing)
			if err != nil {
				return apperr.Storage(err, "check duplicate issue")
			}
			if existing > 0 {
				continue
			}
			if issue.IssueID == "" {
				issue.IssueID = uuid.NewString()
			}
			issue.Status = types.IssueOpen
			issue.DetectedAt = time.Now().UTC()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO quality_issues (`+issueColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				issue.IssueID, issue.ProjectID, issue.IssueType, issue.Severity,
				issue.EntityID, issue.FilePath, issue.LineNumber, issue.Title,
				issue.Description, issue.Suggestion, marshalJSON(issue.Metadata),
				issue.Status, issue.DetectedAt, nil, ""); err != nil {
				return apperr.Storage(err, "insert issue %s", issue.Title)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logging.StoreDebug("Saved %d new quality issues (%d submitted)", inserted, len(issues))
	return inserted, nil
}

// ListQualityIssues filters by optional status, severity, and type.
func (s *Store) ListQualityIssues(ctx context.Context, projectID string, status types.IssueStatus, severity types.IssueSeverity, issueType string, limit int) ([]*types.QualityIssue, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + issueColumns + ` FROM quality_issues WHERE project_id = ?`
	args := []interface{}{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}
	if issueType != "" {
		query += ` AND issue_type = ?`
		args = append(args, issueType)
	}
	query += ` ORDER BY
		CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1
		WHEN 'medium' THEN 2 ELSE 3 END, detected_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "list issues for %s", projectID)
	}
	defer rows.Close()
	var out []*types.QualityIssue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan issue")
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// UpdateIssueStatus transitions a quality issue; resolved/ignored stamp
// resolved_at and resolved_by.
func (s *Store) UpdateIssueStatus(ctx context.Context, issueID string, status types.IssueStatus, resolvedBy string) (*types.QualityIssue, error) {
	switch status {
	case types.IssueOpen, types.IssueInProgress, types.IssueResolved, types.IssueIgnored:
	default:
		return nil, apperr.InvalidArgs("status", "unknown issue status %q", status)
	}
	var resolvedAt interface{}
	if status == types.IssueResolved || status == types.IssueIgnored {
		resolvedAt = time.Now().UTC()
	} else {
		resolvedBy = ""
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE quality_issues SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE issue_id = ?`, status, resolvedAt, resolvedBy, issueID)
	if err != nil {
		return nil, apperr.Storage(err, "update issue %s", issueID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("quality issue %s", issueID)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+issueColumns+` FROM quality_issues WHERE issue_id = ?`, issueID)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, notFoundOr(err, "quality issue %s", issueID)
	}
	return issue, nil
}

// SaveDebtSnapshot writes one immutable snapshot row.
func (s *Store) SaveDebtSnapshot(ctx context.Context, snap *types.DebtSnapshot) error {
	if snap.SnapshotID == "" {
		snap.SnapshotID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debt_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SnapshotID, snap.ProjectID, snap.OverallScore,
		snap.CodeQualityScore, snap.TestScore, snap.DocsScore, snap.DepsScore,
		snap.TodoScore, snap.CriticalCount, snap.HighCount, snap.MediumCount,
		snap.LowCount, snap.EstimatedDays, snap.CreatedAt)
	if err != nil {
		return apperr.Storage(err, "save debt snapshot")
	}
	return nil
}

// ListDebtSnapshots returns snapshots oldest first for trend computation.
func (s *Store) ListDebtSnapshots(ctx context.Context, projectID string, limit int) ([]*types.DebtSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM debt_snapshots
		WHERE project_id = ? ORDER BY created_at ASC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, apperr.Storage(err, "list snapshots for %s", projectID)
	}
	defer rows.Close()
	var out []*types.DebtSnapshot
	for rows.Next() {
		var snap types.DebtSnapshot
		if err := rows.Scan(&snap.SnapshotID, &snap.ProjectID,
			&snap.OverallScore, &snap.CodeQualityScore, &snap.TestScore,
			&snap.DocsScore, &snap.DepsScore, &snap.TodoScore,
			&snap.CriticalCount, &snap.HighCount, &snap.MediumCount,
			&snap.LowCount, &snap.EstimatedDays, &snap.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan snapshot")
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

func scanIssue(row rowScanner) (*types.QualityIssue, error) {
	var issue types.QualityIssue
	var resolvedAt sql.NullTime
	var metadata string
	if err := row.Scan(&issue.IssueID, &issue.ProjectID, &issue.IssueType,
		&issue.Severity, &issue.EntityID, &issue.FilePath, &issue.LineNumber,
		&issue.Title, &issue.Description, &issue.Suggestion, &metadata,
		&issue.Status, &issue.DetectedAt, &resolvedAt, &issue.ResolvedBy); err != nil {
		return nil, err
	}
	issue.ResolvedAt = nullTime(resolvedAt)
	issue.Metadata = unmarshalStringMap(metadata)
	return &issue, nil
}
