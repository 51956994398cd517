package store

import (
	"context"
	"database/sql"
	"time"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
	"codewarden/internal/types"
)

const recordColumns = `id, error_id, error_type, error_scene, error_pattern,
	error_message, solution, solution_confidence, block_level, auto_fix,
	occurrence_count, blocked_count, last_occurred_at, created_at`

// UpsertErrorRecord inserts a record or, when the fingerprint already exists,
// bumps occurrence_count and last_occurred_at. Returns whether the row is new.
// The single-connection pool serializes the update/insert pair.
func (s *Store) UpsertErrorRecord(ctx context.Context, rec *types.ErrorRecord) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE error_records
		SET occurrence_count = occurrence_count + 1, last_occurred_at = ?
		WHERE error_id = ?`, now, rec.ErrorID)
	if err != nil {
		return false, apperr.Storage(err, "bump error record %s", rec.ErrorID)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Firewall("Error %s recurred", rec.ErrorID)
		return false, nil
	}

	rec.OccurrenceCount = 1
	rec.BlockedCount = 0
	rec.LastOccurredAt = now
	rec.CreatedAt = now
	autoFix := 0
	if rec.AutoFix {
		autoFix = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO error_records (error_id, error_type, error_scene,
			error_pattern, error_message, solution, solution_confidence,
			block_level, auto_fix, occurrence_count, blocked_count,
			last_occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		rec.ErrorID, rec.ErrorType, rec.ErrorScene, marshalJSON(rec.Pattern),
		rec.ErrorMessage, rec.Solution, rec.SolutionConfidence,
		rec.BlockLevel, autoFix, rec.LastOccurredAt, rec.CreatedAt)
	if err != nil {
		return false, apperr.Storage(err, "insert error record %s", rec.ErrorID)
	}
	logging.Firewall("Recorded new error %s type=%s level=%s", rec.ErrorID, rec.ErrorType, rec.BlockLevel)
	return true, nil
}

// GetErrorRecord loads one record by fingerprint.
func (s *Store) GetErrorRecord(ctx context.Context, errorID string) (*types.ErrorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM error_records WHERE error_id = ?`, errorID)
	rec, err := scanErrorRecord(row)
	if err != nil {
		return nil, notFoundOr(err, "error record %s", errorID)
	}
	return rec, nil
}

// ListBlockingRecords returns records of one type whose block_level is not
// none, most recent first. check_operation matches against these.
func (s *Store) ListBlockingRecords(ctx context.Context, errorType string) ([]*types.ErrorRecord, error) {
	return s.queryErrorRecords(ctx, `
		SELECT `+recordColumns+` FROM error_records
		WHERE error_type = ? AND block_level != 'none'
		ORDER BY last_occurred_at DESC`, errorType)
}

// QueryErrorRecords returns records by type, newest occurrence first.
func (s *Store) QueryErrorRecords(ctx context.Context, errorType string, limit int) ([]*types.ErrorRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if errorType != "" {
		return s.queryErrorRecords(ctx, `
			SELECT `+recordColumns+` FROM error_records
			WHERE error_type = ? ORDER BY last_occurred_at DESC LIMIT ?`,
			errorType, limit)
	}
	return s.queryErrorRecords(ctx, `
		SELECT `+recordColumns+` FROM error_records
		ORDER BY last_occurred_at DESC LIMIT ?`, limit)
}

// IncrementBlockedCount bumps blocked_count after a block decision.
func (s *Store) IncrementBlockedCount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE error_records SET blocked_count = blocked_count + 1
		WHERE id = ?`, id)
	if err != nil {
		return apperr.Storage(err, "increment blocked_count for %d", id)
	}
	return nil
}

// InsertInterceptLog appends one observational check record. Deliberately a
// separate write from the record upsert; a crash between them is tolerated.
// A zero ErrorRecordID means the check matched nothing and stores as NULL.
func (s *Store) InsertInterceptLog(ctx context.Context, l *types.InterceptLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.InterceptType == "" {
		l.InterceptType = "before"
	}
	recordID := sql.NullInt64{Int64: l.ErrorRecordID, Valid: l.ErrorRecordID != 0}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO intercept_logs (error_record_id, intercept_type,
			intercept_action, operation_type, operation_params,
			match_confidence, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID, l.InterceptType, l.InterceptAction, l.OperationType,
		marshalJSON(l.OperationParams), l.MatchConfidence, l.SessionID,
		l.CreatedAt)
	if err != nil {
		return apperr.Storage(err, "insert intercept log")
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

// RecentIntercepts returns the last N intercept log rows, newest first.
func (s *Store) RecentIntercepts(ctx context.Context, limit int) ([]*types.InterceptLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, error_record_id, intercept_type, intercept_action,
			operation_type, operation_params, match_confidence, session_id,
			created_at
		FROM intercept_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Storage(err, "list intercepts")
	}
	defer rows.Close()
	var out []*types.InterceptLog
	for rows.Next() {
		var l types.InterceptLog
		var recordID sql.NullInt64
		var params string
		if err := rows.Scan(&l.ID, &recordID, &l.InterceptType,
			&l.InterceptAction, &l.OperationType, &params, &l.MatchConfidence,
			&l.SessionID, &l.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan intercept")
		}
		l.ErrorRecordID = recordID.Int64
		l.OperationParams = unmarshalAnyMap(params)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// FirewallStats aggregates record totals and intercept history.
type FirewallStats struct {
	TotalRecords     int            `json:"total_records"`
	TotalOccurrences int            `json:"total_occurrences"`
	TotalBlocks      int            `json:"total_blocks"`
	BlockRate        float64        `json:"block_rate"`
	RecordsByType    map[string]int `json:"records_by_type"`
	RecordsByLevel   map[string]int `json:"records_by_level"`
}

// GetFirewallStats computes the aggregate view used by error_firewall_stats.
func (s *Store) GetFirewallStats(ctx context.Context) (*FirewallStats, error) {
	stats := &FirewallStats{
		RecordsByType:  make(map[string]int),
		RecordsByLevel: make(map[string]int),
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(occurrence_count), 0),
			COALESCE(SUM(blocked_count), 0)
		FROM error_records`).
		Scan(&stats.TotalRecords, &stats.TotalOccurrences, &stats.TotalBlocks)
	if err != nil {
		return nil, apperr.Storage(err, "firewall totals")
	}
	if stats.TotalOccurrences > 0 {
		stats.BlockRate = float64(stats.TotalBlocks) / float64(stats.TotalOccurrences)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT error_type, COUNT(*) FROM error_records GROUP BY error_type`)
	if err != nil {
		return nil, apperr.Storage(err, "firewall type counts")
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, apperr.Storage(err, "scan type count")
		}
		stats.RecordsByType[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "firewall type counts")
	}

	lrows, err := s.db.QueryContext(ctx,
		`SELECT block_level, COUNT(*) FROM error_records GROUP BY block_level`)
	if err != nil {
		return nil, apperr.Storage(err, "firewall level counts")
	}
	defer lrows.Close()
	for lrows.Next() {
		var level string
		var n int
		if err := lrows.Scan(&level, &n); err != nil {
			return nil, apperr.Storage(err, "scan level count")
		}
		stats.RecordsByLevel[level] = n
	}
	return stats, lrows.Err()
}

func (s *Store) queryErrorRecords(ctx context.Context, query string, args ...interface{}) ([]*types.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "query error records")
	}
	defer rows.Close()
	var out []*types.ErrorRecord
	for rows.Next() {
		rec, err := scanErrorRecord(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan error record")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanErrorRecord(row rowScanner) (*types.ErrorRecord, error) {
	var rec types.ErrorRecord
	var pattern string
	var autoFix int
	if err := row.Scan(&rec.ID, &rec.ErrorID, &rec.ErrorType, &rec.ErrorScene,
		&pattern, &rec.ErrorMessage, &rec.Solution, &rec.SolutionConfidence,
		&rec.BlockLevel, &autoFix, &rec.OccurrenceCount, &rec.BlockedCount,
		&rec.LastOccurredAt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Pattern = unmarshalAnyMap(pattern)
	rec.AutoFix = autoFix != 0
	return &rec, nil
}
