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

const decisionColumns = `decision_id, project_id, session_id, category, title,
	description, reasoning, alternatives, trade_offs, impact_scope, status,
	superseded_by, created_at`

// CreateDecision records a new design decision with status=active.
func (s *Store) CreateDecision(ctx context.Context, d *types.Decision) (*types.Decision, error) {
	if _, err := s.GetProject(ctx, d.ProjectID); err != nil {
		return nil, err
	}
	if d.DecisionID == "" {
		d.DecisionID = uuid.NewString()
	}
	d.Status = types.DecisionActive
	d.SupersededBy = ""
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (`+decisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.ProjectID, d.SessionID, d.Category, d.Title,
		d.Description, d.Reasoning, marshalJSON(d.Alternatives),
		marshalJSON(d.TradeOffs), d.ImpactScope, d.Status, d.SupersededBy,
		d.CreatedAt)
	if err != nil {
		return nil, apperr.Storage(err, "create decision")
	}
	logging.StoreDebug("Recorded decision %s (%s)", d.DecisionID, d.Title)
	return d, nil
}

// GetDecision loads one decision by id.
func (s *Store) GetDecision(ctx context.Context, decisionID string) (*types.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+decisionColumns+` FROM decisions WHERE decision_id = ?`, decisionID)
	d, err := scanDecision(row)
	if err != nil {
		return nil, notFoundOr(err, "decision %s", decisionID)
	}
	return d, nil
}

// ListDecisions filters by optional category and status.
func (s *Store) ListDecisions(ctx context.Context, projectID, category string, status types.DecisionStatus, limit int) ([]*types.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE project_id = ?`
	args := []interface{}{projectID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "list decisions for %s", projectID)
	}
	defer rows.Close()
	var out []*types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan decision")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SupersedeDecision marks oldID superseded by newID. Walking the existing
// superseded_by chain from newID must not reach oldID, otherwise the chain
// would form a cycle and the call fails with Conflict.
func (s *Store) SupersedeDecision(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return apperr.Conflict("decision %s cannot supersede itself", oldID)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{oldID, newID} {
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM decisions WHERE decision_id = ?`, id).Scan(&n); err != nil {
				return apperr.Storage(err, "check decision %s", id)
			}
			if n == 0 {
				return apperr.NotFound("decision %s", id)
			}
		}

		var cycle int
		err := tx.QueryRowContext(ctx, `
			WITH RECURSIVE chain(id, depth) AS (
				SELECT superseded_by, 1 FROM decisions
				WHERE decision_id = ? AND superseded_by != ''
				UNION
				SELECT d.superseded_by, chain.depth + 1
				FROM decisions d JOIN chain ON d.decision_id = chain.id
				WHERE d.superseded_by != '' AND chain.depth < 100
			)
			SELECT COUNT(*) FROM chain WHERE id = ?`, newID, oldID).Scan(&cycle)
		if err != nil {
			return apperr.Storage(err, "check supersession chain")
		}
		if cycle > 0 {
			return apperr.Conflict("superseding %s by %s would create a cycle", oldID, newID)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE decisions SET status = ?, superseded_by = ?
			WHERE decision_id = ?`,
			types.DecisionSuperseded, newID, oldID); err != nil {
			return apperr.Storage(err, "supersede decision %s", oldID)
		}
		logging.StoreDebug("Decision %s superseded by %s", oldID, newID)
		return nil
	})
}

func scanDecision(row rowScanner) (*types.Decision, error) {
	var d types.Decision
	var alternatives, tradeOffs string
	if err := row.Scan(&d.DecisionID, &d.ProjectID, &d.SessionID, &d.Category,
		&d.Title, &d.Description, &d.Reasoning, &alternatives, &tradeOffs,
		&d.ImpactScope, &d.Status, &d.SupersededBy, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Alternatives = unmarshalStrings(alternatives)
	d.TradeOffs = unmarshalStringMap(tradeOffs)
	return &d, nil
}
