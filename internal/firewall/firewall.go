// Package firewall implements the error firewall: content-addressed
// fingerprints of past failures, confidence-scored matching of proposed
// operations against them, and the resulting pass/warn/block decisions.
package firewall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
	"codewarden/internal/store"
	"codewarden/internal/types"
)

// Match weights and the acceptance floor.
const (
	weightExact       = 1.0
	weightCaseFold    = 0.8
	confidenceFloor   = 0.5
	confidenceMatched = "matched"
)

// Firewall checks operations against recorded failure fingerprints.
type Firewall struct {
	store *store.Store
}

// New creates a firewall over the shared storage handle.
func New(st *store.Store) *Firewall {
	return &Firewall{store: st}
}

// CanonicalPattern renders a pattern map deterministically. encoding/json
// sorts map keys, so identical maps always produce identical bytes.
func CanonicalPattern(pattern map[string]interface{}) (string, error) {
	if pattern == nil {
		pattern = map[string]interface{}{}
	}
	raw, err := json.Marshal(pattern)
	if err != nil {
		return "", apperr.InvalidArgs("error_pattern", "pattern is not serializable: %v", err)
	}
	return string(raw), nil
}

// Fingerprint derives the content address for a (type, pattern) pair.
func Fingerprint(errorType string, pattern map[string]interface{}) (string, error) {
	canonical, err := CanonicalPattern(pattern)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(errorType + ":" + canonical))
	return hex.EncodeToString(sum[:]), nil
}

// RecordError fingerprints and stores one failure. Re-recording the same
// (type, pattern) bumps the occurrence count instead of inserting.
func (f *Firewall) RecordError(ctx context.Context, rec *types.ErrorRecord) (*types.ErrorRecord, bool, error) {
	if rec.ErrorType == "" {
		return nil, false, apperr.InvalidArgs("error_type", "error_type is required")
	}
	if rec.ErrorMessage == "" {
		return nil, false, apperr.InvalidArgs("error_message", "error_message is required")
	}
	if rec.BlockLevel == "" {
		rec.BlockLevel = types.BlockWarning
	}
	if !types.ValidBlockLevel(rec.BlockLevel) {
		return nil, false, apperr.InvalidArgs("block_level", "unknown block level %q", rec.BlockLevel)
	}
	if rec.SolutionConfidence < 0 || rec.SolutionConfidence > 1 {
		return nil, false, apperr.InvalidArgs("solution_confidence", "confidence must be in [0, 1]")
	}

	fp, err := Fingerprint(rec.ErrorType, rec.Pattern)
	if err != nil {
		return nil, false, err
	}
	rec.ErrorID = fp

	isNew, err := f.store.UpsertErrorRecord(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	stored, err := f.store.GetErrorRecord(ctx, fp)
	if err != nil {
		return nil, false, err
	}
	return stored, isNew, nil
}

// CheckResult is the decision returned by check_operation.
type CheckResult struct {
	ShouldBlock     bool                   `json:"should_block"`
	RiskLevel       string                 `json:"risk_level"`
	Action          types.InterceptAction  `json:"action"`
	ErrorID         string                 `json:"error_id,omitempty"`
	ErrorScene      string                 `json:"error_scene,omitempty"`
	MatchConfidence float64                `json:"match_confidence"`
	Solution        string                 `json:"solution,omitempty"`
	AutoFix         bool                   `json:"auto_fix"`
	Message         string                 `json:"message"`
	MatchedPattern  map[string]interface{} `json:"matched_pattern,omitempty"`
}

// CheckOperation scores the proposed operation against every blocking record
// of the same type and acts on the best match above the confidence floor.
// Each check appends an intercept log row; block decisions also bump the
// record's blocked_count.
func (f *Firewall) CheckOperation(ctx context.Context, operationType string, params map[string]interface{}, sessionID string) (*CheckResult, error) {
	if operationType == "" {
		return nil, apperr.InvalidArgs("operation_type", "operation_type is required")
	}
	timer := logging.StartTimer(logging.CategoryFirewall, "CheckOperation")
	defer timer.Stop()

	records, err := f.store.ListBlockingRecords(ctx, operationType)
	if err != nil {
		return nil, err
	}

	best, confidence := bestMatch(records, params)
	result := &CheckResult{
		Action:    types.InterceptPassed,
		RiskLevel: "low",
		Message:   "operation passed",
	}
	logEntry := &types.InterceptLog{
		InterceptAction: types.InterceptPassed,
		OperationType:   operationType,
		OperationParams: params,
		SessionID:       sessionID,
	}

	if best != nil {
		result.ErrorID = best.ErrorID
		result.ErrorScene = best.ErrorScene
		result.MatchConfidence = confidence
		result.Solution = best.Solution
		result.AutoFix = best.AutoFix
		result.MatchedPattern = best.Pattern
		logEntry.ErrorRecordID = best.ID
		logEntry.MatchConfidence = confidence

		switch best.BlockLevel {
		case types.BlockBlock:
			result.ShouldBlock = true
			result.RiskLevel = "high"
			result.Action = types.InterceptBlocked
			result.Message = fmt.Sprintf("operation matches known failure %s (confidence %.2f)",
				best.ErrorID[:12], confidence)
			logEntry.InterceptAction = types.InterceptBlocked
		case types.BlockWarning:
			result.RiskLevel = "medium"
			result.Action = types.InterceptWarned
			result.Message = fmt.Sprintf("operation resembles known failure %s (confidence %.2f)",
				best.ErrorID[:12], confidence)
			logEntry.InterceptAction = types.InterceptWarned
		}
	}

	if err := f.store.InsertInterceptLog(ctx, logEntry); err != nil {
		return nil, err
	}
	if result.ShouldBlock {
		if err := f.store.IncrementBlockedCount(ctx, best.ID); err != nil {
			return nil, err
		}
		logging.Firewall("Blocked %s against record %s confidence=%.2f",
			operationType, best.ErrorID, confidence)
	}
	return result, nil
}

// bestMatch returns the highest-confidence record above the floor. Records
// arrive ordered by last_occurred_at DESC, so on equal confidence the most
// recent wins.
func bestMatch(records []*types.ErrorRecord, params map[string]interface{}) (*types.ErrorRecord, float64) {
	var best *types.ErrorRecord
	bestConfidence := 0.0
	for _, rec := range records {
		c := matchConfidence(rec.Pattern, params)
		if c > confidenceFloor && c > bestConfidence {
			best = rec
			bestConfidence = c
		}
	}
	return best, bestConfidence
}

// matchConfidence averages per-key scores over the record's pattern: 1.0 for
// an exact value match, 0.8 for a case-insensitive string match, 0 otherwise.
// An empty pattern never matches anything.
func matchConfidence(pattern, params map[string]interface{}) float64 {
	if len(pattern) == 0 {
		return 0
	}
	total := 0.0
	for key, want := range pattern {
		got, ok := params[key]
		if !ok {
			continue
		}
		total += valueScore(want, got)
	}
	return total / float64(len(pattern))
}

func valueScore(want, got interface{}) float64 {
	ws, wok := want.(string)
	gs, gok := got.(string)
	if wok && gok {
		if ws == gs {
			return weightExact
		}
		if strings.EqualFold(ws, gs) {
			return weightCaseFold
		}
		return 0
	}
	// non-string values compare through their JSON rendering; numbers that
	// round-trip differently (1 vs 1.0) still agree
	if string(jsonValue(want)) == string(jsonValue(got)) {
		return weightExact
	}
	return 0
}

func jsonValue(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// Query returns recorded errors by type, newest occurrence first.
func (f *Firewall) Query(ctx context.Context, errorType string, limit int) ([]*types.ErrorRecord, error) {
	return f.store.QueryErrorRecords(ctx, errorType, limit)
}

// Stats is the aggregate view for error_firewall_stats.
type Stats struct {
	*store.FirewallStats
	RecentIntercepts []*types.InterceptLog `json:"recent_intercepts"`
}

// GetStats combines record totals with the latest intercept history.
func (f *Firewall) GetStats(ctx context.Context) (*Stats, error) {
	base, err := f.store.GetFirewallStats(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := f.store.RecentIntercepts(ctx, 10)
	if err != nil {
		return nil, err
	}
	return &Stats{FirewallStats: base, RecentIntercepts: recent}, nil
}
