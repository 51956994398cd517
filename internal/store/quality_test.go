package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewarden/internal/types"
)

func sampleIssue(projectID, entityID string) *types.QualityIssue {
	return &types.QualityIssue{
		ProjectID: projectID,
		IssueType: "long_function",
		Severity:  types.SeverityMedium,
		EntityID:  entityID,
		FilePath:  "a.py",
		Title:     "Function too long",
	}
}

func TestSaveQualityIssuesDeduplicatesOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	n, err := s.SaveQualityIssues(ctx, []*types.QualityIssue{sampleIssue("p1", "e1")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// re-run: same tuple, still open, not duplicated
	n, err = s.SaveQualityIssues(ctx, []*types.QualityIssue{sampleIssue("p1", "e1")})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	issues, err := s.ListQualityIssues(ctx, "p1", "", "", "", 0)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	// once resolved, the same finding may be recorded again
	_, err = s.UpdateIssueStatus(ctx, issues[0].IssueID, types.IssueResolved, "dev")
	require.NoError(t, err)
	n, err = s.SaveQualityIssues(ctx, []*types.QualityIssue{sampleIssue("p1", "e1")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateIssueStatusStampsResolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	_, err := s.SaveQualityIssues(ctx, []*types.QualityIssue{sampleIssue("p1", "e1")})
	require.NoError(t, err)
	issues, err := s.ListQualityIssues(ctx, "p1", types.IssueOpen, "", "", 0)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	resolved, err := s.UpdateIssueStatus(ctx, issues[0].IssueID, types.IssueResolved, "reviewer")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "reviewer", resolved.ResolvedBy)

	open, err := s.ListQualityIssues(ctx, "p1", types.IssueOpen, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestListQualityIssuesSeverityOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	low := sampleIssue("p1", "e-low")
	low.Severity = types.SeverityLow
	critical := sampleIssue("p1", "e-crit")
	critical.Severity = types.SeverityCritical
	critical.IssueType = "god_class"

	_, err := s.SaveQualityIssues(ctx, []*types.QualityIssue{low, critical})
	require.NoError(t, err)

	issues, err := s.ListQualityIssues(ctx, "p1", "", "", "", 0)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, types.SeverityCritical, issues[0].Severity)
}

func TestDebtSnapshotsOrderedForTrends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	first := &types.DebtSnapshot{ProjectID: "p1", OverallScore: 6.5, CodeQualityScore: 5.0}
	require.NoError(t, s.SaveDebtSnapshot(ctx, first))
	second := &types.DebtSnapshot{ProjectID: "p1", OverallScore: 7.2, CodeQualityScore: 6.1}
	second.CreatedAt = first.CreatedAt.Add(1)
	require.NoError(t, s.SaveDebtSnapshot(ctx, second))

	snaps, err := s.ListDebtSnapshots(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 6.5, snaps[0].OverallScore)
	assert.Equal(t, 7.2, snaps[1].OverallScore)
}
