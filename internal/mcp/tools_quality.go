package mcp

import (
	"context"

	"codewarden/internal/types"
)

func (s *Server) registerQualityTools() {
	s.registry.Register(&Tool{
		Name:        "detect_code_smells",
		Description: "Run all quality detectors over the project graph and persist new findings.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleDetectCodeSmells,
	})
	s.registry.Register(&Tool{
		Name:        "assess_technical_debt",
		Description: "Compute and store a technical-debt snapshot from open issues.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleAssessTechnicalDebt,
	})
	s.registry.Register(&Tool{
		Name:        "identify_debt_hotspots",
		Description: "Rank files by accumulated issue weight.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"top_k":      {Type: "integer", Default: 10},
			},
			Required: []string{"project_id"},
		},
		Handler: s.handleIdentifyDebtHotspots,
	})
	s.registry.Register(&Tool{
		Name:        "get_quality_trends",
		Description: "Debt snapshots in chronological order with score deltas.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"limit":      {Type: "integer", Default: 50},
			},
			Required: []string{"project_id"},
		},
		Handler: s.handleGetQualityTrends,
	})
	s.registry.Register(&Tool{
		Name:        "resolve_quality_issue",
		Description: "Mark a quality issue resolved.",
		Schema:      issueStatusSchema(),
		Handler:     s.handleResolveQualityIssue,
	})
	s.registry.Register(&Tool{
		Name:        "ignore_quality_issue",
		Description: "Mark a quality issue ignored so re-runs do not resurface it.",
		Schema:      issueStatusSchema(),
		Handler:     s.handleIgnoreQualityIssue,
	})
	s.registry.Register(&Tool{
		Name:        "generate_quality_report",
		Description: "Render a markdown quality report: debt score, open issues, hotspots.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleGenerateQualityReport,
	})
	s.registry.Register(&Tool{
		Name:        "list_quality_issues",
		Description: "List quality issues filtered by status, severity, and type.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"status":     {Type: "string", Enum: []string{"open", "in_progress", "resolved", "ignored"}},
				"severity":   {Type: "string", Enum: []string{"low", "medium", "high", "critical"}},
				"issue_type": {Type: "string"},
				"limit":      {Type: "integer", Default: 200},
			},
			Required: []string{"project_id"},
		},
		Handler: s.handleListQualityIssues,
	})
}

func issueStatusSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"issue_id":    {Type: "string"},
			"resolved_by": {Type: "string"},
		},
		Required: []string{"issue_id"},
	}
}

func (s *Server) handleDetectCodeSmells(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.guardian.DetectSmells(ctx, argString(args, "project_id"))
}

func (s *Server) handleAssessTechnicalDebt(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.guardian.AssessDebt(ctx, argString(args, "project_id"))
}

func (s *Server) handleIdentifyDebtHotspots(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	hotspots, err := s.guardian.IdentifyHotspots(ctx,
		argString(args, "project_id"), argInt(args, "top_k", 10))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"hotspots": hotspots, "total": len(hotspots)}, nil
}

func (s *Server) handleGetQualityTrends(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	points, err := s.guardian.GetTrends(ctx,
		argString(args, "project_id"), argInt(args, "limit", 50))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"trends": points, "total": len(points)}, nil
}

func (s *Server) handleResolveQualityIssue(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.UpdateIssueStatus(ctx,
		argString(args, "issue_id"), types.IssueResolved,
		argStringDefault(args, "resolved_by", "manual"))
}

func (s *Server) handleIgnoreQualityIssue(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.UpdateIssueStatus(ctx,
		argString(args, "issue_id"), types.IssueIgnored,
		argStringDefault(args, "resolved_by", "manual"))
}

func (s *Server) handleGenerateQualityReport(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	report, err := s.guardian.GenerateReport(ctx, argString(args, "project_id"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"report": report}, nil
}

func (s *Server) handleListQualityIssues(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	issues, err := s.store.ListQualityIssues(ctx,
		argString(args, "project_id"),
		types.IssueStatus(argString(args, "status")),
		types.IssueSeverity(argString(args, "severity")),
		argString(args, "issue_type"),
		argInt(args, "limit", 0))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"issues": issues, "total": len(issues)}, nil
}
