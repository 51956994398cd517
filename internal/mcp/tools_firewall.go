package mcp

import (
	"context"

	"codewarden/internal/types"
)

func (s *Server) registerFirewallTools() {
	s.registry.Register(&Tool{
		Name:        "error_firewall_record",
		Description: "Fingerprint and store a failure; repeats bump the occurrence count.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"error_type":          {Type: "string", Description: "Operation category, e.g. ios_build"},
				"error_message":       {Type: "string"},
				"error_pattern":       {Type: "object", Description: "Key/value pattern identifying the failure"},
				"error_scene":         {Type: "string", Description: "Where the failure happened"},
				"solution":            {Type: "string"},
				"solution_confidence": {Type: "number", Default: 0},
				"block_level":         {Type: "string", Enum: []string{"none", "warning", "block"}, Default: "warning"},
				"auto_fix":            {Type: "boolean", Default: false},
			},
			Required: []string{"error_type", "error_message"},
		},
		Handler: s.handleFirewallRecord,
	})
	s.registry.Register(&Tool{
		Name:        "error_firewall_check",
		Description: "Check a proposed operation against recorded failures; may warn or block.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"operation_type":   {Type: "string"},
				"operation_params": {Type: "object"},
				"session_id":       {Type: "string"},
			},
			Required: []string{"operation_type"},
		},
		Handler: s.handleFirewallCheck,
	})
	s.registry.Register(&Tool{
		Name:        "error_firewall_query",
		Description: "List recorded errors by type, newest occurrence first.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"error_type": {Type: "string"},
				"limit":      {Type: "integer", Default: 20},
			},
		},
		Handler: s.handleFirewallQuery,
	})
	s.registry.Register(&Tool{
		Name:        "error_firewall_stats",
		Description: "Aggregate firewall statistics and recent intercepts.",
		Schema:      Schema{Type: "object"},
		Handler:     s.handleFirewallStats,
	})
}

func (s *Server) handleFirewallRecord(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rec, isNew, err := s.firewall.RecordError(ctx, &types.ErrorRecord{
		ErrorType:          argString(args, "error_type"),
		ErrorScene:         argString(args, "error_scene"),
		Pattern:            argMap(args, "error_pattern"),
		ErrorMessage:       argString(args, "error_message"),
		Solution:           argString(args, "solution"),
		SolutionConfidence: argFloat(args, "solution_confidence", 0),
		BlockLevel:         types.BlockLevel(argStringDefault(args, "block_level", "warning")),
		AutoFix:            argBool(args, "auto_fix", false),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"is_new":           isNew,
		"error_id":         rec.ErrorID,
		"occurrence_count": rec.OccurrenceCount,
		"block_level":      rec.BlockLevel,
	}, nil
}

func (s *Server) handleFirewallCheck(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.firewall.CheckOperation(ctx,
		argString(args, "operation_type"),
		argMap(args, "operation_params"),
		argString(args, "session_id"))
}

func (s *Server) handleFirewallQuery(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	records, err := s.firewall.Query(ctx,
		argString(args, "error_type"), argInt(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"records": records, "total": len(records)}, nil
}

func (s *Server) handleFirewallStats(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.firewall.GetStats(ctx)
}
