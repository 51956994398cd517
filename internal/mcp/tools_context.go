package mcp

import (
	"context"

	"codewarden/internal/store"
	"codewarden/internal/types"
)

func (s *Server) registerContextTools() {
	s.registry.Register(&Tool{
		Name:        "start_dev_session",
		Description: "Start a development session for a project.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"goals":      {Type: "string", Description: "What this session aims to accomplish"},
			},
			Required: []string{"project_id", "goals"},
		},
		Handler: s.handleStartSession,
	})
	s.registry.Register(&Tool{
		Name:        "end_dev_session",
		Description: "Close a session and record its outcome. Ending twice returns the same record.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"session_id":         {Type: "string"},
				"achievements":       {Type: "string"},
				"next_steps":         {Type: "string"},
				"files_modified":     {Type: "array", Items: &Property{Type: "string"}},
				"issues_encountered": {Type: "array", Items: &Property{Type: "string"}},
				"context_summary":    {Type: "string"},
			},
			Required: []string{"session_id", "achievements"},
		},
		Handler: s.handleEndSession,
	})
	s.registry.Register(&Tool{
		Name:        "record_design_decision",
		Description: "Record a design decision with reasoning and alternatives.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id":   {Type: "string"},
				"category":     {Type: "string", Description: "e.g. architecture, tooling, api"},
				"title":        {Type: "string"},
				"reasoning":    {Type: "string"},
				"description":  {Type: "string"},
				"session_id":   {Type: "string"},
				"alternatives": {Type: "array", Items: &Property{Type: "string"}},
				"trade_offs":   {Type: "object"},
				"impact_scope": {Type: "string"},
			},
			Required: []string{"project_id", "category", "title", "reasoning"},
		},
		Handler: s.handleRecordDecision,
	})
	s.registry.Register(&Tool{
		Name:        "supersede_decision",
		Description: "Mark a decision as superseded by a newer one. Cycles are rejected.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"old_decision_id": {Type: "string"},
				"new_decision_id": {Type: "string"},
			},
			Required: []string{"old_decision_id", "new_decision_id"},
		},
		Handler: s.handleSupersedeDecision,
	})
	s.registry.Register(&Tool{
		Name:        "add_project_note",
		Description: "Add a note (pitfall, tip, optimization, issue, reminder).",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id":       {Type: "string"},
				"category":         {Type: "string", Enum: []string{"pitfall", "tip", "optimization", "issue", "reminder"}},
				"title":            {Type: "string"},
				"content":          {Type: "string"},
				"importance":       {Type: "integer", Default: 3},
				"session_id":       {Type: "string"},
				"related_code":     {Type: "string"},
				"related_entities": {Type: "array", Items: &Property{Type: "string"}},
				"tags":             {Type: "array", Items: &Property{Type: "string"}},
			},
			Required: []string{"project_id", "category", "title", "content"},
		},
		Handler: s.handleAddNote,
	})
	s.registry.Register(&Tool{
		Name:        "resolve_project_note",
		Description: "Mark a note resolved with an optional resolution note.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"note_id":       {Type: "string"},
				"resolved_note": {Type: "string"},
			},
			Required: []string{"note_id"},
		},
		Handler: s.handleResolveNote,
	})
	s.registry.Register(&Tool{
		Name:        "create_todo",
		Description: "Create a todo; depends_on must not introduce a cycle.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id":           {Type: "string"},
				"title":                {Type: "string"},
				"description":          {Type: "string"},
				"category":             {Type: "string", Enum: []string{"feature", "bugfix", "refactor", "test", "documentation"}},
				"priority":             {Type: "integer", Default: 3},
				"estimated_difficulty": {Type: "integer", Default: 3},
				"estimated_hours":      {Type: "number"},
				"depends_on":           {Type: "array", Items: &Property{Type: "string"}},
				"session_id":           {Type: "string"},
			},
			Required: []string{"project_id", "title"},
		},
		Handler: s.handleCreateTodo,
	})
	s.registry.Register(&Tool{
		Name:        "update_todo_status",
		Description: "Transition a todo; completed sets progress=100 and a completion stamp.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"todo_id":         {Type: "string"},
				"status":          {Type: "string", Enum: []string{"pending", "in_progress", "completed", "blocked", "cancelled"}},
				"progress":        {Type: "integer"},
				"completion_note": {Type: "string"},
			},
			Required: []string{"todo_id", "status"},
		},
		Handler: s.handleUpdateTodoStatus,
	})
	s.registry.Register(&Tool{
		Name:        "get_project_context",
		Description: "Aggregate the resume snapshot: last session, pending work, decisions, notes.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleGetProjectContext,
	})
	s.registry.Register(&Tool{
		Name:        "list_todos",
		Description: "List todos ordered by priority then age.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id":   {Type: "string"},
				"status":       {Type: "string"},
				"category":     {Type: "string"},
				"min_priority": {Type: "integer", Default: 1},
			},
			Required: []string{"project_id"},
		},
		Handler: s.handleListTodos,
	})
	s.registry.Register(&Tool{
		Name:        "get_next_todo",
		Description: "Return the highest-priority pending todo with all dependencies completed.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleGetNextTodo,
	})
	s.registry.Register(&Tool{
		Name:        "list_design_decisions",
		Description: "List decisions filtered by category and status.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"category":   {Type: "string"},
				"status":     {Type: "string", Default: "active"},
			},
			Required: []string{"project_id"},
		},
		Handler: s.handleListDecisions,
	})
	s.registry.Register(&Tool{
		Name:        "list_project_notes",
		Description: "List notes ordered by importance then recency.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id":      {Type: "string"},
				"category":        {Type: "string"},
				"min_importance":  {Type: "integer", Default: 1},
				"unresolved_only": {Type: "boolean", Default: false},
			},
			Required: []string{"project_id"},
		},
		Handler: s.handleListNotes,
	})
	s.registry.Register(&Tool{
		Name:        "get_project_statistics",
		Description: "Per-table counts plus todo and note breakdowns for a project.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleGetProjectStatistics,
	})
}

func (s *Server) handleStartSession(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.StartSession(ctx, argString(args, "project_id"), argString(args, "goals"))
}

func (s *Server) handleEndSession(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.EndSession(ctx, argString(args, "session_id"), store.EndSessionParams{
		Achievements:      argString(args, "achievements"),
		NextSteps:         argString(args, "next_steps"),
		FilesModified:     argStringSlice(args, "files_modified"),
		IssuesEncountered: argStringSlice(args, "issues_encountered"),
		ContextSummary:    argString(args, "context_summary"),
	})
}

func (s *Server) handleRecordDecision(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.CreateDecision(ctx, &types.Decision{
		ProjectID:    argString(args, "project_id"),
		SessionID:    argString(args, "session_id"),
		Category:     argString(args, "category"),
		Title:        argString(args, "title"),
		Description:  argString(args, "description"),
		Reasoning:    argString(args, "reasoning"),
		Alternatives: argStringSlice(args, "alternatives"),
		TradeOffs:    argStringMap(args, "trade_offs"),
		ImpactScope:  argString(args, "impact_scope"),
	})
}

func (s *Server) handleSupersedeDecision(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	oldID := argString(args, "old_decision_id")
	newID := argString(args, "new_decision_id")
	if err := s.store.SupersedeDecision(ctx, oldID, newID); err != nil {
		return nil, err
	}
	return s.store.GetDecision(ctx, oldID)
}

func (s *Server) handleAddNote(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.CreateNote(ctx, &types.Note{
		ProjectID:       argString(args, "project_id"),
		SessionID:       argString(args, "session_id"),
		Category:        types.NoteCategory(argString(args, "category")),
		Title:           argString(args, "title"),
		Content:         argString(args, "content"),
		Importance:      argInt(args, "importance", 3),
		RelatedCode:     argString(args, "related_code"),
		RelatedEntities: argStringSlice(args, "related_entities"),
		Tags:            argStringSlice(args, "tags"),
	})
}

func (s *Server) handleResolveNote(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.ResolveNote(ctx, argString(args, "note_id"), argString(args, "resolved_note"))
}

func (s *Server) handleCreateTodo(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.CreateTodo(ctx, &types.Todo{
		ProjectID:           argString(args, "project_id"),
		SessionID:           argString(args, "session_id"),
		Title:               argString(args, "title"),
		Description:         argString(args, "description"),
		Category:            types.TodoCategory(argStringDefault(args, "category", "feature")),
		Priority:            argInt(args, "priority", 3),
		EstimatedDifficulty: argInt(args, "estimated_difficulty", 3),
		EstimatedHours:      argFloat(args, "estimated_hours", 0),
		DependsOn:           argStringSlice(args, "depends_on"),
	})
}

func (s *Server) handleUpdateTodoStatus(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var progress *int
	if f, ok := args["progress"].(float64); ok {
		p := int(f)
		progress = &p
	}
	return s.store.UpdateTodoStatus(ctx,
		argString(args, "todo_id"),
		types.TodoStatus(argString(args, "status")),
		progress,
		argString(args, "completion_note"))
}

func (s *Server) handleGetProjectContext(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.context.GenerateResumeContext(ctx, argString(args, "project_id"))
}

func (s *Server) handleListTodos(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	todos, err := s.store.ListTodos(ctx,
		argString(args, "project_id"),
		types.TodoStatus(argString(args, "status")),
		types.TodoCategory(argString(args, "category")),
		argInt(args, "min_priority", 1), 0)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"todos": todos, "total": len(todos)}, nil
}

func (s *Server) handleGetNextTodo(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	todo, err := s.store.GetNextTodo(ctx, argString(args, "project_id"))
	if err != nil {
		return nil, err
	}
	if todo == nil {
		return map[string]interface{}{"todo": nil, "message": "no actionable todo"}, nil
	}
	return map[string]interface{}{"todo": todo}, nil
}

func (s *Server) handleListDecisions(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	decisions, err := s.store.ListDecisions(ctx,
		argString(args, "project_id"),
		argString(args, "category"),
		types.DecisionStatus(argStringDefault(args, "status", "active")), 0)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"decisions": decisions, "total": len(decisions)}, nil
}

func (s *Server) handleListNotes(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	notes, err := s.store.ListNotes(ctx,
		argString(args, "project_id"),
		types.NoteCategory(argString(args, "category")),
		argInt(args, "min_importance", 1),
		argBool(args, "unresolved_only", false), 0)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"notes": notes, "total": len(notes)}, nil
}

func (s *Server) handleGetProjectStatistics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.store.GetProjectStatistics(ctx, argString(args, "project_id"))
}
