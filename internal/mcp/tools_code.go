package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codewarden/internal/types"
)

func (s *Server) registerCodeTools() {
	s.registry.Register(&Tool{
		Name:        "analyze_codebase",
		Description: "Analyze a source tree into an entity/relation graph. Re-running replaces prior results.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_path": {Type: "string", Description: "Root directory of the project"},
				"project_id":   {Type: "string", Description: "Stable project id; derived from the path when omitted"},
			},
			Required: []string{"project_path"},
		},
		Handler: s.handleAnalyzeCodebase,
	})
	s.registry.Register(&Tool{
		Name:        "query_architecture",
		Description: "Summarize a project's graph: entity counts by kind, files, relation counts.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleQueryArchitecture,
	})
	s.registry.Register(&Tool{
		Name:        "find_entity",
		Description: "Find entities by name, exact or fuzzy.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"name":       {Type: "string"},
				"fuzzy":      {Type: "boolean", Default: true},
			},
			Required: []string{"project_id", "name"},
		},
		Handler: s.handleFindEntity,
	})
	s.registry.Register(&Tool{
		Name:        "trace_function_calls",
		Description: "Walk outgoing call relations from an entity up to a depth.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"entity_id":  {Type: "string"},
				"depth":      {Type: "integer", Default: 3},
			},
			Required: []string{"project_id", "entity_id"},
		},
		Handler: s.handleTraceFunctionCalls,
	})
	s.registry.Register(&Tool{
		Name:        "find_dependencies",
		Description: "List an entity's outgoing and incoming relations.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"entity_id":  {Type: "string"},
			},
			Required: []string{"project_id", "entity_id"},
		},
		Handler: s.handleFindDependencies,
	})
	s.registry.Register(&Tool{
		Name:        "list_modules",
		Description: "List a project's source files with entity counts.",
		Schema:      projectOnlySchema(),
		Handler:     s.handleListModules,
	})
	s.registry.Register(&Tool{
		Name:        "explain_module",
		Description: "Describe one module: its entities, docstrings, and relations.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id":  {Type: "string"},
				"module_path": {Type: "string", Description: "File path relative to the project root"},
			},
			Required: []string{"project_id", "module_path"},
		},
		Handler: s.handleExplainModule,
	})
	s.registry.Register(&Tool{
		Name:        "search_code_pattern",
		Description: "Search entity names and qualified names by substring with an optional kind filter.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"pattern":    {Type: "string"},
				"kind":       {Type: "string", Description: "Entity kind filter"},
				"limit":      {Type: "integer", Default: 50},
			},
			Required: []string{"project_id", "pattern"},
		},
		Handler: s.handleSearchCodePattern,
	})
	s.registry.Register(&Tool{
		Name:        "explain_entity_ai",
		Description: "Ask the configured model to explain an entity. Unavailable without an API key.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"entity_id":  {Type: "string"},
			},
			Required: []string{"project_id", "entity_id"},
		},
		Handler: s.handleExplainEntityAI,
	})
}

func projectOnlySchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"project_id": {Type: "string"},
		},
		Required: []string{"project_id"},
	}
}

func (s *Server) handleAnalyzeCodebase(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analyzer.Analyze(ctx, argString(args, "project_path"), argString(args, "project_id"))
}

func (s *Server) handleQueryArchitecture(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := argString(args, "project_id")
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	kinds, err := s.store.CountEntitiesByKind(ctx, projectID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	relations, err := s.store.ListRelations(ctx, projectID, "")
	if err != nil {
		return nil, err
	}
	byRelKind := make(map[string]int)
	resolved := 0
	for _, r := range relations {
		byRelKind[string(r.Kind)]++
		if r.Resolved {
			resolved++
		}
	}
	return map[string]interface{}{
		"project":            project,
		"entities_by_kind":   kinds,
		"file_count":         len(files),
		"relations_by_kind":  byRelKind,
		"relation_count":     len(relations),
		"resolved_relations": resolved,
	}, nil
}

func (s *Server) handleFindEntity(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	entities, err := s.store.FindEntities(ctx,
		argString(args, "project_id"),
		argString(args, "name"),
		argBool(args, "fuzzy", true))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"entities": entities,
		"total":    len(entities),
	}, nil
}

// callHop is one edge in a call trace.
type callHop struct {
	Depth    int               `json:"depth"`
	SourceID string            `json:"source_id"`
	TargetID string            `json:"target_id"`
	Target   *types.CodeEntity `json:"target,omitempty"`
	Resolved bool              `json:"resolved"`
}

func (s *Server) handleTraceFunctionCalls(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := argString(args, "project_id")
	entityID := argString(args, "entity_id")
	depth := argInt(args, "depth", 3)
	if depth <= 0 || depth > 10 {
		depth = 3
	}

	root, err := s.store.GetEntity(ctx, projectID, entityID)
	if err != nil {
		return nil, err
	}

	var hops []callHop
	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			rels, err := s.store.RelationsFrom(ctx, projectID, id)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				if r.Kind != types.RelCalls {
					continue
				}
				hop := callHop{
					Depth:    level,
					SourceID: r.SourceID,
					TargetID: r.TargetID,
					Resolved: r.Resolved,
				}
				if r.Resolved {
					if target, err := s.store.GetEntity(ctx, projectID, r.TargetID); err == nil {
						hop.Target = target
					}
					if !visited[r.TargetID] {
						visited[r.TargetID] = true
						next = append(next, r.TargetID)
					}
				}
				hops = append(hops, hop)
			}
		}
		frontier = next
	}
	return map[string]interface{}{
		"root":  root,
		"depth": depth,
		"calls": hops,
		"total": len(hops),
	}, nil
}

func (s *Server) handleFindDependencies(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := argString(args, "project_id")
	entityID := argString(args, "entity_id")

	if _, err := s.store.GetEntity(ctx, projectID, entityID); err != nil {
		return nil, err
	}
	outgoing, err := s.store.RelationsFrom(ctx, projectID, entityID)
	if err != nil {
		return nil, err
	}
	incoming, err := s.store.RelationsTo(ctx, projectID, entityID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"entity_id": entityID,
		"outgoing":  outgoing,
		"incoming":  incoming,
	}, nil
}

func (s *Server) handleListModules(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	files, err := s.store.ListFiles(ctx, argString(args, "project_id"))
	if err != nil {
		return nil, err
	}
	type moduleEntry struct {
		FilePath    string `json:"file_path"`
		EntityCount int    `json:"entity_count"`
	}
	modules := make([]moduleEntry, 0, len(files))
	for path, n := range files {
		modules = append(modules, moduleEntry{FilePath: path, EntityCount: n})
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].FilePath < modules[j].FilePath })
	return map[string]interface{}{
		"modules": modules,
		"total":   len(modules),
	}, nil
}

func (s *Server) handleExplainModule(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := argString(args, "project_id")
	modulePath := argString(args, "module_path")

	entities, err := s.store.ListEntitiesByFile(ctx, projectID, modulePath)
	if err != nil {
		return nil, err
	}
	var relations []*types.CodeRelation
	for _, e := range entities {
		rels, err := s.store.RelationsFrom(ctx, projectID, e.EntityID)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			if r.Kind != types.RelContains {
				relations = append(relations, r)
			}
		}
	}
	return map[string]interface{}{
		"module_path": modulePath,
		"entities":    entities,
		"relations":   relations,
	}, nil
}

func (s *Server) handleSearchCodePattern(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	entities, err := s.store.SearchEntities(ctx,
		argString(args, "project_id"),
		argString(args, "pattern"),
		types.EntityKind(argString(args, "kind")),
		argInt(args, "limit", 50))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"entities": entities,
		"total":    len(entities),
	}, nil
}

func (s *Server) handleExplainEntityAI(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := argString(args, "project_id")
	entity, err := s.store.GetEntity(ctx, projectID, argString(args, "entity_id"))
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Explain the role of this %s in a codebase.\n", entity.Kind)
	fmt.Fprintf(&b, "Name: %s\nFile: %s\n", entity.QualifiedName, entity.FilePath)
	if entity.Signature != "" {
		fmt.Fprintf(&b, "Signature: %s\n", entity.Signature)
	}
	if entity.Docstring != "" {
		fmt.Fprintf(&b, "Docstring: %s\n", entity.Docstring)
	}

	explanation, err := s.ai.Complete(ctx, b.String(), 1024)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"entity_id":   entity.EntityID,
		"explanation": explanation,
	}, nil
}
