package mcp

import (
	"context"
	"sort"
	"strings"

	"codewarden/internal/types"
)

func (s *Server) registerMemoryTools() {
	s.registry.Register(&Tool{
		Name:        "store_memory",
		Description: "Store a context fragment for later keyword retrieval.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id":   {Type: "string", Description: "Project to attach the memory to"},
				"content":      {Type: "string", Description: "Memory text"},
				"memory_level": {Type: "string", Enum: []string{"short", "mid", "long"}, Default: "mid"},
			},
			Required: []string{"project_id", "content"},
		},
		Handler: s.handleStoreMemory,
	})
	s.registry.Register(&Tool{
		Name:        "retrieve_memory",
		Description: "Retrieve stored memories ranked by keyword overlap with the query.",
		Schema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"project_id": {Type: "string"},
				"query":      {Type: "string", Description: "Search terms"},
				"top_k":      {Type: "integer", Default: 5},
			},
			Required: []string{"project_id", "query"},
		},
		Handler: s.handleRetrieveMemory,
	})
}

func (s *Server) handleStoreMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	m, err := s.store.SaveMemory(ctx, &types.Memory{
		ProjectID: argString(args, "project_id"),
		Content:   argString(args, "content"),
		Level:     types.MemoryLevel(argStringDefault(args, "memory_level", "mid")),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"memory_id":    m.MemoryID,
		"memory_level": m.Level,
		"stored":       true,
	}, nil
}

// scoredMemory is one retrieval hit.
type scoredMemory struct {
	Memory *types.Memory `json:"memory"`
	Score  float64       `json:"score"`
}

func (s *Server) handleRetrieveMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := argString(args, "project_id")
	query := argString(args, "query")
	topK := argInt(args, "top_k", 5)
	if topK <= 0 {
		topK = 5
	}

	memories, err := s.store.ListMemories(ctx, projectID)
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	var hits []scoredMemory
	for _, m := range memories {
		score := keywordOverlap(terms, m.Content)
		if score > 0 {
			hits = append(hits, scoredMemory{Memory: m, Score: score})
		}
	}
	// ties keep ListMemories order: newest first
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return map[string]interface{}{
		"memories": hits,
		"total":    len(hits),
	}, nil
}

// keywordOverlap scores content by the fraction of distinct query terms it
// contains.
func keywordOverlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	seen := make(map[string]bool, len(terms))
	matched := 0
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}
