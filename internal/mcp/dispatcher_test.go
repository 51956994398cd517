package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewarden/internal/config"
	"codewarden/internal/store"
	"codewarden/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBPath:         filepath.Join(t.TempDir(), "test.db"),
		MaxConnections: 32,
		RateLimit:      100,
		RatePeriod:     60 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	st, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewServer(cfg, st, nil)
}

func callRequest(t *testing.T, id interface{}, tool string, args map[string]interface{}) *Request {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{
		"name":      tool,
		"arguments": args,
	})
	require.NoError(t, err)
	return &Request{JSONRPC: "2.0", ID: id, Method: "tools/call", Params: params}
}

// callTool dispatches tools/call and decodes the JSON payload out of the
// content envelope.
func callTool(t *testing.T, s *Server, tool string, args map[string]interface{}) (map[string]interface{}, CallResult) {
	t.Helper()
	resp := s.Handle(context.Background(), callRequest(t, 1, tool, args))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result CallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotEmpty(t, result.Content)

	var payload map[string]interface{}
	if !result.IsError {
		require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &payload))
	}
	return payload, result
}

func seedProject(t *testing.T, s *Server, projectID string) {
	t.Helper()
	require.NoError(t, s.store.UpsertProject(context.Background(), &types.Project{
		ProjectID: projectID, Name: projectID, Path: "/tmp/" + projectID,
	}))
}

func TestHandleInitialize(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.Handle(context.Background(), &Request{
		JSONRPC: "2.0", ID: 1, Method: "initialize",
	})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]string)
	assert.Equal(t, serverName, info["name"])
}

func TestHandleToolsListCatalog(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	require.NotNil(t, resp)
	tools := resp.Result.(map[string]interface{})["tools"].([]ToolInfo)

	byName := make(map[string]ToolInfo, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
	}
	for _, name := range []string{
		"store_memory", "retrieve_memory",
		"analyze_codebase", "query_architecture", "find_entity",
		"trace_function_calls", "find_dependencies", "list_modules",
		"explain_module", "search_code_pattern",
		"start_dev_session", "end_dev_session", "record_design_decision",
		"supersede_decision", "add_project_note", "create_todo",
		"update_todo_status", "get_project_context", "list_todos",
		"get_next_todo", "list_design_decisions", "list_project_notes",
		"get_project_statistics",
		"detect_code_smells", "assess_technical_debt", "identify_debt_hotspots",
		"get_quality_trends", "resolve_quality_issue", "ignore_quality_issue",
		"generate_quality_report", "list_quality_issues",
		"error_firewall_record", "error_firewall_check", "error_firewall_query",
		"error_firewall_stats",
	} {
		assert.Contains(t, byName, name)
	}
	assert.GreaterOrEqual(t, len(tools), 35)
}

func TestHandleUnknownMethod(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 3, Method: "resources/list"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleNotificationProducesNoResponse(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Nil(t, s.Handle(context.Background(), &Request{
		JSONRPC: "2.0", Method: "notifications/initialized",
	}))
	// unknown method as notification: swallowed
	assert.Nil(t, s.Handle(context.Background(), &Request{
		JSONRPC: "2.0", Method: "nope",
	}))
}

func TestToolsCallUnknownTool(t *testing.T) {
	s := newTestServer(t, nil)

	_, result := callTool(t, s, "frobnicate", map[string]interface{}{})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "frobnicate")
}

func TestToolsCallMissingRequiredArgument(t *testing.T) {
	s := newTestServer(t, nil)

	_, result := callTool(t, s, "find_entity", map[string]interface{}{
		"project_id": "p1",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "name")
}

func TestToolsCallWrongArgumentType(t *testing.T) {
	s := newTestServer(t, nil)

	_, result := callTool(t, s, "find_entity", map[string]interface{}{
		"project_id": "p1",
		"name":       float64(42),
	})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "name")
}

func TestMemoryStoreAndRetrieve(t *testing.T) {
	s := newTestServer(t, nil)
	seedProject(t, s, "p1")

	for _, content := range []string{
		"the parser uses a worker pool for large trees",
		"sqlite is opened with WAL and a single connection",
		"unrelated grocery list",
	} {
		payload, result := callTool(t, s, "store_memory", map[string]interface{}{
			"project_id": "p1",
			"content":    content,
		})
		require.False(t, result.IsError)
		assert.Equal(t, true, payload["stored"])
	}

	payload, result := callTool(t, s, "retrieve_memory", map[string]interface{}{
		"project_id": "p1",
		"query":      "sqlite connection",
		"top_k":      float64(2),
	})
	require.False(t, result.IsError)
	hits := payload["memories"].([]interface{})
	require.NotEmpty(t, hits)
	top := hits[0].(map[string]interface{})
	mem := top["memory"].(map[string]interface{})
	assert.Contains(t, mem["content"], "sqlite")
	assert.Equal(t, 1.0, top["score"])
}

func TestTodoLifecycleThroughDispatcher(t *testing.T) {
	s := newTestServer(t, nil)
	seedProject(t, s, "p1")

	first, result := callTool(t, s, "create_todo", map[string]interface{}{
		"project_id": "p1", "title": "build parser", "priority": float64(5),
	})
	require.False(t, result.IsError)
	firstID := first["todo_id"].(string)

	_, result = callTool(t, s, "create_todo", map[string]interface{}{
		"project_id": "p1", "title": "wire server", "priority": float64(4),
		"depends_on": []interface{}{firstID},
	})
	require.False(t, result.IsError)

	payload, result := callTool(t, s, "get_next_todo", map[string]interface{}{"project_id": "p1"})
	require.False(t, result.IsError)
	todo := payload["todo"].(map[string]interface{})
	assert.Equal(t, firstID, todo["todo_id"])

	_, result = callTool(t, s, "update_todo_status", map[string]interface{}{
		"todo_id": firstID, "status": "completed",
	})
	require.False(t, result.IsError)

	payload, result = callTool(t, s, "get_next_todo", map[string]interface{}{"project_id": "p1"})
	require.False(t, result.IsError)
	todo = payload["todo"].(map[string]interface{})
	assert.Equal(t, "wire server", todo["title"])
}

func TestSupersedeChainThroughDispatcher(t *testing.T) {
	s := newTestServer(t, nil)
	seedProject(t, s, "p1")

	ids := make([]string, 3)
	for i := range ids {
		payload, result := callTool(t, s, "record_design_decision", map[string]interface{}{
			"project_id": "p1",
			"category":   "architecture",
			"title":      fmt.Sprintf("d%d", i+1),
			"reasoning":  "because",
		})
		require.False(t, result.IsError)
		ids[i] = payload["decision_id"].(string)
	}

	for _, pair := range [][2]string{{ids[0], ids[1]}, {ids[1], ids[2]}} {
		_, result := callTool(t, s, "supersede_decision", map[string]interface{}{
			"old_decision_id": pair[0], "new_decision_id": pair[1],
		})
		require.False(t, result.IsError)
	}

	payload, result := callTool(t, s, "list_design_decisions", map[string]interface{}{
		"project_id": "p1",
	})
	require.False(t, result.IsError)
	decisions := payload["decisions"].([]interface{})
	require.Len(t, decisions, 1)
	assert.Equal(t, "d3", decisions[0].(map[string]interface{})["title"])

	// closing the loop is a conflict, reported inside the envelope
	_, result = callTool(t, s, "supersede_decision", map[string]interface{}{
		"old_decision_id": ids[2], "new_decision_id": ids[0],
	})
	assert.True(t, result.IsError)
}

func TestFirewallRoundTripThroughDispatcher(t *testing.T) {
	s := newTestServer(t, nil)

	payload, result := callTool(t, s, "error_firewall_record", map[string]interface{}{
		"error_type":    "ios_build",
		"error_message": "simulator boot failed",
		"error_pattern": map[string]interface{}{
			"device_name": "iPhone 15",
			"os_version":  "17.0",
		},
		"block_level": "block",
	})
	require.False(t, result.IsError)
	assert.Equal(t, true, payload["is_new"])

	payload, result = callTool(t, s, "error_firewall_check", map[string]interface{}{
		"operation_type": "ios_build",
		"operation_params": map[string]interface{}{
			"device_name": "iPhone 15",
			"os_version":  "17.0",
		},
	})
	require.False(t, result.IsError)
	assert.Equal(t, true, payload["should_block"])
	assert.Equal(t, "high", payload["risk_level"])
	assert.Equal(t, 1.0, payload["match_confidence"])

	payload, result = callTool(t, s, "error_firewall_check", map[string]interface{}{
		"operation_type": "ios_build",
		"operation_params": map[string]interface{}{
			"device_name": "iPhone 15 Pro",
			"os_version":  "17.2",
		},
	})
	require.False(t, result.IsError)
	assert.Equal(t, false, payload["should_block"])

	payload, result = callTool(t, s, "error_firewall_stats", map[string]interface{}{})
	require.False(t, result.IsError)
	assert.Equal(t, 1.0, payload["total_blocks"])
}

func TestExplainEntityAIUnavailableWithoutKey(t *testing.T) {
	s := newTestServer(t, nil)
	seedProject(t, s, "p1")
	require.NoError(t, s.store.ReplaceProjectAnalysis(context.Background(), "p1",
		[]*types.CodeEntity{{
			EntityID: "e1", ProjectID: "p1", Kind: types.KindFunction,
			Name: "f", QualifiedName: "m.f", FilePath: "m.py", LineStart: 1,
		}}, nil))

	_, result := callTool(t, s, "explain_entity_ai", map[string]interface{}{
		"project_id": "p1", "entity_id": "e1",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "no model configured")
}

func TestDispatcherRecordsMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	s.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	_, _ = callTool(t, s, "frobnicate", map[string]interface{}{})

	stats := s.metrics.Stats()
	assert.GreaterOrEqual(t, stats.TotalRequests, int64(2))
	assert.GreaterOrEqual(t, stats.FailedRequests, int64(1))
	assert.Equal(t, int64(1), stats.RequestsByMethod["tools/list"])
}

func TestCallToolTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.RequestTimeout = 20 * time.Millisecond
	s := newTestServer(t, cfg)

	s.registry.Register(&Tool{
		Name:        "sleepy",
		Description: "test helper",
		Schema:      Schema{Type: "object"},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	_, result := callTool(t, s, "sleepy", map[string]interface{}{})
	assert.True(t, result.IsError)
}

func TestCallToolPanicRecovered(t *testing.T) {
	s := newTestServer(t, nil)
	s.registry.Register(&Tool{
		Name:        "explode",
		Description: "test helper",
		Schema:      Schema{Type: "object"},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			panic("boom")
		},
	})

	_, result := callTool(t, s, "explode", map[string]interface{}{})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "internal error")
}
