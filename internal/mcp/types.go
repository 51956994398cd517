// Package mcp implements the tool server: JSON-RPC 2.0 wire types, the tool
// registry and dispatcher, the stdio/HTTP/SSE transports, admission control,
// and request metrics.
package mcp

import "encoding/json"

// ServerVersion and ProtocolVersion are what initialize and the version
// command report.
const (
	ServerVersion   = "1.0.0"
	ProtocolVersion = "2024-11-05"

	serverName = "codewarden"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Request is one JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one JSON-RPC response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ToolInfo is one entry in the tools/list reply.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

// Schema is a JSON-schema object shape for tool arguments.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one argument.
type Property struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Items       *Property   `json:"items,omitempty"`
}

// CallResult is the tools/call result envelope.
type CallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem is one content block.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) CallResult {
	return CallResult{Content: []ContentItem{{Type: "text", Text: text}}}
}

func errorResult(text string) CallResult {
	return CallResult{
		Content: []ContentItem{{Type: "text", Text: text}},
		IsError: true,
	}
}
