package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"codewarden/internal/apperr"
)

// timeoutGrace is how long the dispatcher waits for a handler to notice
// cancellation before answering Timeout on its behalf.
const timeoutGrace = 5 * time.Second

// Handle dispatches one JSON-RPC request and returns the response, or nil
// for notifications. Parse errors are handled by the transports; everything
// from here on has a decoded request.
//
// Error placement follows the wire contract: MethodNotFound is a JSON-RPC
// error object; tool-level failures (unknown tool, bad arguments, handler
// errors) ride inside the result envelope with isError set, so the client
// always sees a 2.0-shaped reply.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	started := time.Now()

	switch req.Method {
	case "initialize":
		resp := s.result(req.ID, map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"serverInfo": map[string]string{
				"name":    serverName,
				"version": ServerVersion,
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		})
		s.metrics.Record("initialize", time.Since(started), true)
		return resp

	case "initialized", "notifications/initialized":
		return nil

	case "tools/list":
		resp := s.result(req.ID, map[string]interface{}{
			"tools": s.registry.List(),
		})
		s.metrics.Record("tools/list", time.Since(started), true)
		return resp

	case "tools/call":
		return s.handleToolsCall(ctx, req, started)

	default:
		s.metrics.Record(req.Method, time.Since(started), false)
		if req.ID == nil {
			return nil
		}
		return s.rpcError(req.ID, codeMethodNotFound, "Method not found", req.Method)
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request, started time.Time) *Response {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.metrics.Record("tools/call", time.Since(started), false)
		return s.result(req.ID, errorResult("invalid tools/call params: "+err.Error()))
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}

	value, err := s.callTool(ctx, params.Name, params.Arguments)
	ok := err == nil
	s.metrics.Record(params.Name, time.Since(started), ok)

	if err != nil {
		s.log.Warn("tool call failed",
			zap.String("tool", params.Name),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
		return s.result(req.ID, errorResult(err.Error()))
	}

	raw, merr := json.MarshalIndent(value, "", "  ")
	if merr != nil {
		return s.result(req.ID, errorResult("failed to encode result: "+merr.Error()))
	}
	return s.result(req.ID, textResult(string(raw)))
}

// callTool resolves, validates, and runs one handler under a deadline with
// panic recovery. A handler that outlives its deadline by more than the grace
// period is abandoned and answered with Timeout.
func (s *Server) callTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := validateArgs(tool.Schema, args); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("handler panic",
					zap.String("tool", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				done <- outcome{err: apperr.New(apperr.KindInternal,
					"internal error in %s: %v", name, r)}
			}
		}()
		value, err := tool.Handler(ctx, args)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-time.After(timeoutGrace):
		return nil, apperr.New(apperr.KindTimeout, "tool %s exceeded its deadline", name)
	}
}

func (s *Server) result(id, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) rpcError(id interface{}, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}

// parseErrorResponse is what transports answer when a line or body is not
// valid JSON.
func parseErrorResponse(detail string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      nil,
		Error: &RPCError{
			Code:    codeParseError,
			Message: "Parse error",
			Data:    detail,
		},
	}
}

// decodeRequest parses one JSON-RPC message.
func decodeRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC request: %w", err)
	}
	return &req, nil
}
