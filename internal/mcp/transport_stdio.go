package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// stdio frames can carry large analysis payloads.
const maxLineBytes = 10 * 1024 * 1024

// RunStdio serves NDJSON over in/out: one JSON-RPC object per line in, one
// response per line out. stdout carries only protocol frames; all logging
// goes to stderr via the configured logger. Requests are processed in order.
// End-of-input returns nil.
func (s *Server) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)

	enc := json.NewEncoder(out)
	s.log.Info("stdio transport ready")

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := decodeRequest(line)
		if err != nil {
			if encErr := enc.Encode(parseErrorResponse(err.Error())); encErr != nil {
				return fmt.Errorf("write parse-error response: %w", encErr)
			}
			continue
		}

		resp := s.Handle(ctx, req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		s.log.Error("stdin read failed", zap.Error(err))
		return err
	}
	s.log.Info("stdin closed, shutting down")
	return nil
}
