package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStdio feeds input through the transport and returns the decoded NDJSON
// responses, one per output line.
func runStdio(t *testing.T, s *Server, input string) ([]Response, error) {
	t.Helper()
	var out bytes.Buffer
	err := s.RunStdio(context.Background(), strings.NewReader(input), &out)

	var responses []Response
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	require.NoError(t, scanner.Err())
	return responses, err
}

func TestStdioRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)

	responses, err := runStdio(t,
		s, `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`+"\n")
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "2.0", responses[0].JSONRPC)
	assert.Equal(t, float64(7), responses[0].ID)
	require.Nil(t, responses[0].Error)
	tools := responses[0].Result.(map[string]interface{})["tools"].([]interface{})
	assert.GreaterOrEqual(t, len(tools), 35)
}

func TestStdioMalformedLineAnswersParseError(t *testing.T) {
	s := newTestServer(t, nil)

	input := "{not json\n" +
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"
	responses, err := runStdio(t, s, input)
	require.NoError(t, err)
	require.Len(t, responses, 2)

	// bad line answered in place, the stream keeps going
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, codeParseError, responses[0].Error.Code)
	assert.Nil(t, responses[0].ID)

	assert.Nil(t, responses[1].Error)
	assert.Equal(t, float64(1), responses[1].ID)
}

func TestStdioNotificationAndBlankLinesProduceNoOutput(t *testing.T) {
	s := newTestServer(t, nil)

	input := "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		"\n"
	responses, err := runStdio(t, s, input)
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestStdioEOFReturnsNil(t *testing.T) {
	s := newTestServer(t, nil)

	responses, err := runStdio(t, s, "")
	assert.NoError(t, err)
	assert.Empty(t, responses)
}

func TestStdioOversizedLineFailsScan(t *testing.T) {
	s := newTestServer(t, nil)

	line := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"pad":"` +
		strings.Repeat("x", maxLineBytes) + `"}}`
	_, err := runStdio(t, s, line+"\n")
	assert.Error(t, err)
}
