package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStream connects to the SSE endpoint and returns the announced session
// id plus a line reader over the event stream.
func openStream(t *testing.T, baseURL string) (string, *bufio.Reader, func()) {
	t.Helper()

	resp, err := http.Get(baseURL + "/sse")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: endpoint\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: /?session_id="))
	sessionID := strings.TrimSpace(strings.TrimPrefix(line, "data: /?session_id="))
	require.NotEmpty(t, sessionID)

	return sessionID, reader, func() { resp.Body.Close() }
}

// nextEvent skips heartbeats and blank lines and returns the next data
// payload.
func nextEvent(t *testing.T, reader *bufio.Reader) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimSpace(strings.TrimPrefix(line, "data: ")))
		}
	}
	t.Fatal("no data event before deadline")
	return nil
}

func postSession(t *testing.T, baseURL, sessionID, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(
		fmt.Sprintf("%s/?session_id=%s", baseURL, sessionID),
		"application/json",
		bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestSSESessionRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.SSEHandler())
	defer ts.Close()

	sessionID, reader, closeStream := openStream(t, ts.URL)
	defer closeStream()

	resp := postSession(t, ts.URL, sessionID,
		`{"jsonrpc":"2.0","id":42,"method":"tools/list"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var rpcResp Response
	require.NoError(t, json.Unmarshal(nextEvent(t, reader), &rpcResp))
	assert.Equal(t, "2.0", rpcResp.JSONRPC)
	assert.Equal(t, float64(42), rpcResp.ID)
	require.Nil(t, rpcResp.Error)
	tools := rpcResp.Result.(map[string]interface{})["tools"].([]interface{})
	assert.GreaterOrEqual(t, len(tools), 35)
}

func TestSSEResponsesArriveInPostOrder(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.SSEHandler())
	defer ts.Close()

	sessionID, reader, closeStream := openStream(t, ts.URL)
	defer closeStream()

	for i := 1; i <= 3; i++ {
		resp := postSession(t, ts.URL, sessionID,
			fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/list"}`, i))
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	for i := 1; i <= 3; i++ {
		var rpcResp Response
		require.NoError(t, json.Unmarshal(nextEvent(t, reader), &rpcResp))
		assert.Equal(t, float64(i), rpcResp.ID)
	}
}

func TestSSEUnknownSession(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.SSEHandler())
	defer ts.Close()

	resp := postSession(t, ts.URL, "no-such-session",
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSEInvalidBody(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.SSEHandler())
	defer ts.Close()

	sessionID, _, closeStream := openStream(t, ts.URL)
	defer closeStream()

	resp := postSession(t, ts.URL, sessionID, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSEStreamRequiresAuthorization(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKeys = []string{"sekrit"}
	s := newTestServer(t, cfg)
	ts := httptest.NewServer(s.SSEHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sse")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSSESessionGoneAfterDisconnect(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.SSEHandler())
	defer ts.Close()

	sessionID, _, closeStream := openStream(t, ts.URL)
	closeStream()

	// session removal races with the body close; poll briefly
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := postSession(t, ts.URL, sessionID,
			`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		if resp.StatusCode == http.StatusBadRequest {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s still accepted after disconnect", sessionID)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
