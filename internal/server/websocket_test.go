package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWebSocket(t *testing.T, s *Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func readResponse(t *testing.T, conn *websocket.Conn) WebSocketResponse {
	t.Helper()
	var resp WebSocketResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestWebSocket_Frames(t *testing.T) {
	s, _ := newFakeServer(t)
	conn, resp, err := dialWebSocket(t, s, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	requestID := resp.Header.Get(RequestIDHeader)
	assert.NotEmpty(t, requestID)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, blockPNG(t)))
	first := readResponse(t, conn)
	assert.Equal(t, 1, first.Frame)
	assert.Equal(t, "completed", first.Status, first.Error)
	assert.Equal(t, requestID, first.RequestID)

	var result struct {
		Source string `json:"source"`
		Text   string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(first.Result, &result))
	assert.Equal(t, "frame_1", result.Source)
	assert.Equal(t, "abc\n", result.Text)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"image"}`)))
	second := readResponse(t, conn)
	assert.Equal(t, 2, second.Frame)
	assert.Equal(t, "error", second.Status)
	assert.Contains(t, second.Error, "binary frame")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("not an image")))
	third := readResponse(t, conn)
	assert.Equal(t, 3, third.Frame)
	assert.Equal(t, "error", third.Status)
	assert.Empty(t, third.Result)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, blockPNG(t)))
	fourth := readResponse(t, conn)
	assert.Equal(t, "completed", fourth.Status)
}

func TestWebSocket_CheckOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CORSOrigin = "https://app.example"
	s := newTestServer(t, cfg, &stubProcessor{}, nil)

	_, resp, err := dialWebSocket(t, s, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dialWebSocket(t, s, http.Header{"Origin": {"https://app.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}
