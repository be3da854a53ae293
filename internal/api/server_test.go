package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/ringcache/internal/cluster"
	"github.com/zde37/ringcache/pkg"
)

func newTestServer(t *testing.T, serverIDs ...string) (*Server, *httptest.Server) {
	t.Helper()

	cfg := pkg.DefaultLogConfig()
	cfg.Console.Enable = false
	logger, err := pkg.NewLogger(cfg)
	require.NoError(t, err)

	c := cluster.New(16, logger)
	for _, id := range serverIDs {
		_, err := c.AddServer(id)
		require.NoError(t, err)
	}

	srv, err := NewServer(c, 50*time.Millisecond, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestServerLifecycleEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/servers", map[string]string{"id": "server-1"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "server-1", body["server_id"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/servers", map[string]string{"id": "server-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/servers", map[string]string{"id": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/servers", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "server-1")

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/servers/server-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/servers/server-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCacheEndpoints(t *testing.T) {
	_, ts := newTestServer(t, "server-1", "server-2")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/cache/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/api/cache/key1", map[string]string{"value": "v1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "key1", body["key"])
	assert.NotContains(t, body, "previous")

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/api/cache/key1", map[string]string{"value": "v2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", body["previous"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/cache/key1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v2", body["value"])

	resp, body = doJSON(t, http.MethodDelete, ts.URL+"/api/cache/key1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v2", body["removed"])

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/cache/key1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFailureAndRecoveryEndpoints(t *testing.T) {
	_, ts := newTestServer(t, "server-1")

	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/api/cache/key1", map[string]string{"value": "v1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/servers/server-1/fail", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Writes surface the outage, reads report a plain miss.
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/api/cache/key1", map[string]string{"value": "v2"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/cache/key1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/servers/server-1/recover", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/cache/key1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", body["value"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/servers/unknown/fail", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatsAndDistributionEndpoints(t *testing.T) {
	_, ts := newTestServer(t, "server-1", "server-2", "server-3")

	keys := make([]string, 100)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		resp, _ := doJSON(t, http.MethodPut, ts.URL+"/api/cache/"+keys[i], map[string]string{"value": "v"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total_servers"])
	assert.Equal(t, float64(100), body["total_keys"])

	resp, dist := doJSON(t, http.MethodPost, ts.URL+"/api/distribution", map[string]any{"keys": keys})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, dist, 3)

	total := 0.0
	for _, count := range dist {
		total += count.(float64)
	}
	assert.Equal(t, 100.0, total)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/clear", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total_keys"])
}

func TestWebSocketStream(t *testing.T) {
	srv, ts := newTestServer(t, "server-1")

	go srv.wsHub.Run()
	t.Cleanup(srv.wsHub.Stop)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	payload, err := json.Marshal(map[string]any{"type": "stats", "data": srv.cluster.Stats()})
	require.NoError(t, err)

	// Give the hub a moment to register the client before broadcasting.
	time.Sleep(100 * time.Millisecond)
	srv.wsHub.Broadcast(payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg, &decoded))
	assert.Equal(t, "stats", decoded["type"])
	assert.Contains(t, decoded, "data")
}
