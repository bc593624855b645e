package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/config"
	"github.com/lowks/discovery/internal/directory"
	"github.com/lowks/discovery/internal/health"
	"github.com/lowks/discovery/internal/link"
	"github.com/lowks/discovery/internal/supervisor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = false

	logger := zap.NewNop()
	dir := directory.New(25, logger)
	sup := supervisor.New(dir, link.NewLoopback(), time.Hour, logger, nil)
	checker := health.NewChecker(dir, nil, logger)
	return New(cfg, sup, dir, checker, logger, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestConnectNode(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/nodes",
		connectRequest{Node: "10.0.0.1:7946", Service: "cache"})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp connectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "10.0.0.1:7946", resp.Node)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestConnectNode_InvalidBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/nodes", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrorCodeInvalidRequest, resp.ErrorCode)
}

func TestConnectNode_InvalidService(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/nodes",
		connectRequest{Node: "nodeA", Service: "not a service"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrorCodeInvalidArgument, resp.ErrorCode)
}

func TestRoute(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusAccepted,
		doJSON(t, srv, http.MethodPost, "/v1/nodes", connectRequest{Node: "nodeA", Service: "cache"}).Code)
	require.Equal(t, http.StatusAccepted,
		doJSON(t, srv, http.MethodPost, "/v1/nodes", connectRequest{Node: "nodeB", Service: "cache"}).Code)

	rec := doJSON(t, srv, http.MethodGet, "/v1/route/cache?key=some-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, []any{"nodeA", "nodeB"}, resp["node"])

	// Identical key routes identically.
	again := doJSON(t, srv, http.MethodGet, "/v1/route/cache?key=some-key", nil)
	var respAgain map[string]any
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &respAgain))
	assert.Equal(t, resp["node"], respAgain["node"])
}

func TestRoute_MissingKey(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/v1/route/cache", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoute_ExplicitHash(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusAccepted,
		doJSON(t, srv, http.MethodPost, "/v1/nodes", connectRequest{Node: "nodeA", Service: "cache"}).Code)

	rec := doJSON(t, srv, http.MethodGet, "/v1/route/cache?hash=12345", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	bad := doJSON(t, srv, http.MethodGet, "/v1/route/cache?hash=-1", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestRoute_NoServers(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/v1/route/cache?key=x", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrorCodeNoServers, resp.ErrorCode)
}

func TestDisconnectNode_ClearsRouting(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusAccepted,
		doJSON(t, srv, http.MethodPost, "/v1/nodes", connectRequest{Node: "nodeA", Service: "cache"}).Code)

	rec := doJSON(t, srv, http.MethodDelete, "/v1/nodes/nodeA", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound,
		doJSON(t, srv, http.MethodGet, "/v1/route/cache?key=x", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, srv, http.MethodGet, "/v1/nodes/nodeA", nil).Code)
}

func TestListNodesAndServices(t *testing.T) {
	srv := newTestServer(t)
	for i, service := range []string{"cache", "cache", "queue"} {
		node := fmt.Sprintf("node%d", i)
		require.Equal(t, http.StatusAccepted,
			doJSON(t, srv, http.MethodPost, "/v1/nodes", connectRequest{Node: node, Service: service}).Code)
	}

	rec := doJSON(t, srv, http.MethodGet, "/v1/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nodesResp struct {
		Nodes map[string][]string `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodesResp))
	assert.Len(t, nodesResp.Nodes, 3)
	assert.Equal(t, []string{"cache"}, nodesResp.Nodes["node0"])

	rec = doJSON(t, srv, http.MethodGet, "/v1/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var servicesResp struct {
		Services map[string][]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servicesResp))
	assert.ElementsMatch(t, []string{"node0", "node1"}, servicesResp.Services["cache"])
	assert.Equal(t, []string{"node2"}, servicesResp.Services["queue"])
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK,
		doJSON(t, srv, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK,
		doJSON(t, srv, http.MethodGet, "/health/ready", nil).Code)
}

func TestUnknownEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
