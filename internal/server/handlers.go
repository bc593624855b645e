package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/directory"
	"github.com/lowks/discovery/internal/metrics"
	"github.com/lowks/discovery/internal/model"
	"github.com/lowks/discovery/internal/ring"
	"github.com/lowks/discovery/internal/supervisor"
)

// Handlers implements the admin API endpoints.
type Handlers struct {
	sup     *supervisor.Supervisor
	dir     *directory.Directory
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHandlers creates the API handlers. metrics may be nil.
func NewHandlers(sup *supervisor.Supervisor, dir *directory.Directory, logger *zap.Logger, m *metrics.Metrics) *Handlers {
	return &Handlers{sup: sup, dir: dir, logger: logger, metrics: m}
}

type connectRequest struct {
	Node    string `json:"node"`
	Service string `json:"service"`
}

type connectResponse struct {
	Status  string `json:"status"`
	Node    string `json:"node"`
	Service string `json:"service"`
}

// ConnectNode registers a node as a provider of a service and starts the
// link cycle. Registration is the only synchronous step: the response is
// 202 because link establishment completes asynchronously.
func (h *Handlers) ConnectNode(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if err := h.sup.Connect(model.NodeID(req.Node), req.Service); err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(connectResponse{
		Status:  "accepted",
		Node:    req.Node,
		Service: req.Service,
	})
}

// DisconnectNode tears a node down: pending retries are cancelled and the
// node leaves every ring it was placed on.
func (h *Handlers) DisconnectNode(w http.ResponseWriter, r *http.Request) {
	node := mux.Vars(r)["node"]

	if err := h.sup.Disconnect(model.NodeID(node)); err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "node": node})
}

// ListNodes returns every known node with its services.
func (h *Handlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.dir.ListNodes()

	out := make(map[string][]string, len(nodes))
	for node, services := range nodes {
		out[string(node)] = services
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"nodes": out})
}

// GetNode returns one node's registration, or 404 if unknown.
func (h *Handlers) GetNode(w http.ResponseWriter, r *http.Request) {
	node := model.NodeID(mux.Vars(r)["node"])

	services := h.dir.Services(node)
	if services == nil {
		writeError(w, r, http.StatusNotFound, ErrorCodeNodeNotFound, "node not registered")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"node":     string(node),
		"services": services,
	})
}

// ListServices returns every active service with its providers.
func (h *Handlers) ListServices(w http.ResponseWriter, r *http.Request) {
	services := h.dir.ListServices()

	out := make(map[string][]string, len(services))
	for service, nodes := range services {
		providers := make([]string, 0, len(nodes))
		for _, node := range nodes {
			providers = append(providers, string(node))
		}
		out[service] = providers
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"services": out})
}

// Route resolves a provider for a service. The caller supplies either a
// key, which is hashed into ring space, or an explicit decimal hash.
func (h *Handlers) Route(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]

	var hash uint64
	key := r.URL.Query().Get("key")
	rawHash := r.URL.Query().Get("hash")
	switch {
	case key != "":
		hash = ring.Sum64(key)
	case rawHash != "":
		parsed, err := strconv.ParseUint(rawHash, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, ErrorCodeInvalidArgument, "hash must be an unsigned decimal integer")
			return
		}
		hash = parsed
	default:
		writeError(w, r, http.StatusBadRequest, ErrorCodeInvalidArgument, "key or hash query parameter is required")
		return
	}

	node, err := h.dir.FindProvider(service, hash)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordRouteLookup("no_servers")
		}
		writeDomainError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRouteLookup("hit")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": service,
		"key":     key,
		"hash":    strconv.FormatUint(hash, 10),
		"node":    string(node),
	})
}
