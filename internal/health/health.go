// Package health provides liveness and readiness handlers.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/directory"
	"github.com/lowks/discovery/internal/link"
)

// Checker serves the health endpoints.
type Checker struct {
	dir    *directory.Directory
	gossip *link.Gossip
	logger *zap.Logger
}

// Status is the health response body.
type Status struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewChecker creates a health checker. gossip may be nil when the gossip
// transport is disabled.
func NewChecker(dir *directory.Directory, gossip *link.Gossip, logger *zap.Logger) *Checker {
	return &Checker{dir: dir, gossip: gossip, logger: logger}
}

// LivenessHandler reports process liveness unconditionally.
func (c *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, Status{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler reports whether the service can route requests. The
// directory is in-memory and always available; the gossip transport is
// checked for cluster connectivity when enabled.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	nodes, services := c.dir.Stats()
	checks["directory"] = "healthy"

	ready := true
	if c.gossip != nil {
		if c.gossip.NumMembers() < 1 {
			checks["gossip"] = "unhealthy: no cluster members"
			ready = false
		} else {
			checks["gossip"] = "healthy"
		}
	} else {
		checks["gossip"] = "disabled"
	}

	status := Status{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	if ready {
		status.Status = "ready"
		writeStatus(w, http.StatusOK, status)
	} else {
		status.Status = "not_ready"
		writeStatus(w, http.StatusServiceUnavailable, status)
	}

	c.logger.Debug("readiness probe",
		zap.Bool("ready", ready),
		zap.Int("nodes", nodes),
		zap.Int("services", services))
}

func writeStatus(w http.ResponseWriter, code int, status Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
