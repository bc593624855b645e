// Package directory is the authoritative in-memory index of cluster
// membership: which nodes exist, which services each node provides, and
// one consistent-hash ring per service kept in lockstep with the indexes.
package directory

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/model"
	"github.com/lowks/discovery/internal/ring"
)

// Directory owns three consistency-linked structures: the node index, the
// service index, and the per-service rings. Every mutation updates all
// three under one lock, so readers never observe a partial update. A node
// is known iff it has at least one service registered.
type Directory struct {
	mu              sync.RWMutex
	nodes           map[model.NodeID]map[string]struct{}
	services        map[string]map[model.NodeID]struct{}
	rings           map[string]*ring.Ring
	placementPoints int
	logger          *zap.Logger
}

// New creates an empty directory. placementPoints controls how many ring
// positions each node occupies per service.
func New(placementPoints int, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		nodes:           make(map[model.NodeID]map[string]struct{}),
		services:        make(map[string]map[model.NodeID]struct{}),
		rings:           make(map[string]*ring.Ring),
		placementPoints: placementPoints,
		logger:          logger,
	}
}

// Add registers node as a provider of service. The service's ring accepts
// the node first; if the ring rejects it, no index is touched. Adding a
// pair that is already registered is a no-op.
func (d *Directory) Add(node model.NodeID, service string) error {
	if err := model.ValidateNode(node); err != nil {
		return err
	}
	if err := model.ValidateService(service); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.services[service][node]; ok {
		return nil
	}

	r, ok := d.rings[service]
	if !ok {
		r = ring.New(d.placementPoints)
	}
	if err := r.Add(node); err != nil {
		return fmt.Errorf("add %s to %s: %w", node, service, err)
	}
	d.rings[service] = r

	if d.nodes[node] == nil {
		d.nodes[node] = make(map[string]struct{})
	}
	d.nodes[node][service] = struct{}{}

	if d.services[service] == nil {
		d.services[service] = make(map[model.NodeID]struct{})
	}
	d.services[service][node] = struct{}{}

	d.logger.Info("node registered",
		zap.String("node", string(node)),
		zap.String("service", service))
	return nil
}

// Drop removes node from every service it provides. A service left with
// zero providers loses its ring and its index entry entirely. Dropping an
// unknown node is a no-op.
func (d *Directory) Drop(node model.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropLocked(node)
}

func (d *Directory) dropLocked(node model.NodeID) {
	offered, ok := d.nodes[node]
	if !ok {
		return
	}

	for service := range offered {
		if r, ok := d.rings[service]; ok {
			r.Remove(node)
			if r.IsEmpty() {
				delete(d.rings, service)
			}
		}
		delete(d.services[service], node)
		if len(d.services[service]) == 0 {
			delete(d.services, service)
		}
	}
	delete(d.nodes, node)

	d.logger.Info("node dropped",
		zap.String("node", string(node)),
		zap.Int("services", len(offered)))
}

// FindProvider routes a hash to a live provider of service. A missing or
// empty ring is reported uniformly as ErrNoServers, whether or not the
// service was ever known.
func (d *Directory) FindProvider(service string, hash uint64) (model.NodeID, error) {
	if err := model.ValidateService(service); err != nil {
		return "", err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rings[service]
	if !ok {
		return "", model.ErrNoServers
	}
	node, err := r.Find(hash)
	if err != nil {
		return "", model.ErrNoServers
	}
	return node, nil
}

// HasNode reports whether node is currently known.
func (d *Directory) HasNode(node model.NodeID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.nodes[node]
	return ok
}

// Services returns the sorted service names node provides, or nil for an
// unknown node.
func (d *Directory) Services(node model.NodeID) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	offered, ok := d.nodes[node]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(offered))
	for service := range offered {
		out = append(out, service)
	}
	sort.Strings(out)
	return out
}

// ListNodes returns a snapshot of every known node and the services it
// provides. Service lists are sorted.
func (d *Directory) ListNodes() map[model.NodeID][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[model.NodeID][]string, len(d.nodes))
	for node, offered := range d.nodes {
		services := make([]string, 0, len(offered))
		for service := range offered {
			services = append(services, service)
		}
		sort.Strings(services)
		out[node] = services
	}
	return out
}

// ListServices returns a snapshot of every active service and its
// providers. Provider lists are sorted.
func (d *Directory) ListServices() map[string][]model.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string][]model.NodeID, len(d.services))
	for service, providers := range d.services {
		nodes := make([]model.NodeID, 0, len(providers))
		for node := range providers {
			nodes = append(nodes, node)
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
		out[service] = nodes
	}
	return out
}

// Stats returns the current number of known nodes and active services.
func (d *Directory) Stats() (nodes, services int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes), len(d.services)
}

// Clear removes every node and destroys every ring.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nodes = make(map[model.NodeID]map[string]struct{})
	d.services = make(map[string]map[model.NodeID]struct{})
	d.rings = make(map[string]*ring.Ring)
	d.logger.Info("directory cleared")
}
