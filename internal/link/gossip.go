package link

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/model"
)

// GossipConfig holds the memberlist transport configuration.
type GossipConfig struct {
	BindAddr       string
	BindPort       int
	Seeds          []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// NodeMeta is the metadata this node gossips to its peers.
type NodeMeta struct {
	NodeID   string   `json:"node_id"`
	Services []string `json:"services,omitempty"`
}

// Gossip implements Link on top of hashicorp/memberlist. Connect joins the
// peer's gossip address; unreachability comes from the memberlist failure
// detector via the event delegate, filtered down to monitored nodes.
type Gossip struct {
	mu        sync.Mutex
	ml        *memberlist.Memberlist
	monitored map[model.NodeID]struct{}
	events    chan Event
	meta      NodeMeta
	logger    *zap.Logger
}

const eventBuffer = 64

// NewGossip creates the gossip transport and joins any configured seeds.
// Seed join failures are logged, not fatal: the supervisor's retry cycle
// reaches unreachable peers eventually.
func NewGossip(cfg *GossipConfig, nodeID string, logger *zap.Logger) (*Gossip, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gossip{
		monitored: make(map[model.NodeID]struct{}),
		events:    make(chan Event, eventBuffer),
		meta:      NodeMeta{NodeID: nodeID},
		logger:    logger,
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = nodeID
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	if cfg.BindPort > 0 {
		mlConfig.BindPort = cfg.BindPort
	}
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = g
	mlConfig.Events = g

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	g.ml = ml

	if len(cfg.Seeds) > 0 {
		if _, err := ml.Join(cfg.Seeds); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	return g, nil
}

// Connect attempts to join the peer's gossip address. The node identifier
// doubles as the address, so an unreachable peer reports indeterminate and
// the caller retries.
func (g *Gossip) Connect(node model.NodeID) Outcome {
	contacted, err := g.ml.Join([]string{string(node)})
	if err != nil || contacted == 0 {
		g.logger.Debug("link attempt did not reach peer",
			zap.String("node", string(node)),
			zap.Error(err))
		return OutcomeIndeterminate
	}
	return OutcomeSuccess
}

// Disconnect releases the link to node. Memberlist has no per-peer
// teardown; dropping the monitor subscription is sufficient, the failure
// detector ages the peer out on its own.
func (g *Gossip) Disconnect(node model.NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.monitored, node)
}

// Monitor arms or disarms unreachability notifications for node.
func (g *Gossip) Monitor(node model.NodeID, enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if enabled {
		g.monitored[node] = struct{}{}
	} else {
		delete(g.monitored, node)
	}
}

// Events delivers unreachability notifications for monitored nodes.
func (g *Gossip) Events() <-chan Event {
	return g.events
}

// SetServices updates the service list gossiped in this node's metadata.
func (g *Gossip) SetServices(services []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta.Services = services
}

// NumMembers returns the current gossip cluster size.
func (g *Gossip) NumMembers() int {
	return g.ml.NumMembers()
}

// Shutdown leaves the gossip cluster and stops the transport.
func (g *Gossip) Shutdown() error {
	if err := g.ml.Leave(time.Second); err != nil {
		g.logger.Warn("gossip leave failed", zap.Error(err))
	}
	return g.ml.Shutdown()
}

// NodeMeta implements memberlist.Delegate.
func (g *Gossip) NodeMeta(limit int) []byte {
	g.mu.Lock()
	meta := g.meta
	g.mu.Unlock()

	data, _ := json.Marshal(meta)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate.
func (g *Gossip) NotifyMsg(data []byte) {}

// GetBroadcasts implements memberlist.Delegate.
func (g *Gossip) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate.
func (g *Gossip) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate.
func (g *Gossip) MergeRemoteState(buf []byte, join bool) {}

// NotifyJoin implements memberlist.EventDelegate.
func (g *Gossip) NotifyJoin(node *memberlist.Node) {
	g.logger.Info("gossip peer joined",
		zap.String("node", node.Name),
		zap.String("addr", node.Addr.String()))
}

// NotifyLeave implements memberlist.EventDelegate. A monitored peer
// leaving (or being declared dead by the failure detector) becomes an
// unreachability event for the supervisor.
func (g *Gossip) NotifyLeave(node *memberlist.Node) {
	id := g.peerID(node)

	g.mu.Lock()
	_, watched := g.monitored[id]
	g.mu.Unlock()

	if !watched {
		return
	}

	select {
	case g.events <- Event{Node: id}:
	default:
		g.logger.Warn("event buffer full, dropping unreachability event",
			zap.String("node", string(id)))
	}
}

// NotifyUpdate implements memberlist.EventDelegate.
func (g *Gossip) NotifyUpdate(node *memberlist.Node) {
	g.logger.Debug("gossip peer updated", zap.String("node", node.Name))
}

// peerID maps a memberlist node back to the identifier the supervisor
// connected it by: the gossip address it was joined at.
func (g *Gossip) peerID(node *memberlist.Node) model.NodeID {
	return model.NodeID(fmt.Sprintf("%s:%d", node.Addr.String(), node.Port))
}
