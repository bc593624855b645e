package link

import "github.com/lowks/discovery/internal/model"

// Loopback is an in-process Link for single-node deployments and local
// development: every attempt succeeds and no peer ever becomes
// unreachable.
type Loopback struct {
	events chan Event
}

// NewLoopback creates a loopback link.
func NewLoopback() *Loopback {
	return &Loopback{events: make(chan Event)}
}

// Connect always succeeds.
func (l *Loopback) Connect(node model.NodeID) Outcome { return OutcomeSuccess }

// Disconnect is a no-op.
func (l *Loopback) Disconnect(node model.NodeID) {}

// Monitor is a no-op.
func (l *Loopback) Monitor(node model.NodeID, enabled bool) {}

// Events returns a channel that never delivers.
func (l *Loopback) Events() <-chan Event { return l.events }
