// Package link abstracts the node-to-node link primitive the supervisor
// drives: attempt a connection, release it, and subscribe to asynchronous
// unreachability notifications.
package link

import "github.com/lowks/discovery/internal/model"

// Outcome is the result of a single link attempt.
type Outcome int

const (
	// OutcomeSuccess means the link is established.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the attempt failed outright.
	OutcomeFailure
	// OutcomeIndeterminate means the peer could not be reached yet; the
	// attempt may succeed later.
	OutcomeIndeterminate
)

// String implements fmt.Stringer for metric labels and logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification that a monitored node became
// unreachable.
type Event struct {
	Node model.NodeID
}

// Link is the transport primitive supplied by the environment. Connect is
// expected to be bounded: it reports an Outcome promptly rather than
// blocking for a full network timeout.
type Link interface {
	// Connect attempts a link to node.
	Connect(node model.NodeID) Outcome

	// Disconnect releases any link to node. Idempotent.
	Disconnect(node model.NodeID)

	// Monitor arms or disarms unreachability notifications for node.
	Monitor(node model.NodeID, enabled bool)

	// Events delivers unreachability notifications for monitored nodes.
	Events() <-chan Event
}
