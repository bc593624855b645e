// Package supervisor drives the per-node connection state machine: attempt
// a link, schedule a fixed-interval retry on failure, arm failure
// monitoring on success, and react to unreachability notifications by
// re-entering the retry cycle.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/directory"
	"github.com/lowks/discovery/internal/link"
	"github.com/lowks/discovery/internal/metrics"
	"github.com/lowks/discovery/internal/model"
)

// DefaultRetryInterval is the fixed backoff between link attempts when no
// interval is configured.
const DefaultRetryInterval = 5 * time.Second

// Supervisor owns the retry timer table. A node absent from the table is
// unconnected; present with a live timer, a retry is scheduled; present
// with a nil timer, the last attempt succeeded and monitoring is armed.
// All transitions are serialized under one lock.
type Supervisor struct {
	mu            sync.Mutex
	dir           *directory.Directory
	link          link.Link
	retryInterval time.Duration
	timers        map[model.NodeID]*time.Timer
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// New creates a supervisor wired to the given directory and link
// transport. metrics may be nil.
func New(dir *directory.Directory, l link.Link, retryInterval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Supervisor {
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		dir:           dir,
		link:          l,
		retryInterval: retryInterval,
		timers:        make(map[model.NodeID]*time.Timer),
		logger:        logger,
		metrics:       m,
	}
}

// Connect registers node as a provider of service and starts the link
// cycle. If the directory already knows the node this is a no-op.
// Link failures are not surfaced: registration succeeding is the only
// caller-visible success condition, and the retry cycle owns the rest.
func (s *Supervisor) Connect(node model.NodeID, service string) error {
	if err := model.ValidateNode(node); err != nil {
		return err
	}
	if err := model.ValidateService(service); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir.HasNode(node) {
		return nil
	}
	if err := s.dir.Add(node, service); err != nil {
		return err
	}
	s.updateGauges()

	s.attemptLocked(node)
	return nil
}

// Disconnect cancels any pending retry, disarms monitoring, releases the
// link and removes node from the directory. Idempotent.
func (s *Supervisor) Disconnect(node model.NodeID) error {
	if err := model.ValidateNode(node); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[node]; ok && t != nil {
		t.Stop()
	}
	delete(s.timers, node)

	s.link.Monitor(node, false)
	s.link.Disconnect(node)
	s.dir.Drop(node)
	s.updateGauges()

	s.logger.Info("node disconnected", zap.String("node", string(node)))
	return nil
}

// Run consumes unreachability notifications until ctx is cancelled or the
// link's event channel closes. Start it once, at wiring time.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.link.Events():
			if !ok {
				return
			}
			s.handleUnreachable(ev.Node)
		}
	}
}

// Close cancels every outstanding retry timer.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for node, t := range s.timers {
		if t != nil {
			t.Stop()
		}
		delete(s.timers, node)
	}
}

// handleUnreachable re-enters the retry cycle for a node the directory
// still wants. A notification racing an explicit disconnect finds the node
// gone and is ignored.
func (s *Supervisor) handleUnreachable(node model.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dir.HasNode(node) {
		s.logger.Debug("ignoring unreachability event for unknown node",
			zap.String("node", string(node)))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordUnreachable()
	}
	s.logger.Warn("node unreachable, restarting link cycle",
		zap.String("node", string(node)))

	s.attemptLocked(node)
}

// retry is the timer callback. The timer table and directory are
// re-checked before acting: a fire that was already dequeued when the node
// was disconnected must be a no-op.
func (s *Supervisor) retry(node model.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[node]
	if !ok || t == nil {
		return
	}
	if !s.dir.HasNode(node) {
		delete(s.timers, node)
		return
	}
	s.attemptLocked(node)
}

// attemptLocked performs one link attempt and applies the resulting state
// transition. Caller holds s.mu.
func (s *Supervisor) attemptLocked(node model.NodeID) {
	if t, ok := s.timers[node]; ok && t != nil {
		t.Stop()
	}

	outcome := s.link.Connect(node)
	if s.metrics != nil {
		s.metrics.RecordLinkAttempt(outcome.String())
	}

	switch outcome {
	case link.OutcomeSuccess:
		s.timers[node] = nil
		s.link.Monitor(node, true)
		s.logger.Info("node link established", zap.String("node", string(node)))
	default:
		s.scheduleLocked(node)
	}
}

// scheduleLocked arms the single retry timer for node. Caller holds s.mu.
func (s *Supervisor) scheduleLocked(node model.NodeID) {
	s.timers[node] = time.AfterFunc(s.retryInterval, func() {
		s.retry(node)
	})
	if s.metrics != nil {
		s.metrics.RecordRetryScheduled()
	}
	s.logger.Debug("link retry scheduled",
		zap.String("node", string(node)),
		zap.Duration("interval", s.retryInterval))
}

func (s *Supervisor) updateGauges() {
	if s.metrics == nil {
		return
	}
	nodes, services := s.dir.Stats()
	s.metrics.SetDirectorySize(nodes, services)
}
