// Package ring implements the consistent-hash ring used to route service
// requests to provider nodes. Each service owns one Ring; a node is placed
// on the ring at several positions so that a small cluster still covers
// hash space reasonably evenly.
package ring

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/lowks/discovery/internal/model"
)

// ErrEmptyRing is returned by Find when the ring has no placement points.
var ErrEmptyRing = errors.New("ring is empty")

// DefaultPlacementPoints is the number of positions a node occupies on a
// ring when no explicit count is configured. Distribution quality is
// approximate; tests must not assume exact hash-space coverage.
const DefaultPlacementPoints = 100

// Ring maps hash-space positions to provider nodes for a single service.
// It is not safe for concurrent use; the directory serializes access.
type Ring struct {
	points []uint64                  // sorted placement positions
	owners map[uint64]model.NodeID   // position -> owning node
	placed map[model.NodeID][]uint64 // node -> its positions
	ppn    int                       // placement points per node
}

// New creates an empty ring with the given number of placement points per
// node. Non-positive counts fall back to DefaultPlacementPoints.
func New(placementPoints int) *Ring {
	if placementPoints <= 0 {
		placementPoints = DefaultPlacementPoints
	}
	return &Ring{
		owners: make(map[uint64]model.NodeID),
		placed: make(map[model.NodeID][]uint64),
		ppn:    placementPoints,
	}
}

// Add places a node on the ring. Adding a node that is already placed is
// an error-free no-op. If any computed position collides with a point
// owned by another node the whole insert is rejected and the ring is left
// unchanged.
func (r *Ring) Add(node model.NodeID) error {
	if _, ok := r.placed[node]; ok {
		return nil
	}

	positions := make([]uint64, 0, r.ppn)
	for i := 0; i < r.ppn; i++ {
		pos := Sum64(fmt.Sprintf("%s-%d", node, i))
		if owner, taken := r.owners[pos]; taken && owner != node {
			return fmt.Errorf("%w: position %d already owned by %s", model.ErrRingRejected, pos, owner)
		}
		positions = append(positions, pos)
	}

	for _, pos := range positions {
		r.owners[pos] = node
		r.points = append(r.points, pos)
	}
	r.placed[node] = positions
	sort.Slice(r.points, func(i, j int) bool { return r.points[i] < r.points[j] })
	return nil
}

// Remove takes every placement point belonging to node off the ring.
// Removing an unknown node is a no-op.
func (r *Ring) Remove(node model.NodeID) {
	positions, ok := r.placed[node]
	if !ok {
		return
	}

	drop := make(map[uint64]bool, len(positions))
	for _, pos := range positions {
		drop[pos] = true
		delete(r.owners, pos)
	}

	kept := r.points[:0]
	for _, pos := range r.points {
		if !drop[pos] {
			kept = append(kept, pos)
		}
	}
	r.points = kept
	delete(r.placed, node)
}

// Find returns the node owning the nearest placement point at or after
// hash, wrapping around to the smallest position when hash exceeds every
// point on the ring.
func (r *Ring) Find(hash uint64) (model.NodeID, error) {
	if len(r.points) == 0 {
		return "", ErrEmptyRing
	}

	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i] >= hash
	})
	if idx == len(r.points) {
		idx = 0
	}
	return r.owners[r.points[idx]], nil
}

// IsEmpty reports whether the ring has no placement points left.
func (r *Ring) IsEmpty() bool {
	return len(r.points) == 0
}

// Len returns the number of physical nodes placed on the ring.
func (r *Ring) Len() int {
	return len(r.placed)
}

// Sum64 hashes a key into ring position space: SHA-256 truncated to the
// first eight bytes, big endian.
func Sum64(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}
