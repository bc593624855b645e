// Package model defines the identifier types and sentinel errors shared
// across the discovery core.
package model

import (
	"errors"
	"fmt"
)

// NodeID names a cluster peer. It is opaque to the core: the only
// assumptions made are equality and hashability. In practice it is a
// network-addressable name such as "10.0.0.7:7946".
type NodeID string

// Sentinel errors surfaced by the core. HTTP handlers map these to
// response codes; everything else is wrapped with %w.
var (
	// ErrNoServers means a routing lookup found no provider for the
	// requested service, whether the service was never registered or its
	// last provider left.
	ErrNoServers = errors.New("no servers available for service")

	// ErrRingRejected means a ring refused to accept a node's placement
	// points. State is left unchanged when this is returned.
	ErrRingRejected = errors.New("ring rejected node placement")

	// ErrInvalidArgument means a malformed node identifier or service
	// name was rejected at the boundary, before any state mutation.
	ErrInvalidArgument = errors.New("invalid argument")
)

const maxServiceNameLen = 128

// ValidateNode reports whether a node identifier is acceptable.
func ValidateNode(node NodeID) error {
	if node == "" {
		return fmt.Errorf("%w: empty node identifier", ErrInvalidArgument)
	}
	return nil
}

// ValidateService reports whether a service name is acceptable. Service
// names are restricted to a DNS-label-like alphabet so they can appear in
// URLs and metric labels unescaped.
func ValidateService(service string) error {
	if service == "" {
		return fmt.Errorf("%w: empty service name", ErrInvalidArgument)
	}
	if len(service) > maxServiceNameLen {
		return fmt.Errorf("%w: service name exceeds %d characters", ErrInvalidArgument, maxServiceNameLen)
	}
	for i := 0; i < len(service); i++ {
		c := service[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return fmt.Errorf("%w: service name contains %q", ErrInvalidArgument, c)
		}
	}
	return nil
}
