package balancer

import (
	"github.com/hostgate/hostgate/internal/registry"
)

// Strategy defines the interface for load balancing algorithms
type Strategy interface {
	// Select chooses a healthy endpoint from the given pool.
	// Returns nil when the pool has no selectable endpoint (Unavailable).
	Select(pool *registry.Pool) *registry.Endpoint

	// Name returns the strategy name
	Name() string
}

// ForName returns the strategy registered under the given config name, or nil
// for an unknown name; the caller decides the fallback.
func ForName(name string) Strategy {
	switch name {
	case "round-robin":
		return NewRoundRobin()
	case "weighted-round-robin":
		return NewWeightedRoundRobin()
	case "least-connections":
		return NewLeastConnections()
	default:
		return nil
	}
}
