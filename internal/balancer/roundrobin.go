package balancer

import (
	"github.com/hostgate/hostgate/internal/registry"
)

// RoundRobin distributes requests evenly across a pool's healthy set.
// The rotation cursor lives in the pool itself, so fairness survives
// strategy reconstruction and concurrent pools don't share a counter.
type RoundRobin struct{}

// NewRoundRobin creates a new round-robin strategy
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Select picks the next endpoint in rotation order. Endpoints whose state
// changed since the snapshot was taken are skipped by re-checking liveness
// immediately before returning.
func (rr *RoundRobin) Select(pool *registry.Pool) *registry.Endpoint {
	snapshot := pool.HealthySnapshot()
	n := len(snapshot)
	if n == 0 {
		return nil
	}

	start := pool.NextCursor()
	for i := 0; i < n; i++ {
		e := snapshot[(start+uint64(i))%uint64(n)]
		if e.Selectable() {
			return e
		}
	}
	return nil
}

// Name returns the strategy name
func (rr *RoundRobin) Name() string {
	return "round-robin"
}
