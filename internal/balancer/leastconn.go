package balancer

import (
	"github.com/hostgate/hostgate/internal/registry"
)

// LeastConnections selects the endpoint with the fewest in-flight requests.
// Ties are broken by rotation order so idle pools still spread evenly.
type LeastConnections struct{}

// NewLeastConnections creates a new least-connections strategy
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

// Select picks the healthy endpoint with minimum in-flight requests
func (lc *LeastConnections) Select(pool *registry.Pool) *registry.Endpoint {
	snapshot := pool.HealthySnapshot()
	n := len(snapshot)
	if n == 0 {
		return nil
	}

	start := pool.NextCursor()
	var selected *registry.Endpoint
	var minInFlight int64

	for i := 0; i < n; i++ {
		e := snapshot[(start+uint64(i))%uint64(n)]
		if !e.Selectable() {
			continue
		}
		inFlight := e.InFlight()
		if selected == nil || inFlight < minInFlight {
			selected = e
			minInFlight = inFlight
		}
	}
	return selected
}

// Name returns the strategy name
func (lc *LeastConnections) Name() string {
	return "least-connections"
}
