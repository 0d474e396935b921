package balancer

import (
	"sync"

	"github.com/hostgate/hostgate/internal/registry"
)

// weightedEndpoint tracks current weight for smooth weighted round robin
type weightedEndpoint struct {
	endpoint      *registry.Endpoint
	weight        int
	currentWeight int
}

// WeightedRoundRobin distributes requests using smooth weighted round robin
// (the nginx algorithm). Per-pool weight state is kept so pools rotate
// independently; entries for deregistered endpoints are dropped on the fly.
type WeightedRoundRobin struct {
	mux   sync.Mutex
	pools map[string]map[string]*weightedEndpoint
}

// NewWeightedRoundRobin creates a new weighted round-robin strategy
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{
		pools: make(map[string]map[string]*weightedEndpoint),
	}
}

// Select picks an endpoint using smooth weighted round-robin over the
// current healthy set.
func (wrr *WeightedRoundRobin) Select(pool *registry.Pool) *registry.Endpoint {
	snapshot := pool.HealthySnapshot()
	if len(snapshot) == 0 {
		return nil
	}

	wrr.mux.Lock()
	defer wrr.mux.Unlock()

	weights, ok := wrr.pools[pool.ID]
	if !ok {
		weights = make(map[string]*weightedEndpoint)
		wrr.pools[pool.ID] = weights
	}

	// Sync weight state with the snapshot
	current := make(map[string]bool, len(snapshot))
	for _, e := range snapshot {
		addr := e.Address()
		current[addr] = true
		if we, ok := weights[addr]; ok {
			we.endpoint = e
			we.weight = e.Weight()
		} else {
			weights[addr] = &weightedEndpoint{endpoint: e, weight: e.Weight()}
		}
	}
	for addr := range weights {
		if !current[addr] {
			delete(weights, addr)
		}
	}

	var best *weightedEndpoint
	total := 0
	for _, e := range snapshot {
		we := weights[e.Address()]
		if !we.endpoint.Selectable() {
			continue
		}
		we.currentWeight += we.weight
		total += we.weight
		if best == nil || we.currentWeight > best.currentWeight {
			best = we
		}
	}
	if best == nil {
		return nil
	}

	best.currentWeight -= total
	return best.endpoint
}

// Name returns the strategy name
func (wrr *WeightedRoundRobin) Name() string {
	return "weighted-round-robin"
}
