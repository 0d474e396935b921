package registry

import (
	"net/url"
	"sort"
	"sync"

	"github.com/hostgate/hostgate/internal/logging"
)

// Registry holds the authoritative set of backend endpoints grouped by pool.
// It is the only mutable shared state in the proxy: the discovery adapter and
// health monitor write, request handlers read snapshots.
type Registry struct {
	mux    sync.RWMutex
	pools  map[string]*Pool
	byAddr map[string]*Endpoint

	onRegister   func(*Endpoint)
	onDeregister func(*Endpoint)

	logger *logging.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		pools:  make(map[string]*Pool),
		byAddr: make(map[string]*Endpoint),
		logger: logger,
	}
}

// SetHooks installs lifecycle callbacks invoked after a successful register and
// deregister. The health monitor uses these to start and cancel probe loops.
func (r *Registry) SetHooks(onRegister, onDeregister func(*Endpoint)) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.onRegister = onRegister
	r.onDeregister = onDeregister
}

// Register adds an endpoint to a pool. Idempotent: re-registering an address
// already in the pool only refreshes metadata and resets failure counters
// (a container restart on the same address should not inherit stale failures).
// An address already owned by a different pool is rejected: an endpoint belongs
// to exactly one pool for its lifetime.
func (r *Registry) Register(poolID string, u *url.URL, weight int) *Endpoint {
	r.mux.Lock()

	if existing, ok := r.byAddr[u.Host]; ok {
		if existing.PoolID != poolID {
			r.mux.Unlock()
			r.logger.Warn("register_rejected_pool_mismatch",
				"address", u.Host,
				"owned_by", existing.PoolID,
				"requested", poolID)
			return nil
		}
		existing.SetWeight(weight)
		existing.resetStats()
		r.mux.Unlock()
		r.logger.Info("endpoint_refreshed", "pool", poolID, "address", u.Host)
		return existing
	}

	pool, ok := r.pools[poolID]
	if !ok {
		pool = NewPool(poolID)
		r.pools[poolID] = pool
	}

	e := NewEndpoint(poolID, u)
	e.SetWeight(weight)
	pool.add(e)
	r.byAddr[u.Host] = e
	onRegister := r.onRegister
	r.mux.Unlock()

	r.logger.Info("endpoint_registered",
		"pool", poolID,
		"address", u.Host,
		"weight", e.Weight())

	if onRegister != nil {
		onRegister(e)
	}
	return e
}

// Deregister removes the endpoint with the given address from its pool.
// Unknown addresses are ignored (duplicate or out-of-order discovery events).
func (r *Registry) Deregister(address string) {
	r.mux.Lock()

	e, ok := r.byAddr[address]
	if !ok {
		r.mux.Unlock()
		return
	}
	delete(r.byAddr, address)
	if pool, ok := r.pools[e.PoolID]; ok {
		pool.remove(address)
	}
	onDeregister := r.onDeregister
	r.mux.Unlock()

	r.logger.Info("endpoint_deregistered", "pool", e.PoolID, "address", address)

	if onDeregister != nil {
		onDeregister(e)
	}
}

// SetLiveness updates the liveness state of a registered endpoint.
// Called only by the health monitor; a state write for an address that has
// been deregistered is silently ignored (the endpoint no longer exists).
func (r *Registry) SetLiveness(address string, state LivenessState) {
	r.mux.RLock()
	e, ok := r.byAddr[address]
	r.mux.RUnlock()

	if !ok {
		return
	}
	e.setState(state)
}

// Snapshot returns the current ordered list of Healthy endpoints for a pool.
// The returned slice is a point-in-time copy safe to iterate without locks.
// A pool with zero healthy endpoints (or an unknown pool) yields an empty
// snapshot; callers surface that as "no backend available".
func (r *Registry) Snapshot(poolID string) []*Endpoint {
	r.mux.RLock()
	pool, ok := r.pools[poolID]
	r.mux.RUnlock()

	if !ok {
		return nil
	}
	return pool.HealthySnapshot()
}

// Pool returns the pool with the given id, if present
func (r *Registry) Pool(poolID string) (*Pool, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	pool, ok := r.pools[poolID]
	return pool, ok
}

// Lookup finds a registered endpoint by address
func (r *Registry) Lookup(address string) (*Endpoint, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	e, ok := r.byAddr[address]
	return e, ok
}

// Pools returns all pools sorted by id, for metrics export and admin views
func (r *Registry) Pools() []*Pool {
	r.mux.RLock()
	defer r.mux.RUnlock()

	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools
}

// HealthyCount returns the number of selectable endpoints across all pools
func (r *Registry) HealthyCount() int {
	total := 0
	for _, p := range r.Pools() {
		total += len(p.HealthySnapshot())
	}
	return total
}
