package registry

import (
	"sync"
	"sync/atomic"
)

// Pool is the ordered set of endpoints serving one virtual host.
// Insertion order is stable so round-robin stays fair across snapshots.
type Pool struct {
	ID string

	mux       sync.RWMutex
	endpoints []*Endpoint

	cursor uint64 // Rotation cursor for round-robin (atomic)
}

// NewPool creates an empty pool
func NewPool(id string) *Pool {
	return &Pool{
		ID:        id,
		endpoints: make([]*Endpoint, 0),
	}
}

// add appends an endpoint; callers go through Registry.Register
func (p *Pool) add(e *Endpoint) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.endpoints = append(p.endpoints, e)
}

// remove drops the endpoint with the given address, preserving order
func (p *Pool) remove(address string) *Endpoint {
	p.mux.Lock()
	defer p.mux.Unlock()

	for i, e := range p.endpoints {
		if e.Address() == address {
			p.endpoints = append(p.endpoints[:i], p.endpoints[i+1:]...)
			return e
		}
	}
	return nil
}

// lookup finds an endpoint by address
func (p *Pool) lookup(address string) *Endpoint {
	p.mux.RLock()
	defer p.mux.RUnlock()

	for _, e := range p.endpoints {
		if e.Address() == address {
			return e
		}
	}
	return nil
}

// Endpoints returns all endpoints in insertion order (copy of slice)
func (p *Pool) Endpoints() []*Endpoint {
	p.mux.RLock()
	defer p.mux.RUnlock()

	endpoints := make([]*Endpoint, len(p.endpoints))
	copy(endpoints, p.endpoints)
	return endpoints
}

// HealthySnapshot returns only selectable endpoints, in insertion order
func (p *Pool) HealthySnapshot() []*Endpoint {
	p.mux.RLock()
	defer p.mux.RUnlock()

	var healthy []*Endpoint
	for _, e := range p.endpoints {
		if e.Selectable() {
			healthy = append(healthy, e)
		}
	}
	return healthy
}

// Size returns the total number of endpoints
func (p *Pool) Size() int {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return len(p.endpoints)
}

// NextCursor advances the rotation cursor and returns its previous value
func (p *Pool) NextCursor() uint64 {
	return atomic.AddUint64(&p.cursor, 1) - 1
}
