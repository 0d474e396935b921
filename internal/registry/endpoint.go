package registry

import (
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// LivenessState represents the liveness of a backend endpoint
type LivenessState int

const (
	// Unknown means the endpoint has not been probed yet
	Unknown LivenessState = iota

	// Healthy means the endpoint is eligible for selection
	Healthy

	// Unhealthy means the endpoint has failed consecutive probes
	Unhealthy

	// Draining means the endpoint is being removed (finishing existing requests)
	Draining
)

// String returns human-readable state name
func (s LivenessState) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case Healthy:
		return "HEALTHY"
	case Unhealthy:
		return "UNHEALTHY"
	case Draining:
		return "DRAINING"
	default:
		return "INVALID"
	}
}

// ProbeStats tracks per-endpoint probe history
type ProbeStats struct {
	ConsecutiveSuccesses int       // Consecutive successful probes
	ConsecutiveFailures  int       // Consecutive failed probes
	LastProbe            time.Time // Time of last probe
	LastSuccess          time.Time // Time of last successful probe
	LastFailure          time.Time // Time of last failed probe
}

// Endpoint represents one backend process serving a single virtual-host pool.
// An endpoint belongs to exactly one pool for its lifetime.
type Endpoint struct {
	URL    *url.URL // Backend URL
	PoolID string   // Owning pool, fixed at registration

	weight     int           // Weight for weighted strategies (1-100)
	state      LivenessState // Liveness, written only through Registry.SetLiveness
	stats      ProbeStats    // Probe history
	registered time.Time     // Registration time, used for eviction grace
	mux        sync.RWMutex  // Protects 'weight', 'state' and 'stats'

	inFlight int64 // Active request count (atomic)
}

// NewEndpoint creates an endpoint owned by the given pool.
// Liveness starts at Unknown until the first probe reports in.
func NewEndpoint(poolID string, u *url.URL) *Endpoint {
	return &Endpoint{
		URL:        u,
		PoolID:     poolID,
		weight:     1,
		state:      Unknown,
		registered: time.Now(),
	}
}

// Address returns the host:port identity of the endpoint
func (e *Endpoint) Address() string {
	return e.URL.Host
}

// State returns the current liveness state (thread-safe)
func (e *Endpoint) State() LivenessState {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.state
}

// setState is package-private: liveness flows through the Registry only
func (e *Endpoint) setState(state LivenessState) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.state = state
}

// Selectable reports whether the endpoint may receive traffic
func (e *Endpoint) Selectable() bool {
	return e.State() == Healthy
}

// RecordProbeSuccess records a successful probe and returns the updated stats
func (e *Endpoint) RecordProbeSuccess() ProbeStats {
	e.mux.Lock()
	defer e.mux.Unlock()

	now := time.Now()
	e.stats.ConsecutiveSuccesses++
	e.stats.ConsecutiveFailures = 0
	e.stats.LastProbe = now
	e.stats.LastSuccess = now
	return e.stats
}

// RecordProbeFailure records a failed probe and returns the updated stats
func (e *Endpoint) RecordProbeFailure() ProbeStats {
	e.mux.Lock()
	defer e.mux.Unlock()

	now := time.Now()
	e.stats.ConsecutiveFailures++
	e.stats.ConsecutiveSuccesses = 0
	e.stats.LastProbe = now
	e.stats.LastFailure = now
	return e.stats
}

// Stats returns a copy of probe stats (thread-safe)
func (e *Endpoint) Stats() ProbeStats {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.stats
}

// resetStats clears the failure history; used on idempotent re-registration
func (e *Endpoint) resetStats() {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.stats.ConsecutiveFailures = 0
	e.stats.ConsecutiveSuccesses = 0
}

// Age returns time since registration
func (e *Endpoint) Age() time.Duration {
	return time.Since(e.registered)
}

// IncInFlight atomically increments the active request count
func (e *Endpoint) IncInFlight() {
	atomic.AddInt64(&e.inFlight, 1)
}

// DecInFlight atomically decrements the active request count
func (e *Endpoint) DecInFlight() {
	atomic.AddInt64(&e.inFlight, -1)
}

// InFlight atomically reads the active request count
func (e *Endpoint) InFlight() int64 {
	return atomic.LoadInt64(&e.inFlight)
}

// Weight returns the balancing weight (thread-safe)
func (e *Endpoint) Weight() int {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.weight
}

// SetWeight sets the endpoint weight, clamped to [1,100].
// Re-registration refreshes weights under live traffic, so writes take the
// same lock the strategies read through.
func (e *Endpoint) SetWeight(weight int) {
	if weight < 1 {
		weight = 1
	}
	if weight > 100 {
		weight = 100
	}
	e.mux.Lock()
	e.weight = weight
	e.mux.Unlock()
}
