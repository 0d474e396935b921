package health

import (
	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/registry"
)

// PassiveTracker feeds real request outcomes into the same counters the
// active probes use, so a backend that fails live traffic is demoted before
// the next probe tick. Recovery stays probe-driven: only the monitor promotes
// an endpoint back to Healthy.
type PassiveTracker struct {
	reg              *registry.Registry
	failureThreshold int
	logger           *logging.Logger
}

// NewPassiveTracker creates a new passive health tracker
func NewPassiveTracker(reg *registry.Registry, threshold int, logger *logging.Logger) *PassiveTracker {
	return &PassiveTracker{
		reg:              reg,
		failureThreshold: threshold,
		logger:           logger,
	}
}

// RecordSuccess records a successful request
func (pt *PassiveTracker) RecordSuccess(e *registry.Endpoint) {
	// Reset the failure streak; a full success streak is still required
	// by the monitor before an Unhealthy endpoint is promoted.
	if e.Stats().ConsecutiveFailures > 0 {
		e.RecordProbeSuccess()
	}
}

// RecordFailure records a failed request and demotes the endpoint once the
// failure threshold is reached
func (pt *PassiveTracker) RecordFailure(e *registry.Endpoint, err error) {
	stats := e.RecordProbeFailure()

	pt.logger.Warn("request_failure_recorded",
		"endpoint", e.Address(),
		"pool", e.PoolID,
		"error", err.Error(),
		"consecutive_failures", stats.ConsecutiveFailures)

	if e.State() == registry.Healthy && stats.ConsecutiveFailures >= pt.failureThreshold {
		pt.logger.Warn("liveness_transition",
			"endpoint", e.Address(),
			"pool", e.PoolID,
			"old_state", registry.Healthy,
			"new_state", registry.Unhealthy,
			"reason", "request_failures")
		pt.reg.SetLiveness(e.Address(), registry.Unhealthy)
	}
}
