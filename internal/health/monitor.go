package health

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hostgate/hostgate/internal/config"
	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/metrics"
	"github.com/hostgate/hostgate/internal/registry"
)

// Monitor runs one probe loop per registered endpoint. Loops start when the
// registry reports a registration and are cancelled on deregistration, so a
// removed endpoint is never probed again. All liveness writes for an endpoint
// flow through its own loop, which keeps transitions ordered.
type Monitor struct {
	reg       *registry.Registry
	cfg       config.HealthCheckConfig
	client    *http.Client
	collector *metrics.Collector
	logger    *logging.Logger

	ctx     context.Context
	mux     sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewMonitor creates a health monitor
func NewMonitor(reg *registry.Registry, cfg config.HealthCheckConfig,
	collector *metrics.Collector, logger *logging.Logger) *Monitor {
	return &Monitor{
		reg: reg,
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		collector: collector,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Start binds the monitor to its base context and hooks it into the registry.
// Must be called before any endpoint is registered.
func (m *Monitor) Start(ctx context.Context) {
	m.ctx = ctx
	m.reg.SetHooks(m.watch, m.unwatch)

	if !m.cfg.Enabled {
		m.logger.Info("health_monitor_disabled")
		return
	}
	m.logger.Info("health_monitor_started",
		"mode", m.cfg.Mode,
		"interval_seconds", m.cfg.Interval,
		"timeout_seconds", m.cfg.Timeout)
}

// watch starts a probe loop for a newly registered endpoint
func (m *Monitor) watch(e *registry.Endpoint) {
	if !m.cfg.Enabled {
		// Without probes an endpoint would stay Unknown forever and never
		// receive traffic; trust registration instead.
		m.reg.SetLiveness(e.Address(), registry.Healthy)
		return
	}

	loopCtx, cancel := context.WithCancel(m.ctx)

	m.mux.Lock()
	if old, ok := m.cancels[e.Address()]; ok {
		old()
	}
	m.cancels[e.Address()] = cancel
	m.mux.Unlock()

	go m.probeLoop(loopCtx, e)
}

// unwatch cancels the probe loop of a deregistered endpoint
func (m *Monitor) unwatch(e *registry.Endpoint) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if cancel, ok := m.cancels[e.Address()]; ok {
		cancel()
		delete(m.cancels, e.Address())
	}
}

// probeLoop probes one endpoint on a fixed interval until cancelled
func (m *Monitor) probeLoop(ctx context.Context, e *registry.Endpoint) {
	interval := time.Duration(m.cfg.Interval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	// Jitter the first probe so endpoints registered together don't probe
	// in lockstep.
	jitter := time.Duration(rand.Int63n(int64(interval)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.probe(e)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(e)
		}
	}
}

// probe issues a single liveness probe and applies the result.
// Recovery is per probe: a panic in one iteration must not end the loop,
// monitoring an endpoint only stops when it is deregistered.
func (m *Monitor) probe(e *registry.Endpoint) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("probe_panic", "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	err := m.check(e)
	duration := time.Since(start).Seconds()

	if m.collector != nil {
		m.collector.HealthCheckDuration.WithLabelValues(e.Address()).Observe(duration)
	}

	if err != nil {
		m.handleFailure(e, err)
		if m.collector != nil {
			m.collector.HealthCheckTotal.WithLabelValues(e.Address(), "failure").Inc()
		}
		return
	}

	m.handleSuccess(e)
	if m.collector != nil {
		m.collector.HealthCheckTotal.WithLabelValues(e.Address(), "success").Inc()
	}
}

// check performs the configured probe; a timeout counts as a failure
func (m *Monitor) check(e *registry.Endpoint) error {
	switch m.cfg.Mode {
	case "http":
		url := e.URL.String() + m.cfg.Path
		resp, err := m.client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < m.cfg.ExpectStatusMin || resp.StatusCode > m.cfg.ExpectStatusMax {
			return fmt.Errorf("status code %d outside %d-%d",
				resp.StatusCode, m.cfg.ExpectStatusMin, m.cfg.ExpectStatusMax)
		}
		return nil

	default: // tcp
		timeout := time.Duration(m.cfg.Timeout) * time.Second
		conn, err := net.DialTimeout("tcp", e.URL.Host, timeout)
		if err != nil {
			return err
		}
		conn.Close()
		return nil
	}
}

// handleSuccess debounces Unknown/Unhealthy -> Healthy
func (m *Monitor) handleSuccess(e *registry.Endpoint) {
	stats := e.RecordProbeSuccess()
	state := e.State()

	if state != registry.Healthy && stats.ConsecutiveSuccesses >= m.cfg.HealthyThreshold {
		m.logger.Info("liveness_transition",
			"endpoint", e.Address(),
			"pool", e.PoolID,
			"old_state", state,
			"new_state", registry.Healthy,
			"consecutive_successes", stats.ConsecutiveSuccesses)
		m.reg.SetLiveness(e.Address(), registry.Healthy)
	}
}

// handleFailure debounces Healthy -> Unhealthy and applies hard eviction
func (m *Monitor) handleFailure(e *registry.Endpoint, err error) {
	stats := e.RecordProbeFailure()
	state := e.State()

	m.logger.Warn("probe_failed",
		"endpoint", e.Address(),
		"pool", e.PoolID,
		"error", err.Error(),
		"consecutive_failures", stats.ConsecutiveFailures)

	if state != registry.Unhealthy && stats.ConsecutiveFailures >= m.cfg.UnhealthyThreshold {
		m.logger.Warn("liveness_transition",
			"endpoint", e.Address(),
			"pool", e.PoolID,
			"old_state", state,
			"new_state", registry.Unhealthy,
			"consecutive_failures", stats.ConsecutiveFailures)
		m.reg.SetLiveness(e.Address(), registry.Unhealthy)
	}

	if m.cfg.EvictAfter > 0 &&
		stats.ConsecutiveFailures >= m.cfg.EvictAfter &&
		e.Age() >= time.Duration(m.cfg.EvictGrace)*time.Second {
		m.logger.Warn("endpoint_evicted",
			"endpoint", e.Address(),
			"pool", e.PoolID,
			"consecutive_failures", stats.ConsecutiveFailures)
		m.reg.Deregister(e.Address())
	}
}
