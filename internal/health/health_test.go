package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/hostgate/hostgate/internal/config"
	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/registry"
)

func testConfig() config.HealthCheckConfig {
	return config.HealthCheckConfig{
		Enabled:            true,
		Mode:               "tcp",
		Interval:           1,
		Timeout:            1,
		HealthyThreshold:   2,
		UnhealthyThreshold: 3,
		Path:               "/health",
		ExpectStatusMin:    200,
		ExpectStatusMax:    299,
	}
}

func register(t *testing.T, reg *registry.Registry, pool, raw string) *registry.Endpoint {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	e := reg.Register(pool, u, 1)
	if e == nil {
		t.Fatalf("register %s failed", raw)
	}
	return e
}

// TestDebounceUnknownToHealthy verifies K consecutive successes promote an endpoint
func TestDebounceUnknownToHealthy(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, testConfig(), nil, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://10.0.0.1:8081")

	m.handleSuccess(e)
	if e.State() != registry.Unknown {
		t.Errorf("One success should not promote, state=%v", e.State())
	}

	m.handleSuccess(e)
	if e.State() != registry.Healthy {
		t.Errorf("K=2 successes should promote to Healthy, state=%v", e.State())
	}
}

// TestDebounceHealthyToUnhealthy verifies M consecutive failures demote an endpoint
func TestDebounceHealthyToUnhealthy(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, testConfig(), nil, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://10.0.0.1:8081")
	reg.SetLiveness(e.Address(), registry.Healthy)

	probeErr := fmt.Errorf("connection refused")
	m.handleFailure(e, probeErr)
	m.handleFailure(e, probeErr)
	if e.State() != registry.Healthy {
		t.Errorf("Two failures should not demote with M=3, state=%v", e.State())
	}

	m.handleFailure(e, probeErr)
	if e.State() != registry.Unhealthy {
		t.Errorf("M=3 failures should demote to Unhealthy, state=%v", e.State())
	}
}

// TestFlappingResetsStreak verifies an interleaved success restarts the failure count
func TestFlappingResetsStreak(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, testConfig(), nil, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://10.0.0.1:8081")
	reg.SetLiveness(e.Address(), registry.Healthy)

	probeErr := fmt.Errorf("connection refused")
	m.handleFailure(e, probeErr)
	m.handleFailure(e, probeErr)
	m.handleSuccess(e)
	m.handleFailure(e, probeErr)
	m.handleFailure(e, probeErr)

	if e.State() != registry.Healthy {
		t.Errorf("Interleaved success should debounce flapping, state=%v", e.State())
	}
}

// TestRecoveryAfterUnhealthy verifies the full demote-then-recover cycle
func TestRecoveryAfterUnhealthy(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, testConfig(), nil, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://10.0.0.1:8081")
	reg.SetLiveness(e.Address(), registry.Healthy)

	probeErr := fmt.Errorf("connection refused")
	for i := 0; i < 3; i++ {
		m.handleFailure(e, probeErr)
	}
	if e.State() != registry.Unhealthy {
		t.Fatalf("Expected Unhealthy, got %v", e.State())
	}

	m.handleSuccess(e)
	if e.State() != registry.Unhealthy {
		t.Error("One success should not recover with K=2")
	}
	m.handleSuccess(e)
	if e.State() != registry.Healthy {
		t.Errorf("K=2 successes should recover, state=%v", e.State())
	}
}

// TestTCPProbe verifies the tcp probe against a live listener
func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, testConfig(), nil, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://"+ln.Addr().String())

	if err := m.check(e); err != nil {
		t.Errorf("TCP probe against live listener failed: %v", err)
	}

	ln.Close()
	if err := m.check(e); err == nil {
		t.Error("TCP probe against closed listener should fail")
	}
}

// TestHTTPProbe verifies the http probe honors the expected status range
func TestHTTPProbe(t *testing.T) {
	var status int32 = http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Probe hit %s, expected /health", r.URL.Path)
		}
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Mode = "http"
	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, cfg, nil, logging.NewLogger("test"))
	e := register(t, reg, "module1", srv.URL)

	if err := m.check(e); err != nil {
		t.Errorf("HTTP probe with 200 failed: %v", err)
	}

	atomic.StoreInt32(&status, http.StatusInternalServerError)
	if err := m.check(e); err == nil {
		t.Error("HTTP probe with 500 should fail")
	}
}

// TestEviction verifies hard eviction removes the endpoint past the grace period
func TestEviction(t *testing.T) {
	cfg := testConfig()
	cfg.EvictAfter = 5
	cfg.EvictGrace = 0

	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, cfg, nil, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://10.0.0.1:8081")

	probeErr := fmt.Errorf("connection refused")
	for i := 0; i < 5; i++ {
		m.handleFailure(e, probeErr)
	}

	if _, ok := reg.Lookup(e.Address()); ok {
		t.Error("Endpoint should be evicted after EvictAfter consecutive failures")
	}
}

// TestUnwatchCancelsLoop verifies deregistration cancels the probe lifecycle
func TestUnwatchCancelsLoop(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, testConfig(), nil, logging.NewLogger("test"))
	m.Start(context.Background())

	e := register(t, reg, "module1", "http://10.0.0.1:8081")

	m.mux.Lock()
	_, watching := m.cancels[e.Address()]
	m.mux.Unlock()
	if !watching {
		t.Fatal("Registration should start a probe lifecycle")
	}

	reg.Deregister(e.Address())

	m.mux.Lock()
	_, watching = m.cancels[e.Address()]
	m.mux.Unlock()
	if watching {
		t.Error("Deregistration should cancel the probe lifecycle")
	}
}

// TestMonitorDisabledTrustsRegistration verifies endpoints go Healthy without probes
func TestMonitorDisabledTrustsRegistration(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, cfg, nil, logging.NewLogger("test"))
	m.Start(context.Background())

	e := register(t, reg, "module1", "http://10.0.0.1:8081")
	if e.State() != registry.Healthy {
		t.Errorf("With probes disabled registration implies Healthy, got %v", e.State())
	}
}

// TestPassiveTrackerDemotes verifies request failures demote a healthy endpoint
func TestPassiveTrackerDemotes(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	pt := NewPassiveTracker(reg, 3, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://10.0.0.1:8081")
	reg.SetLiveness(e.Address(), registry.Healthy)

	reqErr := fmt.Errorf("status 502")
	pt.RecordFailure(e, reqErr)
	pt.RecordFailure(e, reqErr)
	if e.State() != registry.Healthy {
		t.Error("Below threshold, endpoint should stay Healthy")
	}
	pt.RecordFailure(e, reqErr)
	if e.State() != registry.Unhealthy {
		t.Errorf("At threshold, endpoint should be Unhealthy, got %v", e.State())
	}
}

// TestPassiveTrackerSuccessResets verifies a success clears the failure streak
func TestPassiveTrackerSuccessResets(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	pt := NewPassiveTracker(reg, 3, logging.NewLogger("test"))
	e := register(t, reg, "module1", "http://10.0.0.1:8081")
	reg.SetLiveness(e.Address(), registry.Healthy)

	reqErr := fmt.Errorf("status 502")
	pt.RecordFailure(e, reqErr)
	pt.RecordFailure(e, reqErr)
	pt.RecordSuccess(e)
	pt.RecordFailure(e, reqErr)
	pt.RecordFailure(e, reqErr)

	if e.State() != registry.Healthy {
		t.Errorf("Success should reset the streak, got %v", e.State())
	}
}

// TestProbeRecoversFromPanic verifies a panic while probing one iteration does
// not stop later probes of the same endpoint
func TestProbeRecoversFromPanic(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	m := NewMonitor(reg, testConfig(), nil, logging.NewLogger("test"))

	// A nil URL makes the probe panic on dereference
	broken := &registry.Endpoint{}

	m.probe(broken)
	m.probe(broken)

	// Probing still works for well-formed endpoints afterwards
	e := register(t, reg, "module1", "http://127.0.0.1:1")
	m.probe(e)
	if e.Stats().ConsecutiveFailures == 0 {
		t.Error("Expected the follow-up probe to run and record its result")
	}
}
