package balancer

import (
	"net/url"
	"sync"
	"testing"

	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/registry"
)

func newPool(t *testing.T, addrs ...string) (*registry.Registry, *registry.Pool) {
	t.Helper()
	reg := registry.NewRegistry(logging.NewLogger("test"))
	for _, a := range addrs {
		u, err := url.Parse("http://" + a)
		if err != nil {
			t.Fatalf("parse %s: %v", a, err)
		}
		reg.Register("test-pool", u, 1)
		reg.SetLiveness(a, registry.Healthy)
	}
	pool, ok := reg.Pool("test-pool")
	if !ok {
		t.Fatal("pool not created")
	}
	return reg, pool
}

// TestRoundRobinFullRotation verifies all N endpoints are visited before any repeats
func TestRoundRobinFullRotation(t *testing.T) {
	_, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80", "10.0.0.3:80")
	strategy := NewRoundRobin()

	seen := make(map[string]int)
	for i := 0; i < 3; i++ {
		e := strategy.Select(pool)
		if e == nil {
			t.Fatal("Select returned nil with healthy endpoints")
		}
		seen[e.Address()]++
	}
	for addr, count := range seen {
		if count != 1 {
			t.Errorf("Endpoint %s selected %d times within one rotation", addr, count)
		}
	}
	if len(seen) != 3 {
		t.Errorf("Expected 3 distinct endpoints in one rotation, got %d", len(seen))
	}
}

// TestRoundRobinAlternates verifies two healthy endpoints take turns
func TestRoundRobinAlternates(t *testing.T) {
	_, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80")
	strategy := NewRoundRobin()

	var prev string
	for i := 0; i < 10; i++ {
		e := strategy.Select(pool)
		if e == nil {
			t.Fatal("Select returned nil")
		}
		if i > 0 && e.Address() == prev {
			t.Errorf("Selection %d repeated %s instead of alternating", i, prev)
		}
		prev = e.Address()
	}
}

// TestRoundRobinSkipsUnhealthy verifies non-Healthy endpoints are never selected
func TestRoundRobinSkipsUnhealthy(t *testing.T) {
	reg, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80")
	reg.SetLiveness("10.0.0.2:80", registry.Unhealthy)

	strategy := NewRoundRobin()
	for i := 0; i < 5; i++ {
		e := strategy.Select(pool)
		if e == nil {
			t.Fatal("Select returned nil with one healthy endpoint")
		}
		if e.Address() != "10.0.0.1:80" {
			t.Errorf("Selected unhealthy endpoint %s", e.Address())
		}
	}
}

// TestRoundRobinUnavailable verifies nil is returned when the healthy set is empty
func TestRoundRobinUnavailable(t *testing.T) {
	reg, pool := newPool(t, "10.0.0.1:80")
	reg.SetLiveness("10.0.0.1:80", registry.Unhealthy)

	if e := NewRoundRobin().Select(pool); e != nil {
		t.Errorf("Expected nil for empty healthy set, got %s", e.Address())
	}
}

// TestRoundRobinRecovery verifies an endpoint becomes selectable again
func TestRoundRobinRecovery(t *testing.T) {
	reg, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80")
	strategy := NewRoundRobin()

	reg.SetLiveness("10.0.0.2:80", registry.Unhealthy)
	for i := 0; i < 4; i++ {
		if e := strategy.Select(pool); e.Address() != "10.0.0.1:80" {
			t.Fatalf("Expected only 10.0.0.1:80 while peer is down")
		}
	}

	reg.SetLiveness("10.0.0.2:80", registry.Healthy)
	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		seen[strategy.Select(pool).Address()] = true
	}
	if !seen["10.0.0.2:80"] {
		t.Error("Recovered endpoint was never selected")
	}
}

// TestLeastConnectionsPicksMinimum verifies the in-flight minimum wins
func TestLeastConnectionsPicksMinimum(t *testing.T) {
	reg, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80", "10.0.0.3:80")

	a, _ := reg.Lookup("10.0.0.1:80")
	b, _ := reg.Lookup("10.0.0.2:80")
	a.IncInFlight()
	a.IncInFlight()
	b.IncInFlight()

	strategy := NewLeastConnections()
	e := strategy.Select(pool)
	if e == nil || e.Address() != "10.0.0.3:80" {
		t.Errorf("Expected idle endpoint 10.0.0.3:80, got %v", e)
	}
}

// TestLeastConnectionsUnavailable verifies nil for an empty healthy set
func TestLeastConnectionsUnavailable(t *testing.T) {
	reg, pool := newPool(t, "10.0.0.1:80")
	reg.SetLiveness("10.0.0.1:80", registry.Unhealthy)

	if e := NewLeastConnections().Select(pool); e != nil {
		t.Errorf("Expected nil, got %s", e.Address())
	}
}

// TestWeightedRoundRobinDistribution verifies selections follow weights
func TestWeightedRoundRobinDistribution(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogger("test"))
	heavy, _ := url.Parse("http://10.0.0.1:80")
	light, _ := url.Parse("http://10.0.0.2:80")
	reg.Register("test-pool", heavy, 3)
	reg.Register("test-pool", light, 1)
	reg.SetLiveness("10.0.0.1:80", registry.Healthy)
	reg.SetLiveness("10.0.0.2:80", registry.Healthy)
	pool, _ := reg.Pool("test-pool")

	strategy := NewWeightedRoundRobin()
	counts := make(map[string]int)
	for i := 0; i < 40; i++ {
		e := strategy.Select(pool)
		if e == nil {
			t.Fatal("Select returned nil")
		}
		counts[e.Address()]++
	}

	if counts["10.0.0.1:80"] != 30 || counts["10.0.0.2:80"] != 10 {
		t.Errorf("Expected 30/10 split for weights 3/1, got %v", counts)
	}
}

// TestWeightedRoundRobinDropsRemoved verifies state for deregistered endpoints is pruned
func TestWeightedRoundRobinDropsRemoved(t *testing.T) {
	reg, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80")
	strategy := NewWeightedRoundRobin()

	strategy.Select(pool)
	reg.Deregister("10.0.0.2:80")

	for i := 0; i < 5; i++ {
		e := strategy.Select(pool)
		if e == nil || e.Address() != "10.0.0.1:80" {
			t.Errorf("Expected remaining endpoint only, got %v", e)
		}
	}
}

// TestStrategyConcurrency verifies concurrent selections do not race
func TestStrategyConcurrency(t *testing.T) {
	_, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80", "10.0.0.3:80")

	for _, strategy := range []Strategy{NewRoundRobin(), NewWeightedRoundRobin(), NewLeastConnections()} {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(s Strategy) {
				defer wg.Done()
				for j := 0; j < 200; j++ {
					if e := s.Select(pool); e == nil {
						t.Error("Select returned nil under concurrency")
						return
					}
				}
			}(strategy)
		}
		wg.Wait()
	}
}

// TestForName verifies strategy lookup by config name
func TestForName(t *testing.T) {
	names := []string{"round-robin", "weighted-round-robin", "least-connections"}
	for _, n := range names {
		s := ForName(n)
		if s == nil || s.Name() != n {
			t.Errorf("ForName(%q) returned %v", n, s)
		}
	}
	if ForName("bogus") != nil {
		t.Error("Unknown strategy name should return nil")
	}
}

// TestWeightedRoundRobinConcurrentReweight verifies selection is safe while
// re-registration refreshes weights on the same endpoints
func TestWeightedRoundRobinConcurrentReweight(t *testing.T) {
	reg, pool := newPool(t, "10.0.0.1:80", "10.0.0.2:80")
	strategy := NewWeightedRoundRobin()

	u, err := url.Parse("http://10.0.0.1:80")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			reg.Register("test-pool", u, 1+i%99)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if e := strategy.Select(pool); e == nil {
				t.Error("Select returned nil with healthy endpoints")
				return
			}
		}
	}()
	wg.Wait()
}
