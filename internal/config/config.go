package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config represents the proxy configuration
type Config struct {
	Listen         string            `yaml:"listen"`          // HTTP listener address
	AdminListen    string            `yaml:"admin_listen"`    // Metrics/health listener address
	TLS            TLSConfig         `yaml:"tls"`             // Optional TLS listener
	Strategy       string            `yaml:"strategy"`        // Load balancing strategy
	RequestTimeout int               `yaml:"request_timeout"` // Overall request deadline in seconds
	Routes         []RouteConfig     `yaml:"routes"`          // Virtual host routing rules
	Pools          []PoolConfig      `yaml:"pools"`           // Static endpoint pools
	HealthCheck    HealthCheckConfig `yaml:"health_check"`    // Probe configuration
	Discovery      DiscoveryConfig   `yaml:"discovery"`       // Backend discovery mode
	Retry          RetryConfig       `yaml:"retry"`           // Connect-failure retry
}

// TLSConfig defines the optional HTTPS listener with per-host certificates
type TLSConfig struct {
	Listen       string              `yaml:"listen"`       // HTTPS listener address; empty disables TLS
	Certificates []CertificateConfig `yaml:"certificates"` // Certificate material keyed by host
}

// CertificateConfig maps externally provisioned cert/key material to hosts
type CertificateConfig struct {
	Hosts    []string `yaml:"hosts"`     // SNI names served by this certificate
	CertFile string   `yaml:"cert_file"` // PEM certificate chain
	KeyFile  string   `yaml:"key_file"`  // PEM private key
	Default  bool     `yaml:"default"`   // Serve for unmatched SNI names
}

// RouteConfig maps a virtual host (and optional path prefix) to a pool
type RouteConfig struct {
	Host       string           `yaml:"host"`                  // Virtual host, exact match
	PathPrefix string           `yaml:"path_prefix,omitempty"` // Optional sub-routing prefix
	Pool       string           `yaml:"pool"`                  // Target pool id
	RateLimit  *RateLimitConfig `yaml:"rate_limit,omitempty"`  // Optional per-route limit
}

// RateLimitConfig defines a per-route token bucket
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// PoolConfig declares a static pool of endpoints
type PoolConfig struct {
	Name      string           `yaml:"name"`      // Pool id referenced by routes
	Endpoints []EndpointConfig `yaml:"endpoints"` // Static members
}

// EndpointConfig represents a single backend endpoint
type EndpointConfig struct {
	URL    string `yaml:"url"`              // Backend URL
	Weight int    `yaml:"weight,omitempty"` // Optional weight
}

// HealthCheckConfig defines probe parameters
type HealthCheckConfig struct {
	Enabled            bool   `yaml:"enabled"`             // Enable probes
	Mode               string `yaml:"mode"`                // "tcp" or "http"
	Interval           int    `yaml:"interval"`            // Seconds between probes
	Timeout            int    `yaml:"timeout"`             // Probe timeout in seconds
	HealthyThreshold   int    `yaml:"healthy_threshold"`   // Successes needed to mark healthy
	UnhealthyThreshold int    `yaml:"unhealthy_threshold"` // Failures needed to mark unhealthy
	Path               string `yaml:"path"`                // HTTP probe path
	ExpectStatusMin    int    `yaml:"expect_status_min"`   // Lowest accepted HTTP status
	ExpectStatusMax    int    `yaml:"expect_status_max"`   // Highest accepted HTTP status
	EvictAfter         int    `yaml:"evict_after"`         // Consecutive failures before hard eviction; 0 disables
	EvictGrace         int    `yaml:"evict_grace"`         // Minimum endpoint age in seconds before eviction
}

// DiscoveryConfig selects how backends are discovered
type DiscoveryConfig struct {
	Mode       string `yaml:"mode"`        // "static" or "events"
	EventsFile string `yaml:"events_file"` // Lifecycle event stream source; "-" for stdin
}

// RetryConfig controls the single internal retry on backend connect failure
type RetryConfig struct {
	Enabled            bool  `yaml:"enabled"`
	BudgetPercent      int   `yaml:"budget_percent"`        // Percentage of traffic allowed to be retries
	MaxBodyBufferBytes int64 `yaml:"max_body_buffer_bytes"` // Largest body kept replayable for the retry
}

// ParsedEndpoint represents an endpoint with parsed URL
type ParsedEndpoint struct {
	URL    *url.URL
	Weight int
}

// ParsedPool represents a pool with parsed endpoints
type ParsedPool struct {
	Name      string
	Endpoints []ParsedEndpoint
}

// ParsePools converts PoolConfig entries to parsed URLs
func (c *Config) ParsePools() ([]ParsedPool, error) {
	var pools []ParsedPool
	for _, pc := range c.Pools {
		if pc.Name == "" {
			return nil, fmt.Errorf("pool without a name")
		}
		pp := ParsedPool{Name: pc.Name}
		for _, ec := range pc.Endpoints {
			raw := ec.URL
			if !strings.Contains(raw, "://") {
				raw = "http://" + raw
			}
			u, err := url.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("pool %s: bad endpoint url %q: %w", pc.Name, ec.URL, err)
			}
			if u.Host == "" {
				return nil, fmt.Errorf("pool %s: endpoint url %q has no host", pc.Name, ec.URL)
			}
			weight := ec.Weight
			if weight == 0 {
				weight = 1
			}
			pp.Endpoints = append(pp.Endpoints, ParsedEndpoint{URL: u, Weight: weight})
		}
		pools = append(pools, pp)
	}
	return pools, nil
}

// Validate checks cross-references between routes and pools.
// Routes pointing at pools with no static members are allowed: dynamic
// discovery may fill them later, and until then the pool serves 503.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, rc := range c.Routes {
		if rc.Host == "" {
			return fmt.Errorf("route without a host")
		}
		if rc.Pool == "" {
			return fmt.Errorf("route for host %s without a pool", rc.Host)
		}
		key := strings.ToLower(rc.Host) + "|" + rc.PathPrefix
		if seen[key] {
			return fmt.Errorf("duplicate route for host %s prefix %q", rc.Host, rc.PathPrefix)
		}
		seen[key] = true
	}
	return nil
}
