package discovery

import (
	"context"

	"github.com/hostgate/hostgate/internal/config"
	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/registry"
)

// Adapter feeds backend endpoints into the registry. Both variants emit the
// same registry mutations, so the rest of the proxy never knows whether a
// backend came from a config file or a live container fleet.
type Adapter interface {
	// Run blocks until ctx is cancelled or the source is exhausted
	Run(ctx context.Context) error
}

// Static seeds the registry once from the declarative pool list and never
// mutates afterward.
type Static struct {
	reg    *registry.Registry
	pools  []config.ParsedPool
	logger *logging.Logger
}

// NewStatic creates the static discovery variant
func NewStatic(reg *registry.Registry, pools []config.ParsedPool, logger *logging.Logger) *Static {
	return &Static{reg: reg, pools: pools, logger: logger}
}

// Run registers every configured endpoint and returns
func (s *Static) Run(ctx context.Context) error {
	for _, pool := range s.pools {
		for _, ep := range pool.Endpoints {
			s.reg.Register(pool.Name, ep.URL, ep.Weight)
		}
		s.logger.Info("static_pool_seeded",
			"pool", pool.Name,
			"endpoints", len(pool.Endpoints))
	}
	return nil
}
