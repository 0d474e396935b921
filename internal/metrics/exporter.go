package metrics

import (
	"context"
	"time"

	"github.com/hostgate/hostgate/internal/registry"
	"github.com/hostgate/hostgate/internal/retry"
)

// Exporter periodically updates gauge metrics from registry state
type Exporter struct {
	collector   *Collector
	reg         *registry.Registry
	retryBudget *retry.Budget
}

// NewExporter creates a new metrics exporter
func NewExporter(collector *Collector, reg *registry.Registry, retryBudget *retry.Budget) *Exporter {
	return &Exporter{
		collector:   collector,
		reg:         reg,
		retryBudget: retryBudget,
	}
}

// Start begins the metrics export loop
func (e *Exporter) Start(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.export()
		}
	}
}

// export updates all gauge metrics
func (e *Exporter) export() {
	for _, pool := range e.reg.Pools() {
		healthy := 0
		for _, ep := range pool.Endpoints() {
			state := ep.State()
			if state == registry.Healthy {
				healthy++
			}

			e.collector.BackendLiveness.
				WithLabelValues(pool.ID, ep.Address()).
				Set(float64(state))
			e.collector.BackendInFlight.
				WithLabelValues(pool.ID, ep.Address()).
				Set(float64(ep.InFlight()))
		}
		e.collector.PoolHealthyEndpoints.WithLabelValues(pool.ID).Set(float64(healthy))
	}

	if e.retryBudget != nil {
		e.collector.RetryBudgetTokens.Set(float64(e.retryBudget.Available()))
	}
}
