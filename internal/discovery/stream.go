package discovery

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/registry"
)

// EventKind distinguishes lifecycle event types
type EventKind int

const (
	// BackendUp signals a backend appeared
	BackendUp EventKind = iota

	// BackendDown signals a backend disappeared
	BackendDown
)

// Event is one backend lifecycle notification from an external source.
// PoolID carries the virtual-host tag; it may be empty on BackendDown since
// deregistration is keyed by address alone.
type Event struct {
	Kind     EventKind
	PoolID   string
	Address  string // host:port
	Metadata map[string]string
}

// Source produces a stream of lifecycle events. Implementations wrap whatever
// the runtime emits (container events, an orchestrator API, a test channel).
type Source interface {
	// Events returns the event channel; the source closes it when ctx is
	// cancelled or the underlying stream ends.
	Events(ctx context.Context) (<-chan Event, error)
}

// Stream is the dynamic discovery variant: it subscribes to a Source and
// converts events into registry mutations. Duplicate and out-of-order events
// are harmless because Register and Deregister are idempotent.
type Stream struct {
	reg    *registry.Registry
	source Source
	logger *logging.Logger
}

// NewStream creates the dynamic discovery variant
func NewStream(reg *registry.Registry, source Source, logger *logging.Logger) *Stream {
	return &Stream{reg: reg, source: source, logger: logger}
}

// Run consumes events until the stream ends or ctx is cancelled
func (s *Stream) Run(ctx context.Context) error {
	events, err := s.source.Events(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("event_discovery_started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.logger.Info("event_stream_closed")
				return nil
			}
			s.apply(ev)
		}
	}
}

// apply converts one event into a registry mutation
func (s *Stream) apply(ev Event) {
	switch ev.Kind {
	case BackendUp:
		if ev.PoolID == "" {
			// A backend without a virtual-host tag cannot be routed to
			s.logger.Warn("backend_without_host_tag_ignored", "address", ev.Address)
			return
		}
		u, err := parseAddress(ev.Address)
		if err != nil {
			s.logger.Warn("backend_with_bad_address_ignored",
				"address", ev.Address,
				"error", err.Error())
			return
		}
		s.reg.Register(ev.PoolID, u, weightFrom(ev.Metadata))

	case BackendDown:
		s.reg.Deregister(ev.Address)
	}
}

// parseAddress turns a host:port into a backend URL
func parseAddress(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// weightFrom reads an optional weight tag out of event metadata
func weightFrom(metadata map[string]string) int {
	if metadata == nil {
		return 1
	}
	if raw, ok := metadata["weight"]; ok {
		if w, err := strconv.Atoi(raw); err == nil && w > 0 {
			return w
		}
	}
	return 1
}
