package proxy

import (
	"net/http"
)

// FailureKind classifies terminal request-path outcomes. Probe and discovery
// errors never surface here; only failures on the request path reach clients.
type FailureKind int

const (
	// RoutingNotFound means no rule matched the host/path
	RoutingNotFound FailureKind = iota

	// PoolUnavailable means the rule matched but the pool has no healthy endpoint
	PoolUnavailable

	// BackendConnectError means connecting to the selected endpoint failed,
	// including the one internal retry
	BackendConnectError

	// BackendTimeout means the overall request deadline was exceeded
	BackendTimeout

	// PartialResponse means the backend failed after response bytes were
	// already streaming to the client
	PartialResponse

	// RateLimited means a per-route rate limit rejected the request
	RateLimited
)

// String returns the failure name used in logs and metrics
func (k FailureKind) String() string {
	switch k {
	case RoutingNotFound:
		return "routing_not_found"
	case PoolUnavailable:
		return "pool_unavailable"
	case BackendConnectError:
		return "backend_connect_error"
	case BackendTimeout:
		return "backend_timeout"
	case PartialResponse:
		return "partial_response"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// StatusCode maps a failure to the client-facing status.
// PartialResponse has no status: headers already went out.
func (k FailureKind) StatusCode() int {
	switch k {
	case RoutingNotFound:
		return http.StatusNotFound
	case PoolUnavailable:
		return http.StatusServiceUnavailable
	case BackendConnectError:
		return http.StatusBadGateway
	case BackendTimeout:
		return http.StatusGatewayTimeout
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
