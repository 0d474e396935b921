package retry

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// DefaultMaxBodyBuffer caps how much of a request body is buffered to keep it
// replayable for the retry. Larger bodies stream through unbuffered and give
// up retry eligibility.
const DefaultMaxBodyBuffer = 1 << 20

// Policy gates the single internal retry the proxy is allowed after a backend
// connect failure. The retry is bounded to one attempt to cap added latency,
// and an adaptive budget stops retries from amplifying load during an outage.
type Policy struct {
	budget        *Budget
	maxBodyBuffer int64
}

// NewPolicy creates a retry policy with the given budget percentage and body
// buffer cap in bytes; a non-positive cap selects DefaultMaxBodyBuffer.
func NewPolicy(budgetPercent int, maxBodyBuffer int64) *Policy {
	if maxBodyBuffer <= 0 {
		maxBodyBuffer = DefaultMaxBodyBuffer
	}
	return &Policy{budget: NewBudget(budgetPercent), maxBodyBuffer: maxBodyBuffer}
}

// MaxBodyBuffer returns the body buffering cap in bytes
func (p *Policy) MaxBodyBuffer() int64 {
	return p.maxBodyBuffer
}

// ShouldRetry reports whether a failed attempt may be retried on a different
// backend. Only the first attempt is retryable, only for connect-class
// failures, and only while the budget has tokens.
func (p *Policy) ShouldRetry(req *http.Request, err error, attempt int) bool {
	if req.Context().Err() != nil {
		return false
	}
	if attempt > 1 {
		return false
	}
	if !IsConnectError(err) {
		return false
	}
	return p.budget.TryConsume()
}

// TrackRequest feeds the adaptive budget with the actual request rate
func (p *Policy) TrackRequest() {
	p.budget.TrackRequest()
}

// GetBudget returns the budget for metrics tracking
func (p *Policy) GetBudget() *Budget {
	return p.budget
}

// IsConnectError reports whether err is a connection-establishment failure,
// meaning no request bytes reached the backend and a retry is safe for any
// method. Timeouts are excluded: a request may have had side effects.
func IsConnectError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"no route to host",
		"no such host",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
