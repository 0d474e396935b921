package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostgate/hostgate/internal/balancer"
	"github.com/hostgate/hostgate/internal/health"
	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/metrics"
	"github.com/hostgate/hostgate/internal/ratelimit"
	"github.com/hostgate/hostgate/internal/registry"
	"github.com/hostgate/hostgate/internal/retry"
	"github.com/hostgate/hostgate/internal/routing"
)

// Engine is the request-path core: it resolves the virtual host to a pool,
// picks a healthy endpoint, and relays the request. Per request it walks
// Received -> Resolved -> Selected -> Forwarding -> Completed/Failed.
type Engine struct {
	mu    sync.RWMutex
	table *routing.Table

	reg         *registry.Registry
	strategy    balancer.Strategy
	passive     *health.PassiveTracker
	retryPolicy *retry.Policy
	limiter     *ratelimit.Limiter
	transport   http.RoundTripper
	timeout     time.Duration
	collector   *metrics.Collector
	logger      *logging.Logger
}

// NewEngine creates the proxy engine
func NewEngine(table *routing.Table, reg *registry.Registry, strategy balancer.Strategy,
	passive *health.PassiveTracker, retryPolicy *retry.Policy, limiter *ratelimit.Limiter,
	timeout time.Duration, collector *metrics.Collector, logger *logging.Logger) *Engine {
	return &Engine{
		table:       table,
		reg:         reg,
		strategy:    strategy,
		passive:     passive,
		retryPolicy: retryPolicy,
		limiter:     limiter,
		transport:   defaultTransport(),
		timeout:     timeout,
		collector:   collector,
		logger:      logger,
	}
}

// defaultTransport keeps a connection pool to backends
func defaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}
}

// UpdateTable swaps in a new routing table on hot reload
func (e *Engine) UpdateTable(table *routing.Table) {
	e.mu.Lock()
	e.table = table
	e.mu.Unlock()
}

// routes returns the current routing table
func (e *Engine) routes() *routing.Table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table
}

var _ http.Handler = (*Engine)(nil)

// ServeHTTP implements http.Handler
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	start := time.Now()

	// Resolved
	rule, ok := e.routes().ResolveRule(r.Host, r.URL.Path)
	if !ok {
		e.fail(w, requestID, RoutingNotFound, "host", r.Host, "path", r.URL.Path)
		return
	}

	if rule.RatePerSec > 0 && e.limiter != nil {
		if !e.limiter.Allow(rule.Host+rule.PathPrefix, rule.RatePerSec, rule.RateBurst) {
			if e.collector != nil {
				e.collector.RateLimitedTotal.WithLabelValues(rule.PoolID).Inc()
			}
			e.fail(w, requestID, RateLimited, "pool", rule.PoolID)
			return
		}
	}

	pool, ok := e.reg.Pool(rule.PoolID)
	if !ok {
		// Route exists but no backend ever registered; same client outcome
		// as a pool whose endpoints are all down
		e.fail(w, requestID, PoolUnavailable, "pool", rule.PoolID)
		return
	}

	if e.retryPolicy != nil {
		e.retryPolicy.TrackRequest()
	}

	// Buffer the body so the single connect-failure retry can resend it.
	// Bodies over the cap stream through unbuffered and forfeit the retry;
	// holding arbitrarily large uploads in memory is worse than losing one
	// retry opportunity.
	canRetry := e.retryPolicy != nil
	var bodyBytes []byte
	if canRetry && r.Body != nil && r.Body != http.NoBody {
		limit := e.retryPolicy.MaxBodyBuffer()
		buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			e.logger.Error("body_buffering_failed", "request_id", requestID, "error", err.Error())
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		if int64(len(buf)) > limit {
			r.Body = replayBody{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
			canRetry = false
		} else {
			r.Body.Close()
			bodyBytes = buf
		}
	}

	ctx := r.Context()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var lastAddr string
	for attempt := 1; attempt <= 2; attempt++ {
		// Selected
		endpoint := e.selectEndpoint(pool, lastAddr)
		if endpoint == nil {
			if attempt == 1 {
				e.fail(w, requestID, PoolUnavailable, "pool", rule.PoolID)
			} else {
				e.fail(w, requestID, BackendConnectError, "pool", rule.PoolID, "backend", lastAddr)
			}
			return
		}
		lastAddr = endpoint.Address()

		outcome := e.forward(ctx, w, r, endpoint, rule.PoolID, requestID, bodyBytes, start, attempt, canRetry)
		switch outcome {
		case outcomeDone:
			return

		case outcomeTimeout:
			e.fail(w, requestID, BackendTimeout, "pool", rule.PoolID, "backend", lastAddr)
			return

		case outcomeCanceled:
			e.logger.Warn("client_canceled", "request_id", requestID)
			return

		case outcomePartial:
			// Bytes already reached the client; nothing safe to resend
			if e.collector != nil {
				e.collector.ProxyErrors.WithLabelValues(PartialResponse.String()).Inc()
			}
			e.logger.Error("response_truncated",
				"request_id", requestID,
				"pool", rule.PoolID,
				"backend", lastAddr)
			return

		case outcomeConnectFailed:
			if attempt == 1 && e.retryPolicy != nil {
				if e.collector != nil {
					e.collector.RetriesTotal.WithLabelValues("connect_error").Inc()
				}
				e.logger.Warn("retrying_on_other_backend",
					"request_id", requestID,
					"pool", rule.PoolID,
					"failed_backend", lastAddr)
				continue
			}
			e.fail(w, requestID, BackendConnectError, "pool", rule.PoolID, "backend", lastAddr)
			return
		}
	}
}

// forwardOutcome is the per-attempt result of forward
type forwardOutcome int

const (
	outcomeDone forwardOutcome = iota
	outcomeConnectFailed
	outcomeTimeout
	outcomeCanceled
	outcomePartial
)

// selectEndpoint picks a healthy endpoint, avoiding the excluded address when
// an alternative exists (the retry must hit a different backend).
func (e *Engine) selectEndpoint(pool *registry.Pool, exclude string) *registry.Endpoint {
	for i := 0; i <= pool.Size(); i++ {
		endpoint := e.strategy.Select(pool)
		if endpoint == nil {
			return nil
		}
		if exclude == "" || endpoint.Address() != exclude {
			return endpoint
		}
	}
	return nil
}

// forward relays one attempt to the chosen endpoint
func (e *Engine) forward(ctx context.Context, w http.ResponseWriter, r *http.Request,
	endpoint *registry.Endpoint, poolID, requestID string, bodyBytes []byte, start time.Time,
	attempt int, canRetry bool) forwardOutcome {

	u := new(url.URL)
	*u = *endpoint.URL
	u.Path = r.URL.Path
	u.RawPath = r.URL.RawPath
	u.RawQuery = r.URL.RawQuery

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	} else if r.Body != nil {
		body = r.Body
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		e.logger.Error("outbound_request_failed", "request_id", requestID, "error", err.Error())
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return outcomeDone
	}

	outReq.Header = cloneHeader(r.Header)
	dropHopByHop(outReq.Header)
	setForwardingHeaders(outReq.Header, r)
	outReq.Header.Set(headerRequestID, requestID)
	// Backends serve the virtual host, so the original Host is preserved
	outReq.Host = r.Host

	endpoint.IncInFlight()
	if e.collector != nil {
		e.collector.ActiveRequests.WithLabelValues(poolID, endpoint.Address()).Inc()
	}
	defer func() {
		endpoint.DecInFlight()
		if e.collector != nil {
			e.collector.ActiveRequests.WithLabelValues(poolID, endpoint.Address()).Dec()
		}
	}()

	// Forwarding
	resp, err := e.transport.RoundTrip(outReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				e.passive.RecordFailure(endpoint, ctxErr)
				return outcomeTimeout
			}
			return outcomeCanceled
		}

		e.passive.RecordFailure(endpoint, err)
		if canRetry && retry.IsConnectError(err) && e.mayRetry(r, err, attempt) {
			return outcomeConnectFailed
		}
		e.logger.Warn("backend_request_failed",
			"request_id", requestID,
			"backend", endpoint.Address(),
			"error", err.Error())
		e.fail(w, requestID, BackendConnectError, "pool", poolID, "backend", endpoint.Address())
		return outcomeDone
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		e.passive.RecordFailure(endpoint, errStatus(resp.StatusCode))
	} else {
		e.passive.RecordSuccess(endpoint)
	}

	dropHopByHop(resp.Header)
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	written, copyErr := io.Copy(w, resp.Body)

	duration := time.Since(start).Seconds()
	if e.collector != nil {
		e.collector.RequestsTotal.WithLabelValues(
			poolID, endpoint.Address(), r.Method, strconv.Itoa(resp.StatusCode)).Inc()
		e.collector.RequestDuration.WithLabelValues(poolID, r.Method).Observe(duration)
	}

	if copyErr != nil {
		e.passive.RecordFailure(endpoint, copyErr)
		return outcomePartial
	}

	// Completed
	e.logger.Info("request_completed",
		"request_id", requestID,
		"pool", poolID,
		"backend", endpoint.Address(),
		"status", resp.StatusCode,
		"bytes", written,
		"duration_ms", duration*1000)
	return outcomeDone
}

// mayRetry consults the retry policy for the single internal retry
func (e *Engine) mayRetry(r *http.Request, err error, attempt int) bool {
	if e.retryPolicy == nil {
		return false
	}
	return e.retryPolicy.ShouldRetry(r, err, attempt)
}

// fail terminates a request with a taxonomy outcome
func (e *Engine) fail(w http.ResponseWriter, requestID string, kind FailureKind, keysAndValues ...interface{}) {
	if e.collector != nil {
		e.collector.ProxyErrors.WithLabelValues(kind.String()).Inc()
	}

	kv := append([]interface{}{"request_id", requestID, "kind", kind.String()}, keysAndValues...)
	e.logger.Warn("request_failed", kv...)

	http.Error(w, http.StatusText(kind.StatusCode()), kind.StatusCode())
}

// replayBody stitches an already-read prefix back onto the live request body
// so an over-cap upload still reaches the backend intact
type replayBody struct {
	io.Reader
	io.Closer
}

// errStatus is a lightweight error for 5xx passive feedback
type errStatus int

func (s errStatus) Error() string {
	return "status " + strconv.Itoa(int(s))
}
