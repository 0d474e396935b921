package routing

import (
	"net"
	"sort"
	"strings"
)

// Rule maps a match key (virtual host, optional path prefix) to a pool id.
type Rule struct {
	Host       string  // Virtual host, exact match, case-insensitive
	PathPrefix string  // Normalized path prefix; "/" matches everything under the host
	PoolID     string  // Target pool
	RatePerSec float64 // Optional per-route rate limit; 0 disables
	RateBurst  int
}

// Table resolves a request's virtual host and path to a pool id.
// It is immutable once built; hot reload builds a fresh table and swaps it in.
type Table struct {
	byHost map[string][]Rule // rules per host, longest prefix first, insertion order for ties
}

// New builds a routing table. Within a host, rules are ordered by descending
// prefix length; equal-length prefixes keep their declaration order, so the
// earliest rule wins ties deterministically.
func New(rules []Rule) *Table {
	t := &Table{byHost: make(map[string][]Rule)}

	for _, r := range rules {
		r.Host = strings.ToLower(strings.TrimSpace(r.Host))
		if r.Host == "" {
			continue
		}
		r.PathPrefix = normalizePrefix(r.PathPrefix)
		t.byHost[r.Host] = append(t.byHost[r.Host], r)
	}

	for h := range t.byHost {
		rs := t.byHost[h]
		sort.SliceStable(rs, func(i, j int) bool {
			return len(rs[i].PathPrefix) > len(rs[j].PathPrefix)
		})
	}

	return t
}

// Resolve maps a Host header and request path to a pool id.
// The boolean is false when no rule matches (RoutingNotFound).
func (t *Table) Resolve(host, path string) (string, bool) {
	if r, ok := t.ResolveRule(host, path); ok {
		return r.PoolID, true
	}
	return "", false
}

// ResolveRule is Resolve but returns the full matched rule, so the proxy can
// apply per-route settings such as rate limits.
func (t *Table) ResolveRule(host, path string) (Rule, bool) {
	host = strings.ToLower(host)
	// Host headers may carry a port; matching is on the name only
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	rules, ok := t.byHost[host]
	if !ok {
		return Rule{}, false
	}

	if path == "" {
		path = "/"
	}
	for _, r := range rules {
		if prefixMatches(path, r.PathPrefix) {
			return r, true
		}
	}
	return Rule{}, false
}

// Size returns the number of rules in the table
func (t *Table) Size() int {
	n := 0
	for _, rs := range t.byHost {
		n += len(rs)
	}
	return n
}

// normalizePrefix ensures a leading "/" and strips a trailing one (except root)
func normalizePrefix(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// prefixMatches reports whether path falls under prefix on a segment boundary,
// so "/api" matches "/api" and "/api/v1" but not "/apiary".
func prefixMatches(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
