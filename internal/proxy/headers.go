package proxy

import (
	"net"
	"net/http"
	"net/textproto"
	"strings"
)

// Forwarding header names are an external contract: backends behind the proxy
// depend on them staying stable.
const (
	headerForwardedFor   = "X-Forwarded-For"
	headerForwardedProto = "X-Forwarded-Proto"
	headerForwardedHost  = "X-Forwarded-Host"
	headerRequestID      = "X-Request-ID"
)

var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"TE":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// cloneHeader deep-copies a header map
func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vv := range h {
		cc := make([]string, len(vv))
		copy(cc, vv)
		out[k] = cc
	}
	return out
}

// copyHeader replaces dst entries with src entries
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// dropHopByHop removes connection-scoped headers before relaying
func dropHopByHop(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, k := range strings.Split(f, ",") {
			if k = textproto.TrimString(k); k != "" {
				h.Del(k)
			}
		}
	}
	for k := range hopByHop {
		if k == "TE" && h.Get("TE") == "trailers" {
			continue
		}
		h.Del(k)
	}
}

// setForwardingHeaders stamps the proxy's forwarding headers. They are always
// overwritten, never appended to or passed through: whatever the client sent
// in them is untrusted and must not reach the backend.
func setForwardingHeaders(h http.Header, r *http.Request) {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && ip != "" {
		h.Set(headerForwardedFor, ip)
	} else {
		h.Del(headerForwardedFor)
	}

	if r.TLS != nil {
		h.Set(headerForwardedProto, "https")
	} else {
		h.Set(headerForwardedProto, "http")
	}

	h.Set(headerForwardedHost, r.Host)
}
