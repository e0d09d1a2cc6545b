// Package clientip resolves the caller address used to attribute abuse.
//
// Proxy headers are only meaningful behind a reverse proxy that overwrites
// them. Deployments without one should construct the resolver with
// TrustProxyHeaders disabled so the socket peer address is used instead.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"gatekeeper/internal/models"
)

// Proxy headers in priority order.
const (
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderRealIP         = "X-Real-IP"
	HeaderCFConnectingIP = "CF-Connecting-IP"
)

type Resolver struct {
	trustProxyHeaders bool
}

func NewResolver(cfg models.ClientIPConfig) *Resolver {
	return &Resolver{trustProxyHeaders: cfg.TrustProxyHeaders}
}

// Resolve returns the caller IP or models.UnknownIP.
func (res *Resolver) Resolve(r *http.Request) string {
	if res.trustProxyHeaders {
		return FromHeaders(r.Header)
	}
	return fromRemoteAddr(r.RemoteAddr)
}

// FromHeaders picks the first valid address from, in order, the first entry of
// X-Forwarded-For, X-Real-IP and CF-Connecting-IP.
func FromHeaders(h http.Header) string {
	if xff := h.Get(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parse(first); ok {
			return ip
		}
	}

	for _, name := range []string{HeaderRealIP, HeaderCFConnectingIP} {
		if ip, ok := parse(h.Get(name)); ok {
			return ip
		}
	}

	return models.UnknownIP
}

func fromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if ip, ok := parse(host); ok {
		return ip
	}
	return models.UnknownIP
}

// parse validates an IPv4 or IPv6 literal and returns its canonical form, so
// "::FFFF:10.0.0.1" and "10.0.0.1" share one budget.
func parse(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}

// Canonical normalizes an address supplied by an administrator so it matches
// the form Resolve produces.
func Canonical(raw string) (string, bool) {
	return parse(raw)
}
