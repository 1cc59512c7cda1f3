package engine

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"
)

var ErrRequestBudgetExceeded = errors.New("request budget exceeded")

// MetricsTransport records request count and cumulative duration.
type MetricsTransport struct {
	Base      http.RoundTripper
	requests  int64
	durationN int64
}

func (t *MetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := baseOrDefault(t.Base).RoundTrip(req)
	atomic.AddInt64(&t.requests, 1)
	atomic.AddInt64(&t.durationN, time.Since(start).Nanoseconds())
	return resp, err
}

func (t *MetricsTransport) Snapshot() (int64, time.Duration) {
	return atomic.LoadInt64(&t.requests), time.Duration(atomic.LoadInt64(&t.durationN))
}

// RequestBudgetTransport limits the requests a session starts. Redirect hops
// ride on the request that caused them and are not counted; the client's
// redirect policy bounds those. Max <= 0 disables the limit.
type RequestBudgetTransport struct {
	Base      http.RoundTripper
	Max       int64
	requested int64
}

func (t *RequestBudgetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Response != nil {
		return baseOrDefault(t.Base).RoundTrip(req)
	}
	next := atomic.AddInt64(&t.requested, 1)
	if t.Max > 0 && next > t.Max {
		return nil, fmt.Errorf("%w: %d of %d used, refusing %s", ErrRequestBudgetExceeded, next-1, t.Max, req.URL.Redacted())
	}
	return baseOrDefault(t.Base).RoundTrip(req)
}

// DomainBoundaryTransport blocks requests outside the allowed root domain so
// credentials attached to a request never follow a redirect off-site.
type DomainBoundaryTransport struct {
	Base              http.RoundTripper
	AllowedRootDomain string
}

func (t *DomainBoundaryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := strings.ToLower(req.URL.Hostname())
	if host == "" {
		return nil, fmt.Errorf("blocked request: empty host")
	}
	allowed := strings.ToLower(strings.TrimSpace(t.AllowedRootDomain))
	if allowed != "" {
		root, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			root = host
		}
		if root != allowed && host != allowed && !strings.HasSuffix(host, "."+allowed) {
			return nil, fmt.Errorf("blocked cross-domain request: %s (allowed root: %s)", host, allowed)
		}
	}
	return baseOrDefault(t.Base).RoundTrip(req)
}

// RootDomain returns the registrable domain of rawURL, or its bare host when
// the host has no public suffix (IP literals, localhost).
func RootDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}

func baseOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}
