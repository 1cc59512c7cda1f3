package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

const DefaultMaxRedirects = 10

// ClientOptions controls the shared transport and the guards applied to every
// session created from it.
type ClientOptions struct {
	// Timeout bounds a single request including reading the body. Zero means
	// no timeout, which is the net/http default.
	Timeout time.Duration
	// MaxRequests caps the requests a session starts. Redirect hops are
	// bounded separately by MaxRedirects.
	MaxRequests int64
	// MaxRedirects caps redirect hops per request. Zero means
	// DefaultMaxRedirects, the same limit net/http applies.
	MaxRedirects int
	// AllowedRootDomain restricts every request of a session to one
	// registrable domain. Empty disables the check.
	AllowedRootDomain string
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
	// TLSConfig overrides the default TLS 1.2+ client configuration.
	TLSConfig *tls.Config
}

// Client owns the pooled transport. Sessions created from it share
// connections but each gets its own request budget and metrics.
type Client struct {
	opts ClientOptions
	base http.RoundTripper
}

// Session is the per-run view of a Client.
type Session struct {
	http         *http.Client
	metrics      *MetricsTransport
	maxBodyBytes int64
}

func NewHTTPTransport(tlsConfig *tls.Config) *http.Transport {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       tlsConfig,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func NewClient(opts ClientOptions) *Client {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	return &Client{
		opts: opts,
		base: &ContentDecodingTransport{Base: NewHTTPTransport(opts.TLSConfig)},
	}
}

// NewSession wires the transport chain for one run:
// metrics -> request budget -> domain boundary -> content decoding -> net/http.
func (c *Client) NewSession() *Session {
	var rt http.RoundTripper = c.base
	if c.opts.AllowedRootDomain != "" {
		rt = &DomainBoundaryTransport{
			Base:              rt,
			AllowedRootDomain: c.opts.AllowedRootDomain,
		}
	}
	rt = &RequestBudgetTransport{
		Base: rt,
		Max:  c.opts.MaxRequests,
	}
	metrics := &MetricsTransport{Base: rt}
	maxRedirects := c.opts.MaxRedirects

	return &Session{
		http: &http.Client{
			Timeout:   c.opts.Timeout,
			Transport: metrics,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		metrics:      metrics,
		maxBodyBytes: c.opts.MaxBodyBytes,
	}
}

// Get performs one GET for desc and reads the whole (capped) body.
func (s *Session) Get(ctx context.Context, desc RequestDescriptor) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = desc.Headers.Header()

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := ReadBody(resp.Body, s.maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header,
		ContentEncoding: contentEncoding(resp),
		Body:            body,
		FetchedAt:       time.Now(),
	}, nil
}

// Stats reports the round trips made by this session and their total duration.
func (s *Session) Stats() (int64, time.Duration) {
	return s.metrics.Snapshot()
}

// contentEncoding is the coding the server declared, including codings the
// transport chain already removed from the body.
func contentEncoding(resp *http.Response) string {
	if ce := resp.Header.Get("Content-Encoding"); ce != "" {
		return ce
	}
	if ce := resp.Header.Get(DecodedContentEncodingHeader); ce != "" {
		return ce
	}
	if resp.Uncompressed {
		// net/http only decodes gzip it asked for itself.
		return "gzip"
	}
	return ""
}
