package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGetForwardsHeaders(t *testing.T) {
	var gotCookie, gotEncoding string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("X-Custom", "hello")
		_, _ = io.WriteString(w, sampleJSON)
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{MaxRequests: 2, AllowedRootDomain: RootDomain(ts.URL)})
	sess := client.NewSession()

	resp, err := sess.Get(context.Background(), RequestDescriptor{
		URL: ts.URL,
		Headers: NewHeaderSet(map[string]string{
			"cookie":          "LEETCODE_SESSION=abc",
			"accept-encoding": "br",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, sampleJSON, string(resp.Body))
	assert.Equal(t, "hello", resp.Headers.Get("X-Custom"))
	assert.Equal(t, "LEETCODE_SESSION=abc", gotCookie)
	assert.Equal(t, "br", gotEncoding)
	assert.False(t, resp.FetchedAt.IsZero())

	n, d := sess.Stats()
	assert.Equal(t, int64(1), n)
	assert.Greater(t, d, time.Duration(0))
}

func TestSessionGetDoesNotInspectStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"detail":"forbidden"}`)
	}))
	defer ts.Close()

	resp, err := NewClient(ClientOptions{}).NewSession().Get(context.Background(), RequestDescriptor{URL: ts.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, resp.IsSuccess())
}

func TestSessionBudgetIsPerSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{}")
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{MaxRequests: 1})
	desc := RequestDescriptor{URL: ts.URL}

	sess := client.NewSession()
	_, err := sess.Get(context.Background(), desc)
	require.NoError(t, err)
	_, err = sess.Get(context.Background(), desc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestBudgetExceeded))

	_, err = client.NewSession().Get(context.Background(), desc)
	require.NoError(t, err)
}

func TestSessionBlocksCrossDomainRedirect(t *testing.T) {
	hit := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			hit = true
		}
		port := strings.TrimPrefix(r.Host, "127.0.0.1")
		http.Redirect(w, r, "http://localhost"+port+"/moved", http.StatusFound)
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{MaxRequests: 4, AllowedRootDomain: RootDomain(ts.URL)})
	_, err := client.NewSession().Get(context.Background(), RequestDescriptor{URL: ts.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked cross-domain request")
	assert.False(t, hit)
}

func TestSessionBodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer ts.Close()

	_, err := NewClient(ClientOptions{MaxBodyBytes: 16}).NewSession().Get(context.Background(), RequestDescriptor{URL: ts.URL})
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestSessionUnreachableHost(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	_, err := NewClient(ClientOptions{Timeout: 2 * time.Second}).NewSession().Get(context.Background(), RequestDescriptor{URL: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http do")
}

func TestRootDomain(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://leetcode.com/api/submissions/", "leetcode.com"},
		{"https://assets.leetcode.com/x", "leetcode.com"},
		{"http://127.0.0.1:8080/", "127.0.0.1"},
		{"http://localhost:8080/", "localhost"},
		{"::not a url", ""},
	}
	for _, tt := range tests {
		if got := RootDomain(tt.raw); got != tt.want {
			t.Fatalf("RootDomain(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestDomainBoundaryTransport(t *testing.T) {
	tr := &DomainBoundaryTransport{
		Base:              roundTripFunc(func(*http.Request) (*http.Response, error) { return &http.Response{StatusCode: 200}, nil }),
		AllowedRootDomain: "leetcode.com",
	}

	ok, _ := http.NewRequest(http.MethodGet, "https://www.leetcode.com/api", nil)
	_, err := tr.RoundTrip(ok)
	require.NoError(t, err)

	bad, _ := http.NewRequest(http.MethodGet, "https://evil.example/api", nil)
	_, err = tr.RoundTrip(bad)
	require.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSessionBudgetIgnoresRedirectHops(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			http.Redirect(w, r, "/b", http.StatusFound)
		case "/b":
			http.Redirect(w, r, "/c", http.StatusFound)
		default:
			_, _ = io.WriteString(w, "{}")
		}
	}))
	defer ts.Close()

	sess := NewClient(ClientOptions{MaxRequests: 2, AllowedRootDomain: RootDomain(ts.URL)}).NewSession()
	desc := RequestDescriptor{URL: ts.URL + "/a"}

	for i := 0; i < 2; i++ {
		resp, err := sess.Get(context.Background(), desc)
		require.NoError(t, err, "request %d", i+1)
		assert.Equal(t, "{}", string(resp.Body))
	}
	n, _ := sess.Stats()
	assert.Equal(t, int64(6), n)

	_, err := sess.Get(context.Background(), desc)
	require.ErrorIs(t, err, ErrRequestBudgetExceeded)
}

func TestSessionRedirectLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer ts.Close()

	_, err := NewClient(ClientOptions{MaxRedirects: 3}).NewSession().Get(context.Background(), RequestDescriptor{URL: ts.URL + "/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 3 redirects")
}

func TestSessionReportsDecodedContentEncoding(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := io.WriteString(zw, sampleJSON)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer ts.Close()

	sess := NewClient(ClientOptions{}).NewSession()

	// Explicit Accept-Encoding: decoded by ContentDecodingTransport.
	resp, err := sess.Get(context.Background(), RequestDescriptor{
		URL:     ts.URL,
		Headers: NewHeaderSet(map[string]string{"accept-encoding": "gzip, br"}),
	})
	require.NoError(t, err)
	assert.Equal(t, sampleJSON, string(resp.Body))
	assert.Equal(t, "gzip", resp.ContentEncoding)

	// No Accept-Encoding: net/http negotiates and decodes gzip itself.
	resp, err = sess.Get(context.Background(), RequestDescriptor{URL: ts.URL})
	require.NoError(t, err)
	assert.Equal(t, sampleJSON, string(resp.Body))
	assert.Equal(t, "gzip", resp.ContentEncoding)
}
