package engine

import (
	"net/http"
	"sort"
	"strings"
	"time"
)

// HeaderSet is an immutable header mapping. Derive modified copies with
// With and Without; the receiver is never changed.
type HeaderSet struct {
	h http.Header
}

func NewHeaderSet(m map[string]string) HeaderSet {
	h := make(http.Header, len(m))
	for k, v := range m {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		h.Set(k, v)
	}
	return HeaderSet{h: h}
}

func (s HeaderSet) Get(name string) string {
	return s.h.Get(name)
}

func (s HeaderSet) Has(name string) bool {
	_, ok := s.h[http.CanonicalHeaderKey(name)]
	return ok
}

func (s HeaderSet) Len() int {
	return len(s.h)
}

// Names returns canonical header names in sorted order.
func (s HeaderSet) Names() []string {
	names := make([]string, 0, len(s.h))
	for k := range s.h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s HeaderSet) With(name, value string) HeaderSet {
	h := s.Header()
	h.Set(name, value)
	return HeaderSet{h: h}
}

func (s HeaderSet) Without(name string) HeaderSet {
	h := s.Header()
	h.Del(name)
	return HeaderSet{h: h}
}

// Header returns a copy safe to hand to net/http.
func (s HeaderSet) Header() http.Header {
	if s.h == nil {
		return http.Header{}
	}
	return s.h.Clone()
}

// RequestDescriptor is the target of a fetch: a URL and the headers sent with it.
type RequestDescriptor struct {
	URL     string
	Headers HeaderSet
}

func (d RequestDescriptor) WithHeaders(h HeaderSet) RequestDescriptor {
	d.Headers = h
	return d
}

type Response struct {
	StatusCode int
	Headers    http.Header
	// ContentEncoding is the coding declared by the server, also when the
	// body has already been decoded on the way in.
	ContentEncoding string
	Body            []byte
	FetchedAt       time.Time
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
