package report

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	reBearer    = regexp.MustCompile(`(?i)\b(bearer\s+)([a-z0-9\-\._~\+\/]+=*)`)
	reApiKeyKV  = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|token|secret|authorization|csrftoken|session)\s*[:=]\s*([^\s,;]+)`)
	reLongToken = regexp.MustCompile(`\b[a-zA-Z0-9_\-]{24,}\b`)
)

// Headers whose whole value is a credential.
var secretHeaders = map[string]bool{
	"Authorization":       true,
	"Cookie":              true,
	"Proxy-Authorization": true,
	"Set-Cookie":          true,
	"X-Csrftoken":         true,
}

// Redactor scrubs credentials from diagnostics before they are logged.
type Redactor struct {
	custom []*regexp.Regexp
}

// NewRedactor compiles the extra patterns; every match is replaced whole.
func NewRedactor(patterns []string) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.custom = append(r.custom, re)
	}
	return r, nil
}

func (r *Redactor) Text(s string) string {
	out := s
	out = reBearer.ReplaceAllString(out, "${1}<redacted>")
	out = reApiKeyKV.ReplaceAllString(out, "${1}=<redacted>")
	out = reLongToken.ReplaceAllStringFunc(out, func(tok string) string {
		if len(tok) <= 10 {
			return "<redacted>"
		}
		return tok[:4] + "...<redacted>..." + tok[len(tok)-4:]
	})
	if r != nil {
		for _, re := range r.custom {
			out = re.ReplaceAllString(out, "<redacted>")
		}
	}
	return out
}

func (r *Redactor) URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return r.Text(raw)
	}

	q := u.Query()
	for k := range q {
		kl := strings.ToLower(k)
		if strings.Contains(kl, "token") ||
			(strings.Contains(kl, "key") && kl != "lastkey") ||
			strings.Contains(kl, "secret") ||
			strings.Contains(kl, "auth") ||
			strings.Contains(kl, "session") ||
			strings.Contains(kl, "pass") {
			q.Set(k, "<redacted>")
		}
	}
	u.RawQuery = q.Encode()
	u.User = nil
	return u.String()
}

// Headers flattens h into "Name: value" lines sorted by name, hiding
// credential headers entirely and scrubbing the rest.
func (r *Redactor) Headers(h http.Header) []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		value := strings.Join(h.Values(name), ", ")
		if secretHeaders[http.CanonicalHeaderKey(name)] {
			value = fmt.Sprintf("<redacted %d bytes>", len(value))
		} else {
			value = r.Text(value)
		}
		out = append(out, name+": "+value)
	}
	return out
}
