package engine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const DefaultMaxBodyBytes = 32 << 20 // 32 MiB

// DecodedContentEncodingHeader keeps the Content-Encoding value of a response
// whose body ContentDecodingTransport already decoded.
const DecodedContentEncodingHeader = "X-Decoded-Content-Encoding"

var (
	ErrBodyTooLarge = errors.New("body exceeds size limit")
	ErrInvalidUTF8  = errors.New("decoded body is not valid UTF-8")
)

// ReadBody reads r fully, failing once more than limit bytes are produced.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// IndicatesBrotli reports whether a Content-Encoding value mentions br.
func IndicatesBrotli(contentEncoding string) bool {
	return strings.Contains(strings.ToLower(contentEncoding), "br")
}

// DecompressBrotli decodes a complete brotli stream and requires the result
// to be UTF-8 text.
func DecompressBrotli(body []byte, limit int64) ([]byte, error) {
	data, err := ReadBody(brotli.NewReader(bytes.NewReader(body)), limit)
	if err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}
	return data, nil
}

// DecodeText converts a plain-text body to UTF-8 using the charset parameter
// of contentType, UTF-8 when there is none or it is unknown. Invalid
// sequences become U+FFFD, so the result is always valid UTF-8.
func DecodeText(body []byte, contentType string) []byte {
	var enc encoding.Encoding = unicode.UTF8
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := params["charset"]; cs != "" {
			if e, _ := charset.Lookup(cs); e != nil {
				enc = e
			}
		}
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return bytes.ToValidUTF8(body, []byte("\uFFFD"))
	}
	return out
}

// ContentDecodingTransport transparently removes gzip, deflate and zstd
// content codings. Responses mentioning br, or any coding it does not know,
// are returned untouched.
type ContentDecodingTransport struct {
	Base http.RoundTripper
}

func (t *ContentDecodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := baseOrDefault(t.Base).RoundTrip(req)
	if err != nil {
		return nil, err
	}

	codings := parseCodings(resp.Header.Get("Content-Encoding"))
	if len(codings) == 0 || !decodable(codings) {
		return resp, nil
	}

	body, err := newDecodedBody(resp.Body, codings)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("decode %s body: %w", strings.Join(codings, ", "), err)
	}

	resp.Body = body
	resp.Header.Set(DecodedContentEncodingHeader, resp.Header.Get("Content-Encoding"))
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

func parseCodings(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ",") {
		c := strings.ToLower(strings.TrimSpace(part))
		if c != "" && c != "identity" {
			out = append(out, c)
		}
	}
	return out
}

func decodable(codings []string) bool {
	for _, c := range codings {
		switch c {
		case "gzip", "x-gzip", "deflate", "zstd":
		default:
			return false
		}
	}
	return true
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newDecodedBody undoes codings in reverse order of application.
func newDecodedBody(raw io.ReadCloser, codings []string) (*decodedBody, error) {
	body := &decodedBody{Reader: raw, closers: []io.Closer{raw}}
	for i := len(codings) - 1; i >= 0; i-- {
		switch codings[i] {
		case "gzip", "x-gzip":
			zr, err := gzip.NewReader(body.Reader)
			if err != nil {
				return nil, err
			}
			body.Reader = zr
			body.closers = append(body.closers, zr)
		case "deflate":
			rc, err := newDeflateReader(body.Reader)
			if err != nil {
				return nil, err
			}
			body.Reader = rc
			body.closers = append(body.closers, rc)
		case "zstd":
			dec, err := zstd.NewReader(body.Reader, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			rc := dec.IOReadCloser()
			body.Reader = rc
			body.closers = append(body.closers, rc)
		}
	}
	return body, nil
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams; servers
// send either under "deflate".
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	hdr, err := br.Peek(2)
	if err == nil && isZlibHeader(hdr[0], hdr[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
