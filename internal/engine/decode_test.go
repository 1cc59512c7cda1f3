package engine

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{"submissions_dump":[{"id":1,"lang":"go"}],"has_next":false}`

func brotliBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestIndicatesBrotli(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"br", true},
		{"BR", true},
		{"gzip, br", true},
		{"gzip", false},
		{"", false},
		{"zstd", false},
	}
	for _, tt := range tests {
		if got := IndicatesBrotli(tt.in); got != tt.want {
			t.Fatalf("IndicatesBrotli(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDecompressBrotli(t *testing.T) {
	got, err := DecompressBrotli(brotliBytes(t, sampleJSON), DefaultMaxBodyBytes)
	require.NoError(t, err)
	assert.Equal(t, sampleJSON, string(got))
}

func TestDecompressBrotliRejectsPlainText(t *testing.T) {
	_, err := DecompressBrotli([]byte(sampleJSON), DefaultMaxBodyBytes)
	require.Error(t, err)
}

func TestDecompressBrotliRejectsInvalidUTF8(t *testing.T) {
	_, err := DecompressBrotli(brotliBytes(t, "\xff\xfe\xfd"), DefaultMaxBodyBytes)
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestDecompressBrotliEnforcesLimit(t *testing.T) {
	_, err := DecompressBrotli(brotliBytes(t, strings.Repeat("a", 4096)), 1024)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestReadBody(t *testing.T) {
	got, err := ReadBody(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(got))

	_, err = ReadBody(strings.NewReader("123456"), 5)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}

func encodeWith(t *testing.T, coding string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch coding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate-raw":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	case "deflate-zlib":
		w = zlib.NewWriter(&buf)
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		w = zw
	default:
		t.Fatalf("unknown coding %q", coding)
	}
	_, err := w.Write([]byte(sampleJSON))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestContentDecodingTransport(t *testing.T) {
	tests := []struct {
		name   string
		coding string
		header string
	}{
		{name: "gzip", coding: "gzip", header: "gzip"},
		{name: "raw deflate", coding: "deflate-raw", header: "deflate"},
		{name: "zlib deflate", coding: "deflate-zlib", header: "deflate"},
		{name: "zstd", coding: "zstd", header: "zstd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := encodeWith(t, tt.coding)
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", tt.header)
				_, _ = w.Write(payload)
			}))
			defer ts.Close()

			client := &http.Client{Transport: &ContentDecodingTransport{Base: NewHTTPTransport(nil)}}
			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			require.NoError(t, err)
			req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")

			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, sampleJSON, string(body))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.Equal(t, tt.header, resp.Header.Get(DecodedContentEncodingHeader))
		})
	}
}

func TestContentDecodingTransportLeavesBrotliAlone(t *testing.T) {
	payload := brotliBytes(t, sampleJSON)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	client := &http.Client{Transport: &ContentDecodingTransport{Base: NewHTTPTransport(nil)}}
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "br")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
}

func TestContentDecodingTransportCorruptGzip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("not gzip at all"))
	}))
	defer ts.Close()

	client := &http.Client{Transport: &ContentDecodingTransport{Base: NewHTTPTransport(nil)}}
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode gzip body")
}

func TestParseCodings(t *testing.T) {
	assert.Equal(t, []string{"gzip", "br"}, parseCodings(" GZIP , br"))
	assert.Nil(t, parseCodings("identity"))
	assert.False(t, decodable([]string{"gzip", "br"}))
	assert.True(t, decodable([]string{"x-gzip", "zstd"}))
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        string
	}{
		{name: "utf-8 passes through", body: []byte(`{"title":"café"}`), contentType: "application/json", want: `{"title":"café"}`},
		{name: "invalid byte replaced", body: []byte("{\"title\":\"caf\xe9\"}"), contentType: "application/json", want: "{\"title\":\"caf\uFFFD\"}"},
		{name: "no content type", body: []byte("a\xffb"), want: "a\uFFFDb"},
		{name: "declared latin-1", body: []byte("{\"title\":\"caf\xe9\"}"), contentType: "application/json; charset=ISO-8859-1", want: `{"title":"café"}`},
		{name: "unknown charset", body: []byte("x\xfe"), contentType: "text/plain; charset=x-unknown", want: "x\uFFFD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeText(tt.body, tt.contentType)
			assert.Equal(t, tt.want, string(got))
			assert.True(t, utf8.Valid(got))
		})
	}
}
