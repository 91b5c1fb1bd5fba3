package offline

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is a stored response: status, headers, and body.
type Snapshot struct {
	Status   int                 `msgpack:"status"`
	Header   map[string][]string `msgpack:"header"`
	Body     []byte              `msgpack:"body"`
	StoredAt time.Time           `msgpack:"stored_at"`
}

// Response rebuilds an http.Response for the given request from the snapshot.
func (s Snapshot) Response(req *http.Request) *http.Response {
	header := make(http.Header, len(s.Header))
	for k, v := range s.Header {
		header[k] = v
	}
	return &http.Response{
		Status:        http.StatusText(s.Status),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// newSnapshot drains the response body and replaces it with a reusable
// reader, so the response can be both returned to the caller and stored.
func newSnapshot(resp *http.Response) (Snapshot, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return Snapshot{}, fmt.Errorf("offline: reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	header := make(map[string][]string, len(resp.Header))
	for k, v := range resp.Header {
		header[k] = v
	}
	return Snapshot{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}

// normalizeURL produces a canonical form of a request URL: sorted query
// parameters and no fragment, so equivalent requests share one cache entry.
func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	if c.RawQuery != "" {
		values := c.Query()
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			vs := values[k]
			sort.Strings(vs)
			for _, v := range vs {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		c.RawQuery = b.String()
	}
	return c.String()
}

// requestKey derives the cache key for a request within a generation.
func requestKey(generation string, req *http.Request) string {
	sum := xxhash.Sum64String(req.Method + " " + normalizeURL(req.URL))
	return fmt.Sprintf("%s:%016x", generation, sum)
}

func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// isNavigation reports whether a request looks like a page navigation rather
// than an asset or API fetch.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
