package httpcache

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/brizzai/postman/internal/logger"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// FromCacheHeader is set on responses served from the store
const FromCacheHeader = "X-From-Cache"

// Transport is an http.RoundTripper that serves fresh GET responses from a
// Store and revalidates stale ones.
type Transport struct {
	store Store
	next  http.RoundTripper
	now   func() time.Time
}

// NewTransport wraps next with the cache. A nil next uses http.DefaultTransport.
func NewTransport(store Store, next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{store: store, next: next, now: time.Now}
}

// keyExcludedHeaders do not select a representation and stay out of the key
var keyExcludedHeaders = map[string]bool{
	"Cache-Control":     true,
	"Pragma":            true,
	"If-None-Match":     true,
	"If-Modified-Since": true,
}

// Key identifies a cached response. Every request header except the cache
// directives is hashed into the key, so responses never leak between
// credentials, whichever header a signer puts them in.
func Key(req *http.Request) string {
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		if !keyExcludedHeaders[http.CanonicalHeaderKey(name)] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	h := xxhash.New()
	for _, name := range names {
		_, _ = h.WriteString(http.CanonicalHeaderKey(name))
		for _, v := range req.Header[name] {
			_, _ = h.WriteString("\x00")
			_, _ = h.WriteString(v)
		}
		_, _ = h.WriteString("\n")
	}
	return req.Method + " " + req.URL.String() + " " + strconv.FormatUint(h.Sum64(), 16)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.Header.Get("Range") != "" {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	key := Key(req)

	cached, ok, err := t.store.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache lookup failed", zap.String("key", key), zap.Error(err))
		ok = false
	}

	noCache := hasDirective(req.Header.Get("Cache-Control"), "no-cache")
	if ok && !noCache && cached.fresh(t.now()) {
		logger.Debug("Serving cached response", zap.String("url", req.URL.String()))
		return cached.response(req), nil
	}

	outReq := req
	if ok && cached.hasValidators() {
		outReq = req.Clone(ctx)
		if etag := cached.Header.Get("ETag"); etag != "" {
			outReq.Header.Set("If-None-Match", etag)
		}
		if lm := cached.Header.Get("Last-Modified"); lm != "" {
			outReq.Header.Set("If-Modified-Since", lm)
		}
	}

	resp, err := t.next.RoundTrip(outReq)
	if err != nil {
		return nil, err
	}

	if ok && resp.StatusCode == http.StatusNotModified {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		now := t.now()
		updated := *cached
		updated.Header = cached.Header.Clone()
		for _, h := range []string{"Cache-Control", "Expires", "Date", "ETag", "Last-Modified"} {
			if v := resp.Header.Get(h); v != "" {
				updated.Header.Set(h, v)
			}
		}
		updated.StoredAt = now
		updated.Expires = expiry(updated.Header, now)
		if err := t.store.Set(ctx, key, &updated); err != nil {
			logger.Warn("Cache update failed", zap.String("key", key), zap.Error(err))
		}
		return updated.response(req), nil
	}

	if !cacheable(resp) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := t.now()
	entry := &Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   now,
		Expires:    expiry(resp.Header, now),
	}
	if err := t.store.Set(ctx, key, entry); err != nil {
		logger.Warn("Cache store failed", zap.String("key", key), zap.Error(err))
	}
	return resp, nil
}

func (e *Entry) response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(FromCacheHeader, "1")
	return &http.Response{
		Status:        strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func cacheable(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	cc := resp.Header.Get("Cache-Control")
	if hasDirective(cc, "no-store") || hasDirective(cc, "private") {
		return false
	}
	if strings.TrimSpace(resp.Header.Get("Vary")) == "*" {
		return false
	}
	if _, ok := maxAge(cc); ok {
		return true
	}
	return resp.Header.Get("ETag") != "" || resp.Header.Get("Last-Modified") != ""
}

// expiry returns the end of the freshness window from Cache-Control max-age.
// no-cache and a missing max-age force revalidation.
func expiry(h http.Header, now time.Time) time.Time {
	cc := h.Get("Cache-Control")
	if hasDirective(cc, "no-cache") {
		return time.Time{}
	}
	age, ok := maxAge(cc)
	if !ok || age <= 0 {
		return time.Time{}
	}
	return now.Add(age)
}

func maxAge(cc string) (time.Duration, bool) {
	for _, d := range strings.Split(cc, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(d), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func hasDirective(cc, directive string) bool {
	for _, d := range strings.Split(cc, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(d), "=")
		if strings.EqualFold(name, directive) {
			return true
		}
	}
	return false
}
