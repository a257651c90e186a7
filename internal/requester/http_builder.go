package requester

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const formContentType = "application/x-www-form-urlencoded"

// BuildHTTPRequest turns a Request into an *http.Request. Parameters go to
// the query string for GET, HEAD, DELETE and OPTIONS and to a form body for
// POST, PUT and PATCH. An explicit Body always wins over a form body; the
// parameters then move to the query string.
func BuildHTTPRequest(ctx context.Context, r Request) (*http.Request, error) {
	verb := r.Verb
	if verb == "" {
		verb = GET
	}
	if !verb.Valid() {
		return nil, fmt.Errorf("unsupported verb: %s", verb)
	}
	if r.URL == "" {
		return nil, fmt.Errorf("request url is empty")
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url must be absolute: %s", r.URL)
	}

	encoded := encodeParams(r.Params)
	contentType := r.ContentType

	var body io.Reader
	switch {
	case r.Body != nil:
		body = bytes.NewReader(r.Body)
		u.RawQuery = appendQuery(u.RawQuery, encoded)
	case verb.carriesForm():
		if encoded != "" {
			body = strings.NewReader(encoded)
			if contentType == "" {
				contentType = formContentType
			}
		}
	default:
		u.RawQuery = appendQuery(u.RawQuery, encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(verb), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range r.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	return httpReq, nil
}

// encodeParams form-encodes params in their given order. url.Values would
// sort them by key.
func encodeParams(params []Param) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}

func appendQuery(rawQuery, encoded string) string {
	switch {
	case encoded == "":
		return rawQuery
	case rawQuery == "":
		return encoded
	default:
		return rawQuery + "&" + encoded
	}
}
