package requester

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brizzai/postman/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleTimeoutReader(t *testing.T) {
	t.Run("completes when bytes keep arriving", func(t *testing.T) {
		cancelled := false
		r := newIdleTimeoutReader(strings.NewReader("hello"), time.Second, func() { cancelled = true })
		defer r.stop()

		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
		assert.False(t, cancelled)
	})

	t.Run("cancels a stalled read", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pw.Close()

		r := newIdleTimeoutReader(pr, 20*time.Millisecond, func() {
			_ = pw.CloseWithError(context.Canceled)
		})
		defer r.stop()

		_, err := io.ReadAll(r)
		assert.ErrorIs(t, err, ErrReadTimeout)
	})
}

// stallingServer sends the headers and part of the body, then stops writing
// until the client goes away.
func stallingServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	return server
}

func TestHTTPRequester_StalledBodyTimesOut(t *testing.T) {
	server := stallingServer(t)

	var got notify.Notification
	r := NewHTTPRequester(HTTPRequesterParams{
		Sink: notify.SinkFunc(func(_ context.Context, n notify.Notification) { got = n }),
	})
	r.readTimeout = 100 * time.Millisecond

	cmd, err := NewCommand(BaseStrategy{Req: Request{URL: server.URL}})
	require.NoError(t, err)

	start := time.Now()
	err = r.Execute(context.Background(), cmd)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadTimeout)
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.Less(t, elapsed, 5*time.Second)
	assert.False(t, got.Success)
	assert.Contains(t, got.Message, ErrReadTimeout.Error())
}

func TestHTTPRequester_DefaultReadTimeout(t *testing.T) {
	r := NewHTTPRequester(HTTPRequesterParams{Sink: notify.SinkFunc(func(context.Context, notify.Notification) {})})
	assert.Equal(t, ReadTimeout, r.readTimeout)
}
