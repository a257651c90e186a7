package requester

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// ErrReadTimeout is returned when a response body stalls for longer than the
// read timeout
var ErrReadTimeout = errors.New("read timed out")

// idleTimeoutReader cancels the request once no bytes have arrived for
// timeout. The deadline restarts after every successful read.
type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleTimeoutReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutReader {
	ir := &idleTimeoutReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.expired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.expired.Load() {
		return n, ErrReadTimeout
	}
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

func (ir *idleTimeoutReader) stop() {
	ir.timer.Stop()
}
