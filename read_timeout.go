package eventsource

import (
	"io"
	"sync/atomic"
	"time"
)

// readTimeoutReader wraps a response body so that a read blocking for longer than the
// configured interval fails with ErrReadTimeout. The body is closed to unblock the
// read, so the connection is unusable afterwards and the stream must reconnect.
type readTimeoutReader struct {
	body     io.ReadCloser
	timeout  time.Duration
	timer    *time.Timer
	timedOut atomic.Bool
}

func newReadTimeoutReader(body io.ReadCloser, timeout time.Duration) *readTimeoutReader {
	r := &readTimeoutReader{body: body, timeout: timeout}
	r.timer = time.AfterFunc(timeout, func() {
		r.timedOut.Store(true)
		body.Close()
	})
	return r
}

func (r *readTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if err != nil && r.timedOut.Load() {
		return n, ErrReadTimeout
	}
	if err == nil {
		// any traffic on the connection, including comment lines, resets the clock
		r.timer.Reset(r.timeout)
	}
	return n, err
}

// Stop disables the timer. It does not close the body.
func (r *readTimeoutReader) Stop() {
	r.timer.Stop()
}
