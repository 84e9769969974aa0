package eventsource

import (
	"log"
	"net/http"
	"os"
	"testing"
	"time"
)

// Test implementation note: these tests deliberately run the client against the SSE
// server implementation from httphelpers, which is validated with its own tests, so
// that a client defect cannot be masked by a matching defect in a server written here.

const timeToWaitForEvent = 100 * time.Millisecond

func mustSubscribe(t *testing.T, url string, options ...StreamOption) *Stream {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	allOpts := append(options, StreamOptionLogger(logger))
	stream, err := SubscribeWithURL(url, allOpts...)
	if err != nil {
		t.Fatalf("Failed to subscribe: %s", err)
	}
	return stream
}

func requireEvent(t *testing.T, stream *Stream) Event {
	t.Helper()
	select {
	case ev, ok := <-stream.Events:
		if !ok {
			t.Fatalf("Events channel was closed while waiting for an event")
		}
		return ev
	case <-time.After(time.Second * 2):
		t.Fatalf("Timed out waiting for event")
	}
	return nil
}

func requireError(t *testing.T, stream *Stream) error {
	t.Helper()
	select {
	case err, ok := <-stream.Errors:
		if !ok {
			t.Fatalf("Errors channel was closed while waiting for an error")
		}
		return err
	case <-time.After(time.Second * 2):
		t.Fatalf("Timed out waiting for error")
	}
	return nil
}

type urlSuffixingRoundTripper struct {
	transport http.RoundTripper
	suffix    string
}

func (u urlSuffixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	url1, _ := req.URL.Parse(u.suffix)
	req.URL = url1
	return u.transport.RoundTrip(req)
}
