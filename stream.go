package eventsource

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"
)

// streamState identifies where a Stream is in its connection lifecycle. Closed is
// terminal; no transitions leave it.
type streamState int

const (
	stateConnecting streamState = iota
	stateStreaming
	stateBackoff
	stateClosed
)

const readBufferSize = 4096

// errStreamEnded is the internal signal for an HTTP 204 response: the server will not
// resume the stream, so the client stops cleanly without reporting an error.
var errStreamEnded = errors.New("eventsource: server ended the stream")

// Stream handles a connection for receiving Server Sent Events.
// It will try and reconnect if the connection is lost, respecting both
// received retry delays and event id's.
//
// A connection failure is never terminal: the stream reports it and retries after
// the current retry delay, indefinitely, until Close is called or the server
// responds with 204 No Content. When the stream stops for either of those reasons,
// the Events and Errors channels are closed.
type Stream struct {
	c            *http.Client
	req          *http.Request
	extraHeaders http.Header
	retryDelay   *retryDelayStrategy
	readTimeout  time.Duration
	errorHandler StreamErrorHandler
	logger       Logger

	// Events emits the events received by the stream.
	Events chan Event
	// Errors emits any errors encountered while reading events from the stream.
	// It's mainly for informative purposes - the client isn't required to take any
	// action when an error is encountered. The stream will always attempt to continue,
	// even if that involves reconnecting to the server.
	//
	// Errors is nil if an error handler was configured with StreamOptionErrorHandler;
	// in that case the handler receives the errors instead.
	Errors chan error

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	body        io.ReadCloser
	lastEventID string
	restarting  bool
	restartCh   chan struct{}
	closeOnce   sync.Once
}

// SubscribeWithURL subscribes to the Events emitted from the specified url.
//
// The connection is established asynchronously. A failed connection attempt is
// reported through the Errors channel (or the error handler) and retried like any
// later failure, so SubscribeWithURL returns an error only if the url is invalid or
// an option is misconfigured.
func SubscribeWithURL(url string, options ...StreamOption) (*Stream, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	return SubscribeWithRequest(req, options...)
}

// SubscribeWithRequest takes an http.Request to set up the stream, allowing custom
// headers, authentication, or a non-GET method to be specified. If the request has a
// body, it must also have GetBody set so the body can be reissued on reconnection
// (http.NewRequest sets it for the common body types).
func SubscribeWithRequest(req *http.Request, options ...StreamOption) (*Stream, error) {
	if req.Body != nil && req.GetBody == nil {
		return nil, errors.New("eventsource: request body cannot be reissued on reconnect (no GetBody)")
	}
	opts := streamOptions{
		initialRetry:       DefaultInitialRetry,
		retryResetInterval: DefaultRetryResetInterval,
		httpClient:         http.DefaultClient,
	}
	for _, o := range options {
		if err := o.apply(&opts); err != nil {
			return nil, err
		}
	}
	var backoff backoffStrategy
	if opts.backoffMaxDelay > 0 {
		backoff = newDefaultBackoff(opts.backoffMaxDelay)
	}
	var jitter jitterStrategy
	if opts.jitterRatio > 0 {
		jitter = newDefaultJitter(opts.jitterRatio, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	stream := &Stream{
		c:            opts.httpClient,
		req:          req,
		extraHeaders: opts.requestHeaders,
		retryDelay:   newRetryDelayStrategy(opts.initialRetry, opts.retryResetInterval, backoff, jitter),
		readTimeout:  opts.readTimeout,
		errorHandler: opts.errorHandler,
		logger:       opts.logger,
		Events:       make(chan Event),
		ctx:          ctx,
		cancel:       cancel,
		lastEventID:  opts.lastEventID,
		restartCh:    make(chan struct{}, 1),
	}
	if opts.errorHandler == nil {
		stream.Errors = make(chan error)
	}
	go stream.run()
	return stream, nil
}

// Close permanently stops the stream. Any blocked body read or backoff wait is
// interrupted, the current connection is released, and the Events and Errors
// channels are closed. It is safe to call Close more than once.
func (stream *Stream) Close() {
	stream.closeOnce.Do(func() {
		stream.cancel()
		stream.mu.Lock()
		if stream.body != nil {
			stream.body.Close()
		}
		stream.mu.Unlock()
	})
}

// Restart drops the current connection, if any, and immediately attempts a new one.
// Unlike a connection failure, a restart is not reported as an error and does not
// wait for the retry delay.
func (stream *Stream) Restart() {
	stream.mu.Lock()
	stream.restarting = true
	if stream.body != nil {
		stream.body.Close()
	}
	stream.mu.Unlock()
	select {
	case stream.restartCh <- struct{}{}:
	default:
	}
}

// run is the connection state machine. It is the only goroutine that touches the
// connection, and it owns the Events and Errors channels.
func (stream *Stream) run() {
	defer func() {
		close(stream.Events)
		if stream.Errors != nil {
			close(stream.Errors)
		}
	}()

	var body io.ReadCloser
	state := stateConnecting
	for state != stateClosed {
		switch state {
		case stateConnecting:
			r, err := stream.connect()
			if stream.ctx.Err() != nil {
				if r != nil {
					r.Close()
				}
				state = stateClosed
			} else if err == errStreamEnded {
				state = stateClosed
			} else if err != nil {
				state = stream.handleError(err)
			} else {
				body = r
				stream.setCurrentBody(r)
				state = stateStreaming
			}

		case stateStreaming:
			err := stream.consume(body)
			stream.setCurrentBody(nil)
			body.Close()
			body = nil
			if stream.ctx.Err() != nil {
				state = stateClosed
			} else if stream.consumeRestart() {
				state = stateConnecting
			} else {
				state = stream.handleError(err)
			}

		case stateBackoff:
			delay := stream.retryDelay.NextRetryDelay(time.Now())
			if stream.logger != nil {
				stream.logger.Printf("Reconnecting in %0.4f secs", delay.Seconds())
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				state = stateConnecting
			case <-stream.restartCh:
				timer.Stop()
				state = stateConnecting
			case <-stream.ctx.Done():
				timer.Stop()
				state = stateClosed
			}
		}
	}
}

// handleError surfaces a connection error to the consumer and decides the next state.
// The stream only stops on an error if the consumer asked it to, either by closing
// the stream or by returning CloseNow from an error handler.
func (stream *Stream) handleError(err error) streamState {
	if stream.errorHandler != nil {
		if stream.errorHandler(err).CloseNow {
			return stateClosed
		}
		return stateBackoff
	}
	select {
	case stream.Errors <- err:
		return stateBackoff
	case <-stream.ctx.Done():
		return stateClosed
	}
}

// connect issues the request and validates the response. It returns errStreamEnded
// for a 204 response, a SubscriptionError for any other non-2xx status, and a
// ContentTypeError if the response carries a Content-Type other than
// text/event-stream.
func (stream *Stream) connect() (io.ReadCloser, error) {
	req, err := stream.newRequest()
	if err != nil {
		return nil, err
	}
	if stream.logger != nil {
		stream.logger.Printf("Connecting to stream: %s", req.URL)
	}
	resp, err := stream.c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil, errStreamEnded
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, SubscriptionError{Code: resp.StatusCode, Message: string(message)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "text/event-stream" {
			resp.Body.Close()
			return nil, ContentTypeError{ContentType: ct}
		}
	}
	return resp.Body, nil
}

func (stream *Stream) newRequest() (*http.Request, error) {
	req := stream.req.Clone(stream.ctx)
	if stream.req.GetBody != nil {
		body, err := stream.req.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	for k, vv := range stream.extraHeaders {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	// the protocol-mandated headers win over any configured ones
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "text/event-stream")
	if id := stream.getLastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}
	return req, nil
}

// consume reads the body in chunks and feeds them to a parser created for this
// connection, delivering each dispatched event in order. It returns when the body
// errors out or the stream is closed.
func (stream *Stream) consume(body io.ReadCloser) error {
	var reader io.Reader = body
	if stream.readTimeout > 0 {
		tr := newReadTimeoutReader(body, stream.readTimeout)
		defer tr.Stop()
		reader = tr
	}
	parser := NewParser()
	buf := make([]byte, readBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if !stream.deliver(parser.Feed(buf[:n])) {
				return stream.ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
}

// deliver advances the resumption state from each dispatched event - the id first,
// then the retry delay - and forwards the event to the consumer. It returns false if
// the stream was closed while blocked on a send.
func (stream *Stream) deliver(events []Event) bool {
	for _, ev := range events {
		pub := ev.(*publication)
		if pub.hasID {
			stream.setLastEventID(pub.id)
		}
		if pub.hasRetry {
			stream.retryDelay.SetBaseDelay(pub.retry)
		}
		pub.lastEventID = stream.getLastEventID()
		stream.retryDelay.SetGoodSince(time.Now())
		select {
		case stream.Events <- ev:
		case <-stream.ctx.Done():
			return false
		}
	}
	return true
}

func (stream *Stream) setCurrentBody(body io.ReadCloser) {
	stream.mu.Lock()
	stream.body = body
	if body != nil {
		// a pending restart is satisfied by the new connection
		stream.restarting = false
		select {
		case <-stream.restartCh:
		default:
		}
	}
	stream.mu.Unlock()
}

func (stream *Stream) consumeRestart() bool {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	restarting := stream.restarting
	stream.restarting = false
	return restarting
}

func (stream *Stream) getLastEventID() string {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.lastEventID
}

func (stream *Stream) setLastEventID(id string) {
	stream.mu.Lock()
	stream.lastEventID = id
	stream.mu.Unlock()
}

func (stream *Stream) getRetryDelayStrategy() *retryDelayStrategy { //nolint:megacheck // used only in tests
	return stream.retryDelay
}
