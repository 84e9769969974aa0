package eventsource

import (
	"net/http"
	"time"
)

type streamOptions struct {
	initialRetry       time.Duration
	requestHeaders     http.Header
	httpClient         *http.Client
	lastEventID        string
	logger             Logger
	backoffMaxDelay    time.Duration
	jitterRatio        float64
	readTimeout        time.Duration
	retryResetInterval time.Duration
	errorHandler       StreamErrorHandler
}

// StreamOption is a common interface for optional configuration parameters that can be
// used in creating a stream.
type StreamOption interface {
	apply(s *streamOptions) error
}

type initialRetryOption struct {
	retry time.Duration
}

func (o initialRetryOption) apply(s *streamOptions) error {
	s.initialRetry = o.retry
	return nil
}

// StreamOptionInitialRetry returns an option that sets the initial retry delay for a
// stream when the stream is created.
//
// This delay is used whenever the stream has to be restarted, until the server sends a
// "retry:" field with a new value. It does not grow on consecutive failures unless
// exponential backoff is enabled with StreamOptionUseBackoff.
//
// The default value is DefaultInitialRetry.
func StreamOptionInitialRetry(retry time.Duration) StreamOption {
	return initialRetryOption{retry: retry}
}

type requestHeadersOption struct {
	headers http.Header
}

func (o requestHeadersOption) apply(s *streamOptions) error {
	s.requestHeaders = o.headers
	return nil
}

// StreamOptionRequestHeaders returns an option that adds static headers to every
// request the stream makes. The protocol-mandated headers (Accept, Cache-Control,
// Last-Event-ID) cannot be overridden this way.
func StreamOptionRequestHeaders(headers http.Header) StreamOption {
	return requestHeadersOption{headers: headers}
}

type readTimeoutOption struct {
	timeout time.Duration
}

func (o readTimeoutOption) apply(s *streamOptions) error {
	s.readTimeout = o.timeout
	return nil
}

// StreamOptionReadTimeout returns an option that sets the read timeout interval for a
// stream when the stream is created. If the stream does not receive new data within this
// length of time, it will restart the connection.
//
// By default, there is no read timeout.
func StreamOptionReadTimeout(timeout time.Duration) StreamOption {
	return readTimeoutOption{timeout: timeout}
}

type useBackoffOption struct {
	maxDelay time.Duration
}

func (o useBackoffOption) apply(s *streamOptions) error {
	s.backoffMaxDelay = o.maxDelay
	return nil
}

// StreamOptionUseBackoff returns an option that determines whether to use an exponential
// backoff for reconnection delays.
//
// If the maxDelay parameter is greater than zero, backoff is enabled. The retry delay
// interval will be doubled (not counting jitter - see StreamOptionUseJitter) for
// consecutive stream reconnections, but will never be greater than maxDelay.
//
// This is disabled by default, in which case the delay between reconnections is
// constant. It is recommended to use both backoff and jitter, to avoid "thundering
// herd" behavior in the case of a server outage.
func StreamOptionUseBackoff(maxDelay time.Duration) StreamOption {
	return useBackoffOption{maxDelay}
}

type useJitterOption struct {
	jitterRatio float64
}

func (o useJitterOption) apply(s *streamOptions) error {
	s.jitterRatio = o.jitterRatio
	return nil
}

// StreamOptionUseJitter returns an option that determines whether to use a randomized
// jitter for reconnection delays.
//
// If jitterRatio is greater than zero, it represents a proportion up to 1.0 (100%) that
// will be deducted from the retry delay interval that would otherwise be used: for
// instance, 0.5 means that the delay will be randomly decreased by up to 50%. A value
// greater than 1.0 is treated as equal to 1.0.
//
// This is disabled (zero) by default.
func StreamOptionUseJitter(jitterRatio float64) StreamOption {
	return useJitterOption{jitterRatio}
}

type retryResetIntervalOption struct {
	retryResetInterval time.Duration
}

func (o retryResetIntervalOption) apply(s *streamOptions) error {
	s.retryResetInterval = o.retryResetInterval
	return nil
}

// StreamOptionRetryResetInterval returns an option that sets the minimum amount of time
// that a connection must stay open before the Stream resets its backoff delay. This is
// only relevant if backoff is enabled (see StreamOptionUseBackoff).
//
// If a connection fails before the threshold has elapsed, the delay before reconnecting
// will be greater than the last delay; if it fails after the threshold, the delay will
// start over at the initial minimum value. This prevents long delays from occurring on
// connections that are only rarely restarted.
//
// The default value is DefaultRetryResetInterval.
func StreamOptionRetryResetInterval(retryResetInterval time.Duration) StreamOption {
	return retryResetIntervalOption{retryResetInterval: retryResetInterval}
}

type lastEventIDOption struct {
	lastEventID string
}

func (o lastEventIDOption) apply(s *streamOptions) error {
	s.lastEventID = o.lastEventID
	return nil
}

// StreamOptionLastEventID returns an option that sets the initial last event ID for a
// stream when the stream is created. If specified, this value will be sent to the server
// in case it can replay missed events.
func StreamOptionLastEventID(lastEventID string) StreamOption {
	return lastEventIDOption{lastEventID: lastEventID}
}

type httpClientOption struct {
	client *http.Client
}

func (o httpClientOption) apply(s *streamOptions) error {
	if o.client != nil {
		s.httpClient = o.client
	}
	return nil
}

// StreamOptionHTTPClient returns an option that overrides the default HTTP client used by
// a stream when the stream is created.
func StreamOptionHTTPClient(client *http.Client) StreamOption {
	return httpClientOption{client: client}
}

type loggerOption struct {
	logger Logger
}

func (o loggerOption) apply(s *streamOptions) error {
	s.logger = o.logger
	return nil
}

// StreamOptionLogger returns an option that sets the logger for a stream when the stream
// is created. By default, there is no logger.
func StreamOptionLogger(logger Logger) StreamOption {
	return loggerOption{logger: logger}
}

type streamErrorHandlerOption struct {
	handler StreamErrorHandler
}

func (o streamErrorHandlerOption) apply(s *streamOptions) error {
	s.errorHandler = o.handler
	return nil
}

// StreamOptionErrorHandler returns an option that causes a Stream to call the specified
// function for stream errors.
//
// When used, this mechanism replaces the Errors channel; that channel will be nil and
// Stream will not push any errors to it, so the caller does not need to consume it.
func StreamOptionErrorHandler(handler StreamErrorHandler) StreamOption {
	return streamErrorHandlerOption{handler}
}

const (
	// DefaultInitialRetry is the default value for StreamOptionInitialRetry.
	DefaultInitialRetry = time.Millisecond * 3000
	// DefaultRetryResetInterval is the default value for StreamOptionRetryResetInterval.
	DefaultRetryResetInterval = time.Second * 60
)
