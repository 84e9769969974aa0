// Package eventsource implements a client for streaming data one-way over an HTTP
// connection using the Server-Sent Events protocol
// https://html.spec.whatwg.org/multipage/server-sent-events.html
//
// A Stream maintains a single connection to a text/event-stream endpoint, decodes
// the response body into events, and transparently reconnects when the connection
// is lost. The Last-Event-ID header and server-supplied retry delays are respected
// across reconnections.
package eventsource

// Event is the interface for a single event received from a stream.
type Event interface {
	// Id is an identifier that can be used to allow a client to replay
	// missed Events by returning the Last-Event-Id header.
	// Return empty string if not required.
	Id() string
	// The name of the event. Defaults to "message" if the stream did not
	// specify one.
	Event() string
	// The payload of the event. Multiple data lines are joined with "\n".
	Data() string
}

// EventWithLastID is an additional interface for an event received by the client,
// allowing access to the LastEventID method.
//
// All events delivered by Stream implement this interface.
type EventWithLastID interface {
	// LastEventID is the value of the `id:` field that was most recently seen in an event
	// from this stream, if any. This differs from Event.Id() in that it retains the same
	// value in subsequent events if they do not provide their own `id:` field.
	LastEventID() string
}

// Logger is the interface for a custom logging implementation that can handle log output
// for a Stream. A *log.Logger satisfies it.
type Logger interface {
	Println(...interface{})
	Printf(string, ...interface{})
}

// StreamErrorHandlerResult contains values returned by StreamErrorHandler.
type StreamErrorHandlerResult struct {
	// CloseNow can be set to true to tell the Stream to immediately stop and not retry, as if Close had
	// been called.
	//
	// If CloseNow is false, the Stream will proceed as usual after an error: it waits for the
	// current retry delay and then attempts a new connection.
	CloseNow bool
}

// StreamErrorHandler is a function type used with StreamOptionErrorHandler.
//
// This function will be called whenever Stream encounters either a network error or an HTTP
// error response status. The returned value determines whether Stream should retry as usual,
// or immediately stop.
//
// The error may be any I/O error returned by Go's networking types, or one of the eventsource
// types SubscriptionError (an HTTP error response status) or ContentTypeError (a response that
// was not text/event-stream).
//
// The handler is called on the stream's worker goroutine. It should return promptly and not
// block the goroutine.
type StreamErrorHandler func(error) StreamErrorHandlerResult
