package eventsource

import (
	"errors"
	"fmt"
)

// ErrReadTimeout is the error that will be emitted if a stream was closed due to not
// receiving any data within the configured read timeout interval (see
// StreamOptionReadTimeout).
var ErrReadTimeout = errors.New("Read timeout on stream")

// SubscriptionError is an error representing an HTTP error response status. The stream
// will push it to the Errors channel (or the configured error handler) and then retry
// the connection.
type SubscriptionError struct {
	Code    int
	Message string
}

func (e SubscriptionError) Error() string {
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

// ContentTypeError is an error indicating that the server responded with a Content-Type
// other than text/event-stream. Like any other connection error, it is reported and the
// connection is retried.
type ContentTypeError struct {
	ContentType string
}

func (e ContentTypeError) Error() string {
	return fmt.Sprintf("invalid content type for stream: %q", e.ContentType)
}
