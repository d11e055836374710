package marketdata

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("websocket not connected")
	ErrConnectTimeout = errors.New("websocket connection timeout")
	ErrClientClosed   = errors.New("websocket client already disconnected")
)

// TransportError represents a failure below HTTP: DNS, refused connection,
// TLS or timeout. A response with a 4xx/5xx status is not a TransportError.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
