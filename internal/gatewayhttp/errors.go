package gatewayhttp

import (
	"fmt"

	"github.com/google/uuid"
)

// HandlerError is a serializable representation of a runtime failure
// inside the dispatcher, grounded on caddyhttp.HandlerError (spec §7
// error taxonomy). It carries an opaque ID so an operator can correlate
// a client-visible response with the corresponding log line without
// leaking upstream detail to the client.
type HandlerError struct {
	Err        error
	StatusCode int
	ID         string
}

func newHandlerError(statusCode int, err error) HandlerError {
	return HandlerError{Err: err, StatusCode: statusCode, ID: uuid.NewString()}
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("{id=%s} HTTP %d: %v", e.ID, e.StatusCode, e.Err)
}

func (e HandlerError) Unwrap() error { return e.Err }
