package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnauthorized marks authentication failures (401 responses and rejected
// credential grants). The session coordinator treats it as the signal to
// attempt a token refresh; every other error is surfaced to the caller.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
