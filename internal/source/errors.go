package source

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnknownClient = errors.New("unknown client type")
	ErrInvalidConfig = errors.New("invalid client configuration")
)

// HTTPStatusError is returned by Fetch when the upstream answers with a non-2xx status.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is likely to clear on a later attempt.
// Retries still happen only on the next scheduled run.
func (e *HTTPStatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
