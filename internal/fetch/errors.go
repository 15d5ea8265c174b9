package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrClosed is returned by a Client used after Close.
var ErrClosed = errors.New("fetch client closed")

// StatusError reports a non-2xx upstream response. It is never retried.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether the upstream said the page is gone.
func (e *StatusError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// StatusCode extracts the upstream status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404/410 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.IsNotFound()
}
