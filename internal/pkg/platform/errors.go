package platform

import (
	"errors"
	"fmt"
)

// APIError is returned for any non-2xx upstream response. Callers use the
// classification helpers to pick a retry policy; the client itself never
// retries.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// IsAuth reports whether the response indicates an invalid, expired or
// revoked credential. These failures are permanent and must not be retried.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == 400 || e.StatusCode == 401 || e.StatusCode == 403
}

// IsRateLimited reports whether the upstream asked the caller to back off.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsAuthError reports whether err carries a permanent upstream auth failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}

// IsRateLimitError reports whether err is an upstream 429.
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRateLimited()
}
