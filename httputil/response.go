package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeptore/playtag/retrier"
)

var (
	ErrTooManyRequests = errors.New("too many requests")
	ErrNotFound        = errors.New("not found")
	ErrBodyTooLarge    = errors.New("response body too large")
)

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected status code %d", e.Code)
	}

	return fmt.Sprintf("unexpected status code %d with body: %s", e.Code, e.Body)
}

const maxErrorBodyBytes = 512

// CheckStatus maps a non-200 response to an error. Rate limits and server
// errors come back marked transient.
func CheckStatus(resp *http.Response) error {
	switch code := resp.StatusCode; code {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return retrier.Transient(ErrTooManyRequests)
	case http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if IsTooManyErrorResponse(resp, body) {
			return retrier.Transient(ErrTooManyRequests)
		}

		return &StatusError{Code: code, Body: string(body)}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		err := &StatusError{Code: code, Body: string(body)}
		if code >= http.StatusInternalServerError {
			return retrier.Transient(err)
		}

		return err
	}
}

// IsTooManyErrorResponse reports whether a 403 is a rate limit in disguise,
// which is how the iTunes Search API throttles.
func IsTooManyErrorResponse(resp *http.Response, body []byte) bool {
	if len(resp.Header.Get("Retry-After")) > 0 {
		return true
	}

	lower := strings.ToLower(string(body))

	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}

// ReadResponseBody reads at most limit bytes and fails when the body is
// larger. A non-positive limit reads everything.
func ReadResponseBody(resp *http.Response, limit int64) ([]byte, error) {
	if limit <= 0 {
		b, err := io.ReadAll(resp.Body)
		if nil != err {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		return b, nil
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if nil != err {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}

	return b, nil
}
