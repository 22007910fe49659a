package errs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	openai "github.com/openai/openai-go/v2"
)

// Classify maps a provider error onto the taxonomy. Rate limiting and
// server-side failures are retryable; malformed requests are not.
func Classify(err error, elapsed time.Duration) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(elapsed, "provider call exceeded deadline: %v", err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return RateLimited(retryAfterHint(apiErr), "provider rate limited: %v", err)
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return Timeout(elapsed, "provider request timed out: %v", err)
		case apiErr.StatusCode >= 500:
			return Upstream(true, "provider server error (%d): %v", apiErr.StatusCode, err)
		default:
			return Upstream(false, "provider rejected request (%d): %v", apiErr.StatusCode, err)
		}
	}
	// Transport-level failures (connection refused, reset) are retryable.
	return Upstream(true, "provider call failed: %v", err)
}

func retryAfterHint(apiErr *openai.Error) time.Duration {
	if apiErr == nil || apiErr.Response == nil {
		return 0
	}
	header := apiErr.Response.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
