package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// IsRetryable reports whether a failed provider call is worth repeating.
// Timeouts, rate limits, and server-side errors come back transient; auth
// failures and other client errors fail identically on every attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// The Anthropic and Ollama clients fold the HTTP status into the
	// error text as "API error (NNN)"
	if status, ok := statusFromError(err); ok {
		return retryableStatus(status)
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"timeout", "connection refused", "connection reset", "rate limit", "overloaded"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func statusFromError(err error) (int, bool) {
	const marker = "API error ("
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return 0, false
	}
	rest := msg[i+len(marker):]
	j := strings.IndexByte(rest, ')')
	if j <= 0 {
		return 0, false
	}
	status, perr := strconv.Atoi(rest[:j])
	if perr != nil {
		return 0, false
	}
	return status, true
}
