package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// TransportReason categorizes why an LLM transport call failed, enough
// to decide whether it is worth retrying.
type TransportReason string

const (
	ReasonRateLimit   TransportReason = "rate_limit"
	ReasonServerError TransportReason = "server_error"
	ReasonAuth        TransportReason = "auth"
	ReasonBadRequest  TransportReason = "invalid_request"
	ReasonTimeout     TransportReason = "timeout"
	ReasonOOM         TransportReason = "oom"
	ReasonUnknown     TransportReason = "unknown"
)

// IsRetryable reports whether a failure of this reason is worth a
// retry with backoff.
func (r TransportReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonServerError, ReasonTimeout, ReasonOOM:
		return true
	default:
		return false
	}
}

// TransportError is returned by Client for any failed HTTP round trip
// to an LLM backend, openai-dialect or native-dialect alike.
type TransportError struct {
	Reason TransportReason
	Status int
	Code   string
	Cause  error
}

func (e *TransportError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *TransportError) Unwrap() error { return e.Cause }

func classifyStatus(status int) TransportReason {
	switch {
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusBadRequest:
		return ReasonBadRequest
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// retryableStatus mirrors the reference client's retryable status set.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// oomKeywords are substrings (matched case-insensitively) that indicate
// a local model backend ran out of memory serving the request.
var oomKeywords = []string{
	"out of memory",
	"oom",
	"exit status 2",
	"not enough memory",
	"alloc",
	"unexpectedly stopped",
	"resource limitations",
}

func isOOMError(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range oomKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
