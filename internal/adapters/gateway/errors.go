package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrGateway matches every model call failure.
var ErrGateway = errors.New("model gateway call failed")

// Kind classifies a gateway failure for logs and metrics.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindQuota
	KindTransient
	KindTimeout
	KindMalformedRequest
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindMalformedRequest:
		return "malformed_request"
	default:
		return "unknown"
	}
}

// Error is a classified gateway failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", ErrGateway, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %v", ErrGateway, e.Kind, e.Err)
}

// Unwrap returns the transport error.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is ErrGateway.
func (e *Error) Is(target error) bool { return target == ErrGateway }

// Wrap classifies err and returns it as *Error. A nil err stays nil and an
// existing *Error is returned unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return &Error{Kind: Classify(err), Err: err}
}

// Classify maps an error from the model transport to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if k := classifyStatus(apiErr.Code, apiErr.Status); k != KindUnknown {
			return k
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		if k := classifyStatus(apiErrPtr.Code, apiErrPtr.Status); k != KindUnknown {
			return k
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransient
	}

	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyStatus(code int, status string) Kind {
	switch strings.ToUpper(status) {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return KindAuth
	case "RESOURCE_EXHAUSTED":
		return KindQuota
	case "INVALID_ARGUMENT", "NOT_FOUND", "FAILED_PRECONDITION", "OUT_OF_RANGE":
		return KindMalformedRequest
	case "DEADLINE_EXCEEDED":
		return KindTimeout
	case "UNAVAILABLE", "INTERNAL", "ABORTED":
		return KindTransient
	}

	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindQuota
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindTransient
	case code >= 400:
		return KindMalformedRequest
	}
	return KindUnknown
}

var messagePatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindAuth, []string{"api key", "unauthorized", "unauthenticated", "permission denied", "forbidden"}},
	{KindQuota, []string{"quota", "rate limit", "too many requests", "resource exhausted"}},
	{KindTimeout, []string{"timeout", "deadline exceeded", "timed out"}},
	{KindTransient, []string{"connection refused", "connection reset", "unavailable", "temporary failure", "network unreachable", "eof"}},
	{KindMalformedRequest, []string{"invalid argument", "bad request", "malformed", "not found"}},
}

func classifyMessage(msg string) Kind {
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.kind
			}
		}
	}
	return KindUnknown
}
