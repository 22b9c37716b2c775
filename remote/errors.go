// ABOUTME: Error taxonomy for remote CRM access
// ABOUTME: Configuration, transport, API status, decode and rate limit errors plus retry classification
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrConfiguration is wrapped by every ConfigurationError.
var ErrConfiguration = errors.New("remote client is not configured")

// ErrUnsupportedMethod is returned for HTTP verbs the client does not issue.
var ErrUnsupportedMethod = errors.New("unsupported method")

// ConfigurationError reports a missing base URL or API key. It is fatal and never retried.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s is not set", ErrConfiguration, e.Field)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// TransportError wraps network failures and timeouts.
type TransportError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport failure: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError reports a non-2xx response.
type APIError struct {
	Method   string
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retryable reports whether the status is 429 or 5xx.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// DecodeError reports a 2xx response whose body is not valid JSON.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned when the rate budget cannot be acquired within the
// configured maximum wait.
type RateLimitError struct {
	Wait    time.Duration
	MaxWait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: next slot in %s, max wait %s", e.Wait, e.MaxWait)
}

// IsRetryable classifies an error returned in a Response.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	return false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
