package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// maxErrorBody bounds how much of a failed response body is kept on an APIError.
const maxErrorBody = 4096

// APIError is an HTTP-level failure of the Shopify Admin API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// Body is the (truncated) response body, if any.
	Body string

	// RetryAfter is the server-requested delay on 429 responses.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("shopify %s error (status %d): %s", e.ErrorClass, e.StatusCode, e.Message)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// GraphQLError is returned when a GraphQL response carries a non-empty
// top-level "errors" array. Body holds the full raw response.
type GraphQLError struct {
	Body     string
	Messages []string
}

// Error implements the error interface.
func (e *GraphQLError) Error() string {
	if len(e.Messages) == 0 {
		return "shopify graphql error: " + e.Body
	}
	return "shopify graphql error: " + strings.Join(e.Messages, "; ")
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are permanent for the same request
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classOf extracts the error class of err, treating unknown errors as network failures.
func classOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}
