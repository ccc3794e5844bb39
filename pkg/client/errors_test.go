package client

import (
	"errors"
	"strings"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		want       bool
	}{
		{name: "client errors are not retried", errorClass: ErrorClassClient, want: false},
		{name: "server errors are retried", errorClass: ErrorClassServer, want: true},
		{name: "rate limit errors are retried", errorClass: ErrorClassRateLimit, want: true},
		{name: "network errors are retried", errorClass: ErrorClassNetwork, want: true},
		{name: "unknown class is not retried", errorClass: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.want {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "status only",
			err:  &APIError{StatusCode: 404, ErrorClass: ErrorClassClient, Message: "404 Not Found"},
			want: "shopify client error (status 404): 404 Not Found",
		},
		{
			name: "with body",
			err: &APIError{
				StatusCode: 422,
				ErrorClass: ErrorClassClient,
				Message:    "422 Unprocessable Entity",
				Body:       `{"errors":"bad"}`,
			},
			want: `shopify client error (status 422): 422 Unprocessable Entity: {"errors":"bad"}`,
		},
		{
			name: "with wrapped error",
			err: &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        errors.New("connection refused"),
			},
			want: "shopify network error (status 0): request failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &APIError{ErrorClass: ErrorClassNetwork, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	if (&APIError{}).Unwrap() != nil {
		t.Error("Unwrap() of an APIError without cause should be nil")
	}
}

func TestGraphQLError_Error(t *testing.T) {
	err := &GraphQLError{Body: `{"errors":[{"message":"boom"}]}`, Messages: []string{"boom", "bang"}}
	if got := err.Error(); got != "shopify graphql error: boom; bang" {
		t.Errorf("Error() = %q", got)
	}

	bare := &GraphQLError{Body: "raw"}
	if !strings.Contains(bare.Error(), "raw") {
		t.Errorf("Error() without messages should include the body, got %q", bare.Error())
	}
}

func TestClassOf(t *testing.T) {
	if got := classOf(&APIError{ErrorClass: ErrorClassServer}); got != ErrorClassServer {
		t.Errorf("classOf(APIError) = %q, want server", got)
	}
	if got := classOf(errors.New("x")); got != ErrorClassNetwork {
		t.Errorf("classOf(plain) = %q, want network", got)
	}
}
