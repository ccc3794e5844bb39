// Package testutil provides testing utilities for the Shopify source.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// APIVersion is the version the mock expects in its paths.
const APIVersion = "2024-01"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one request received by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// GraphQLRequest is the decoded body of a GraphQL POST.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// MockShopify is a configurable mock Shopify Admin API for testing.
type MockShopify struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockShopify creates a new mock Shopify server.
func NewMockShopify() *MockShopify {
	mock := &MockShopify{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			r.Body = io.NopCloser(bytes.NewReader(body))
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":"Not Found"}`))
	}))

	return mock
}

// URL returns the mock shop URL.
func (m *MockShopify) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockShopify) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockShopify) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// RESTPath returns the path of a REST resource.
func RESTPath(resource string) string {
	return "/admin/api/" + APIVersion + "/" + resource + ".json"
}

// GraphQLPath is the path of the GraphQL endpoint.
const GraphQLPath = "/admin/api/" + APIVersion + "/graphql.json"

// SetHandler sets a custom handler for a specific path.
func (m *MockShopify) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockShopify) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetRESTPages serves bodies as consecutive pages of a REST resource. Each page
// but the last carries a Link rel="next" header pointing at the following one
// via an opaque page_info parameter.
func (m *MockShopify) SetRESTPages(resource string, bodies ...string) {
	path := RESTPath(resource)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		n := 0
		if pi := r.URL.Query().Get("page_info"); pi != "" {
			n, _ = strconv.Atoi(pi)
		}
		if n >= len(bodies) {
			writeResponse(w, MockResponse{StatusCode: http.StatusBadRequest, Body: `{"errors":"page_info out of range"}`})
			return
		}

		resp := NewHealthyResponse(bodies[n])
		if n+1 < len(bodies) {
			resp.Headers["Link"] = fmt.Sprintf(`<%s%s?limit=250&page_info=%d>; rel="next"`, m.URL(), path, n+1)
		}
		writeResponse(w, resp)
	})
}

// SetGraphQLHandler routes GraphQL POSTs to fn.
func (m *MockShopify) SetGraphQLHandler(fn func(req GraphQLRequest) MockResponse) {
	m.SetHandler(GraphQLPath, func(w http.ResponseWriter, r *http.Request) {
		var req GraphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, MockResponse{StatusCode: http.StatusBadRequest, Body: `{"errors":"bad json"}`})
			return
		}
		writeResponse(w, fn(req))
	})
}

// Requests returns a copy of the recorded requests.
func (m *MockShopify) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockShopify) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// GraphQLRequests returns the decoded bodies of all GraphQL requests.
func (m *MockShopify) GraphQLRequests() []GraphQLRequest {
	var out []GraphQLRequest
	for _, r := range m.Requests() {
		if r.Path != GraphQLPath {
			continue
		}
		var req GraphQLRequest
		if err := json.Unmarshal(r.Body, &req); err == nil {
			out = append(out, req)
		}
	}
	return out
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewHealthyResponse creates a 200 OK response with a relaxed call limit.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-Shopify-Shop-Api-Call-Limit": "1/40",
			"Content-Type":                  "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":"Exceeded 2 calls per second for api client. Reduce request rates to resume uninterrupted service."}`,
		Headers: map[string]string{
			"Retry-After":                   "0.01",
			"X-Shopify-Shop-Api-Call-Limit": "40/40",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":"Internal Server Error"}`,
	}
}

// NewGraphQLResponse wraps data and a throttle status into a GraphQL body.
func NewGraphQLResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: `{"data":` + data + `,"extensions":{"cost":{"requestedQueryCost":12,"actualQueryCost":12,` +
			`"throttleStatus":{"maximumAvailable":2000.0,"currentlyAvailable":1988,"restoreRate":100.0}}}}`,
	}
}

// NewGraphQLErrorResponse creates a 200 response carrying a top-level errors array.
func NewGraphQLErrorResponse(message string) MockResponse {
	msg, _ := json.Marshal(message)
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"errors":[{"message":` + string(msg) + `}]}`,
	}
}
