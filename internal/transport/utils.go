package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NewJSONRequest creates a JSON HTTP request with proper headers.
func NewJSONRequest(ctx context.Context, method, reqURL string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// NewFormRequest creates a form-encoded HTTP request, the shape the Twitch
// identity service expects for its token endpoint.
func NewFormRequest(ctx context.Context, method, reqURL string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// APIError represents a structured error response from the identity
// service.
type APIError struct {
	StatusCode int
	Message    string
	RawBody    string
	Timestamp  time.Time
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity service error %d: %s", e.StatusCode, e.Message)
}

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ParseAPIError builds an APIError from a non-2xx response body.
func ParseAPIError(statusCode int, body string) *APIError {
	apiErr := &APIError{StatusCode: statusCode, RawBody: body, Timestamp: time.Now()}

	var parsed errorResponse
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.Message != "" {
		apiErr.Message = parsed.Message
	} else {
		apiErr.Message = strings.TrimSpace(body)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(statusCode)
		}
	}
	return apiErr
}

// ReadBody reads and closes resp.Body, translating non-2xx responses into
// an *APIError.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ParseAPIError(resp.StatusCode, string(body))
	}
	return body, nil
}

// ReadJSON reads resp.Body and unmarshals it into target, translating
// non-2xx responses into an *APIError.
func ReadJSON(resp *http.Response, target interface{}) error {
	body, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("parsing JSON response: %w", err)
	}
	return nil
}
