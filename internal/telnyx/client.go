package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of a provider response body is read.
const maxResponseBytes = 1 << 20

// APIError is a non-2xx response from the provider, carrying the HTTP status
// and the provider's own error detail.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("telnyx: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("telnyx: status %d", e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// envelope is the provider's single-object response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// listEnvelope is the provider's paginated response wrapper.
type listEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		TotalPages int `json:"total_pages"`
		PageNumber int `json:"page_number"`
	} `json:"meta"`
}

// errorEnvelope is the provider's error response wrapper.
type errorEnvelope struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Client is an HTTP client for the Telnyx v2 call control API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// limiter paces paginated sweeps so batch reconciliation does not
	// hammer the provider into 429s.
	limiter *rate.Limiter
}

// NewClient creates a new provider API client.
// baseURL is the API root (e.g. "https://api.telnyx.com/v2").
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
}

// Configured returns true if the client has a base URL and API key.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Answer answers an inbound call leg.
func (c *Client) Answer(ctx context.Context, callControlID string) error {
	return c.action(ctx, callControlID, "answer", map[string]any{})
}

// Transfer bridges the call leg to a new destination. clientState, if
// non-empty, is echoed back on subsequent webhook events for the new leg.
func (c *Client) Transfer(ctx context.Context, callControlID, to, clientState string) error {
	body := map[string]any{"to": to}
	if clientState != "" {
		body["client_state"] = clientState
	}
	return c.action(ctx, callControlID, "transfer", body)
}

// Speak plays a text-to-speech message on the call leg.
func (c *Client) Speak(ctx context.Context, callControlID, text string) error {
	return c.action(ctx, callControlID, "speak", map[string]any{
		"payload":  text,
		"voice":    "female",
		"language": "en-US",
	})
}

// Hangup terminates the call leg.
func (c *Client) Hangup(ctx context.Context, callControlID string) error {
	return c.action(ctx, callControlID, "hangup", map[string]any{})
}

// action issues POST /calls/{id}/actions/{name}.
func (c *Client) action(ctx context.Context, callControlID, name string, body any) error {
	path := fmt.Sprintf("/calls/%s/actions/%s", callControlID, name)
	_, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Dial places an outbound call via POST /calls.
func (c *Client) Dial(ctx context.Context, req DialRequest) (*Call, error) {
	raw, err := c.do(ctx, http.MethodPost, "/calls", req)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	var call Call
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, fmt.Errorf("dial: decoding call: %w", err)
	}
	return &call, nil
}

// GetConnection fetches a SIP connection for preflight checks.
func (c *Client) GetConnection(ctx context.Context, id string) (*Connection, error) {
	raw, err := c.do(ctx, http.MethodGet, "/connections/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	var conn Connection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return nil, fmt.Errorf("get connection: decoding: %w", err)
	}
	return &conn, nil
}

// GetCallControlApplication fetches a call control application for preflight checks.
func (c *Client) GetCallControlApplication(ctx context.Context, id string) (*CallControlApplication, error) {
	raw, err := c.do(ctx, http.MethodGet, "/call_control_applications/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("get call control application: %w", err)
	}

	var app CallControlApplication
	if err := json.Unmarshal(raw, &app); err != nil {
		return nil, fmt.Errorf("get call control application: decoding: %w", err)
	}
	return &app, nil
}

// do sends one request and returns the raw contents of the response's data
// field. Non-2xx responses are returned as *APIError with the provider's
// error detail when present.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	slog.Debug("telnyx request", "method", method, "path", path, "status", resp.StatusCode)
	return env.Data, nil
}

// errorDetail extracts the first error detail from a provider error body.
func errorDetail(body []byte) string {
	var env errorEnvelope
	if json.Unmarshal(body, &env) != nil || len(env.Errors) == 0 {
		return ""
	}
	e := env.Errors[0]
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}
