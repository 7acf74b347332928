package httpjson

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

	"github.com/google/uuid"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 64 * 1024

	HeaderRequestID = "X-Request-ID"
)

// Client performs JSON requests against a single base URL.
type Client struct {
	endpoint string
	http     *http.Client
}

// Request describes one call. Query values are merged into any query already
// present on the base URL. BearerToken is attached only when non-empty.
type Request struct {
	Method      string
	Query       url.Values
	Body        any
	BearerToken string
}

// StatusError is returned for any non-2xx response. Message holds the
// body's `error` field and is empty when the body carried none.
type StatusError struct {
	Endpoint  string
	Status    int
	Message   string
	RequestID string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d endpoint=%s", e.Status, e.Endpoint)
	}
	return fmt.Sprintf("status %d endpoint=%s: %s", e.Status, e.Endpoint, e.Message)
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		http:     &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP is used when the caller owns the transport (tests, proxies).
func NewClientWithHTTP(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{endpoint: strings.TrimSpace(endpoint), http: httpClient}
}

// Do sends req and decodes a 2xx body into out. out may be nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if c.endpoint == "" {
		return fmt.Errorf("endpoint is not configured")
	}
	target, err := c.buildURL(req.Query)
	if err != nil {
		return err
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if token := strings.TrimSpace(req.BearerToken); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed endpoint=%s request_id=%s: %w", c.endpoint, requestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Endpoint:  c.endpoint,
			Status:    resp.StatusCode,
			Message:   errorMessage(resp.Body),
			RequestID: requestID,
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response endpoint=%s request_id=%s: %w", c.endpoint, requestID, err)
	}
	return nil
}

func (c *Client) buildURL(query url.Values) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", c.endpoint, err)
	}
	if len(query) == 0 {
		return u.String(), nil
	}
	merged := u.Query()
	for key, values := range query {
		merged.Del(key)
		for _, v := range values {
			merged.Add(key, v)
		}
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}

func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Error)
}
