// Package client is a small HTTP client for the assignment API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inspector-rotation/internal/domain"
)

// RetryPolicy controls retries of idempotent requests.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// Client talks to a running assignd.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
}

// New creates a client for the API at baseURL, e.g. http://localhost:8080.
func New(baseURL string, retry RetryPolicy) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry: retry,
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Is lets callers match API errors against the domain sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNoEligibleWorkers:
		return e.StatusCode == http.StatusUnprocessableEntity
	case domain.ErrBackendUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable
	case domain.ErrComplaintNotFound, domain.ErrInspectorNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Rotation mirrors the GET /rotation response.
type Rotation struct {
	Cursor    domain.RotationState `json:"cursor"`
	Persisted bool                 `json:"persisted"`
	PoolSize  int                  `json:"pool_size"`
	Pool      []*domain.Inspector  `json:"pool"`
	Next      *domain.Inspector    `json:"next,omitempty"`
}

// SubmitComplaint files a complaint and returns it with its assigned inspector.
func (c *Client) SubmitComplaint(ctx context.Context, subject, description string) (*domain.Complaint, error) {
	var out domain.Complaint
	body := map[string]string{"subject": subject, "description": description}
	// Not retried: a lost response would otherwise submit the complaint twice.
	return &out, c.do(ctx, http.MethodPost, "/complaints", body, &out, false)
}

// AssignComplaint retriggers assignment of a pending complaint.
func (c *Client) AssignComplaint(ctx context.Context, id string) (*domain.Complaint, error) {
	var out domain.Complaint
	return &out, c.do(ctx, http.MethodPost, "/complaints/"+url.PathEscape(id)+"/assign", nil, &out, true)
}

// GetComplaint fetches one complaint by ID.
func (c *Client) GetComplaint(ctx context.Context, id string) (*domain.Complaint, error) {
	var out domain.Complaint
	return &out, c.do(ctx, http.MethodGet, "/complaints/"+url.PathEscape(id), nil, &out, true)
}

// ListComplaints returns up to limit complaints, newest first.
func (c *Client) ListComplaints(ctx context.Context, limit int) ([]*domain.Complaint, error) {
	var out []*domain.Complaint
	return out, c.do(ctx, http.MethodGet, fmt.Sprintf("/complaints?limit=%d", limit), nil, &out, true)
}

// RegisterInspector adds an active inspector to the rotation.
func (c *Client) RegisterInspector(ctx context.Context, name, email string) (*domain.Inspector, error) {
	var out domain.Inspector
	body := map[string]string{"name": name, "email": email}
	return &out, c.do(ctx, http.MethodPost, "/inspectors", body, &out, false)
}

// SetInspectorActive moves an inspector into or out of the rotation.
func (c *Client) SetInspectorActive(ctx context.Context, id string, active bool) (*domain.Inspector, error) {
	var out domain.Inspector
	body := map[string]bool{"active": active}
	return &out, c.do(ctx, http.MethodPut, "/inspectors/"+url.PathEscape(id)+"/active", body, &out, true)
}

// ListInspectors returns every inspector, active or not.
func (c *Client) ListInspectors(ctx context.Context) ([]*domain.Inspector, error) {
	var out []*domain.Inspector
	return out, c.do(ctx, http.MethodGet, "/inspectors", nil, &out, true)
}

// Rotation returns the current cursor, pool and next inspector.
func (c *Client) Rotation(ctx context.Context) (*Rotation, error) {
	var out Rotation
	return &out, c.do(ctx, http.MethodGet, "/rotation", nil, &out, true)
}

// do sends the request, retrying timeouts and 5xx answers when retryable.
func (c *Client) do(ctx context.Context, method, path string, body, out any, retryable bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempts := 1
	if retryable && c.retry.MaxRetries > 0 {
		attempts += c.retry.MaxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(c.retry.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetriable(err) {
			return err
		}
	}
	if attempts > 1 {
		return fmt.Errorf("request failed after %d retries: %w", attempts-1, lastErr)
	}
	return lastErr
}

func isRetriable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}

// doOnce performs a single HTTP request.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
