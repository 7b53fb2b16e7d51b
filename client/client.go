// Package client talks to the portal's queue endpoints and implements the
// viewer side of the sync protocol: fixed-interval polling, debounced pushes
// from the runner, and suppression of stale echoes right after a local write.
//
// Usage:
//
//	c := client.New("http://localhost:5000", client.WithToken("t0ken"))
//	status, err := c.Status(ctx)
//
//	p := client.NewPoller(c, func(s models.QueueStatus) { render(s) })
//	go p.Run(ctx)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hospital-portal/models"
)

// Client is an HTTP client for the queue API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New returns a Client for the portal at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from the portal.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal: %d %s", e.StatusCode, e.Message)
}

// StatusUpdate is the body of the state write endpoint.
type StatusUpdate struct {
	IsRunning         bool                 `json:"isRunning"`
	CurrentQueueIndex *int                 `json:"currentQueueIndex,omitempty"`
	Doctors           []models.Participant `json:"doctors,omitempty"`
	RunnerName        *string              `json:"runnerName,omitempty"`
	StartTime         *time.Time           `json:"startTime,omitempty"`
}

type sessionResponse struct {
	Success     bool               `json:"success"`
	QueueStatus models.QueueStatus `json:"queueStatus"`
}

type stopResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

type historyResponse struct {
	Success bool                    `json:"success"`
	History []models.SessionHistory `json:"history"`
}

// Status fetches the current queue state.
func (c *Client) Status(ctx context.Context) (models.QueueStatus, error) {
	var status models.QueueStatus
	err := c.do(ctx, http.MethodGet, "/api/queue/status", nil, &status)
	return status, err
}

// Push sends the runner's state. A push with IsRunning=false stops the queue
// and returns the idle view.
func (c *Client) Push(ctx context.Context, u StatusUpdate) (models.QueueStatus, error) {
	if !u.IsRunning {
		if err := c.do(ctx, http.MethodPost, "/api/queue/status", u, &stopResponse{}); err != nil {
			return models.QueueStatus{}, err
		}
		return models.IdleStatus(), nil
	}
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/status", u, &resp)
	return resp.QueueStatus, err
}

// Start begins a session with doctors run by runnerName.
func (c *Client) Start(ctx context.Context, doctors []models.Participant, runnerName string) (models.QueueStatus, error) {
	body := map[string]any{"doctors": doctors, "runnerName": runnerName}
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/start", body, &resp)
	return resp.QueueStatus, err
}

// Advance moves the pointer forward.
func (c *Client) Advance(ctx context.Context) (models.QueueStatus, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/advance", nil, &resp)
	return resp.QueueStatus, err
}

// Retreat moves the pointer back.
func (c *Client) Retreat(ctx context.Context) (models.QueueStatus, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/retreat", nil, &resp)
	return resp.QueueStatus, err
}

// Stop ends the running queue and reports how many records were removed.
func (c *Client) Stop(ctx context.Context, cancelled bool) (int64, error) {
	var resp stopResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/stop", map[string]bool{"cancelled": cancelled}, &resp)
	return resp.DeletedCount, err
}

// History lists finished sessions, newest first. limit <= 0 uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]models.SessionHistory, error) {
	path := "/api/queue/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var resp historyResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.History, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("portal: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("portal: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("portal: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		c.logger.Debug("portal request rejected",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("portal: decode response: %w", err)
	}
	return nil
}
