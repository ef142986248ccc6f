package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"horizons/internal/model"
)

// Client talks to the horizons authority over its REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates an API client for the authority at baseURL. apiKey may
// be empty when the server runs without one.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListHorizons fetches active horizons ordered by sort position.
func (c *Client) ListHorizons(ctx context.Context) ([]model.Horizon, error) {
	var out []model.Horizon
	if err := c.do(ctx, http.MethodGet, "/api/horizons?active=1", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateHorizon persists a new horizon and returns the authoritative record.
func (c *Client) CreateHorizon(ctx context.Context, h model.Horizon) (model.Horizon, error) {
	var out model.Horizon
	if err := c.do(ctx, http.MethodPost, "/api/horizons", h, &out); err != nil {
		return model.Horizon{}, err
	}
	return out, nil
}

// UpdateHorizon replaces a horizon record wholesale.
func (c *Client) UpdateHorizon(ctx context.Context, h model.Horizon) (model.Horizon, error) {
	var out model.Horizon
	if err := c.do(ctx, http.MethodPut, "/api/horizons/"+h.ID, h, &out); err != nil {
		return model.Horizon{}, err
	}
	return out, nil
}

// DeleteHorizon removes a horizon by id.
func (c *Client) DeleteHorizon(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/horizons/"+id, nil, nil)
}

// ListTasks fetches all tasks ordered by creation time.
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTask persists a new task and returns the authoritative record.
func (c *Client) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", t, &out); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

// UpdateTask replaces a task record wholesale.
func (c *Client) UpdateTask(ctx context.Context, t model.Task) (model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPut, "/api/tasks/"+t.ID, t, &out); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

// DeleteTask removes a task by id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, nil)
}

// Health pings the authority and returns its status payload.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
