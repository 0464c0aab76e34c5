package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient reads the relay's REST endpoints.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient targets a base URL such as "http://127.0.0.1:8080".
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Agents fetches GET /agents.
func (c *HTTPClient) Agents(ctx context.Context) ([]AgentSummary, error) {
	var out []AgentSummary
	if err := c.get(ctx, "/agents", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
