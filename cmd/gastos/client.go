package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/gastos/internal/config"
)

// apiClient talks to a running `gastos serve`.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(c config.Config) *apiClient {
	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port),
		token:      c.Server.APIToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is gastos serve running? (%w)", err)
	}
	return resp, nil
}

type healthStatus struct {
	Status string `json:"status"`
	Intake string `json:"intake"`
}

func (c *apiClient) health(ctx context.Context) (healthStatus, error) {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return healthStatus{}, err
	}
	var h healthStatus
	if err := decodeJSON(resp, &h); err != nil {
		return healthStatus{}, err
	}
	return h, nil
}

// healthy reports whether a server answers /health.
func (c *apiClient) healthy(ctx context.Context) bool {
	_, err := c.health(ctx)
	return err == nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
