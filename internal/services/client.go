package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"arena-agent/internal/config"
)

// httpService is the shared request core every collaborator client wraps:
// JSON POST with a bounded timeout and a /ping health probe.
type httpService struct {
	name    string
	baseURL string
	client  *http.Client
}

func newHTTPService(name string, cfg config.ServiceConfig) httpService {
	return httpService{
		name:    name,
		baseURL: cfg.URL,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout()) * time.Second,
		},
	}
}

func (s httpService) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", s.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", s.name, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", s.name, err)
	}
	return nil
}

// Healthy probes the service's ping endpoint.
func (s httpService) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("%s: create health request: %w", s.name, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s unhealthy: status %d", s.name, resp.StatusCode)
	}
	return nil
}
