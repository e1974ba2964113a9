package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/antinozorionktr/healthconnect-a2a/internal/reporting"
)

// Client talks to a running launcher's control endpoint. The CLI's service
// subcommands use it so lifecycle operations go through the orchestrator
// that owns the processes.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the control endpoint at host:port.
func NewClient(host string, port int) *Client {
	if host == "" {
		host = "localhost"
	}
	return &Client{
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches the full status document.
func (c *Client) Status(ctx context.Context) (reporting.SystemHealth, error) {
	var status reporting.SystemHealth
	err := c.do(ctx, http.MethodGet, "/api/status", &status)
	return status, err
}

// ServiceStatus fetches one service's snapshot.
func (c *Client) ServiceStatus(ctx context.Context, name string) (reporting.ServiceHealthSnapshot, error) {
	var snapshot reporting.ServiceHealthSnapshot
	err := c.do(ctx, http.MethodGet, "/api/services/"+name, &snapshot)
	return snapshot, err
}

// StartService asks the launcher to start a service.
func (c *Client) StartService(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/services/"+name+"/start", nil)
}

// StopService asks the launcher to stop a service and its dependents.
func (c *Client) StopService(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/services/"+name+"/stop", nil)
}

// RestartService asks the launcher to restart a service.
func (c *Client) RestartService(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/services/"+name+"/restart", nil)
}

// Healthy reports the aggregate verdict via /healthz.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("launcher not reachable at %s (is it running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusServiceUnavailable:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d from /healthz", resp.StatusCode)
	}
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("launcher not reachable at %s (is it running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}
