// Package api provides the HTTP client the TUI uses against the
// hostline-siem backend.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client handles API communication with the SIEM backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Alert mirrors the alert JSON served by the backend.
type Alert struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Severity       string    `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	SourceIP       string    `json:"source_ip,omitempty"`
	Hostname       string    `json:"hostname,omitempty"`
	RuleID         string    `json:"rule_id,omitempty"`
	Status         string    `json:"status"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
}

// AlertsResponse is the alert list payload.
type AlertsResponse struct {
	Alerts []Alert `json:"alerts"`
	Total  int     `json:"total"`
}

// Stats is the alert statistics payload.
type Stats struct {
	BySeverity  map[string]int `json:"by_severity"`
	ByStatus    map[string]int `json:"by_status"`
	TotalOpen   int            `json:"total_open"`
	TotalAlerts int            `json:"total_alerts"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetHealth fetches health status.
func (c *Client) GetHealth() (*HealthResponse, error) {
	var health HealthResponse
	if err := c.getJSON("/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetStats fetches alert statistics.
func (c *Client) GetStats() (*Stats, error) {
	var stats Stats
	if err := c.getJSON("/v1/alerts/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetAlerts fetches up to limit alerts, optionally filtered by status.
func (c *Client) GetAlerts(limit int, status string) (*AlertsResponse, error) {
	path := fmt.Sprintf("/v1/alerts?limit=%d", limit)
	if status != "" {
		path += "&status=" + status
	}
	var resp AlertsResponse
	if err := c.getJSON(path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Acknowledge marks an alert acknowledged by the given analyst.
func (c *Client) Acknowledge(id int64, by string) error {
	body := map[string]string{}
	if by != "" {
		body["acknowledged_by"] = by
	}
	return c.postJSON(fmt.Sprintf("/v1/alerts/%d/acknowledge", id), body)
}

// CloseAlert closes an alert.
func (c *Client) CloseAlert(id int64) error {
	return c.postJSON(fmt.Sprintf("/v1/alerts/%d/close", id), nil)
}

// RunDetection triggers a detection run and returns the number of
// alerts generated.
func (c *Client) RunDetection() (int, error) {
	resp, err := c.httpClient.Post(c.baseURL+"/v1/detect", "application/json", nil)
	if err != nil {
		return 0, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	var out struct {
		AlertsGenerated int `json:"alerts_generated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.AlertsGenerated, nil
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(path string, body any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
