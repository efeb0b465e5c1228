package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type APIClient struct {
	serverURL  string
	adminToken string
	httpClient *http.Client
}

type apiError struct {
	Error string `json:"error"`
}

type EmailStatus struct {
	Status        string `json:"status"`
	SentAt        string `json:"sent_at,omitempty"`
	LinkClickedAt string `json:"link_clicked_at,omitempty"`
	LinkUsedAt    string `json:"link_used_at,omitempty"`
}

type TriageEntry struct {
	UserID        string      `json:"user_id"`
	Email         string      `json:"email"`
	Stage         string      `json:"stage"`
	Urgency       int         `json:"urgency"`
	MeetingStatus string      `json:"meeting_status"`
	MeetingDate   string      `json:"meeting_date,omitempty"`
	EmailStatus   EmailStatus `json:"email_status"`
}

type TriageResponse struct {
	Entries []TriageEntry `json:"entries"`
}

func NewAPIClient(serverURL, adminToken string) *APIClient {
	return &APIClient{
		serverURL:  strings.TrimRight(strings.TrimSpace(serverURL), "/"),
		adminToken: strings.TrimSpace(adminToken),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *APIClient) FetchTriage(ctx context.Context) ([]TriageEntry, error) {
	var resp TriageResponse
	if err := c.doJSON(ctx, http.MethodGet, "/operator/triage", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	body := bytes.NewReader(nil)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
