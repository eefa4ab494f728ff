// Package badge calls the external achievement service after a settlement
// commits, so prize wins surface as badges without coupling settlement to
// the achievements domain.
package badge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fxarena/fxarena/internal/domain"
)

// Client implements domain.BadgeEvaluator against the badge service's HTTP
// API. A Client built with an empty base URL is a no-op, which keeps badge
// evaluation optional in deployments without the service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a badge service client. baseURL may be empty to disable
// evaluation.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a badge service is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// EvaluateUserBadges asks the badge service to re-evaluate one user's
// achievements and returns the names of any newly awarded badges.
func (c *Client) EvaluateUserBadges(ctx context.Context, userID string) ([]string, error) {
	if !c.Enabled() {
		return nil, nil
	}

	url := fmt.Sprintf("%s/api/users/%s/badges/evaluate", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("badge: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("badge: evaluate user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("badge: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Awarded []string `json:"awarded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("badge: decode response: %w", err)
	}
	return result.Awarded, nil
}

// Compile-time interface check.
var _ domain.BadgeEvaluator = (*Client)(nil)
