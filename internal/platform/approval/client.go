// Package approval talks to the issuer approval server that co-signs
// transactions moving regulated (auth-required) assets.
package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// StatusRevised is the only approval response that allows submission.
const StatusRevised = "revised"

// Client posts unsigned envelopes to the approval server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the approval endpoint URL.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type approveRequest struct {
	Tx string `json:"tx"`
}

type approveResponse struct {
	Status  string `json:"status"`
	Tx      string `json:"tx"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Approve sends envelope (base64 XDR) for approval and returns the revised
// envelope to sign. Any status other than "revised" yields
// domain.ErrApprovalRejected, which is not worth retrying.
func (c *Client) Approve(ctx context.Context, envelope string) (string, error) {
	payload, err := json.Marshal(approveRequest{Tx: envelope})
	if err != nil {
		return "", fmt.Errorf("approval: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("approval: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("approval: %w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("approval: read response: %w", err)
	}

	var out approveResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("approval: %w: HTTP %d", domain.ErrNetwork, resp.StatusCode)
		}
		return "", fmt.Errorf("approval: decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if out.Status != StatusRevised || out.Tx == "" {
		reason := out.Error
		if reason == "" {
			reason = out.Message
		}
		return "", fmt.Errorf("approval: status %q %s: %w", out.Status, reason, domain.ErrApprovalRejected)
	}
	return out.Tx, nil
}
