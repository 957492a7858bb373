package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ComposioClient calls the Composio action gateway, which proxies vendor
// APIs for connected accounts. Only adapters use it; core logic never does.
type ComposioClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewComposioClient creates a client for the given gateway.
func NewComposioClient(baseURL, apiKey string) *ComposioClient {
	return &ComposioClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ActionResult is the gateway's response envelope for an executed action.
type ActionResult struct {
	Data json.RawMessage `json:"data"`
}

// ExecuteAction runs a named vendor action for a connected account.
func (c *ComposioClient) ExecuteAction(ctx context.Context, connectionID, action string, params map[string]any) (*ActionResult, error) {
	body, err := json.Marshal(map[string]any{
		"connectedAccountId": connectionID,
		"input":              params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action request: %w", err)
	}

	url := fmt.Sprintf("%s/actions/%s/execute", c.baseURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("composio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("composio %s returned %d: %s", action, resp.StatusCode, string(text))
	}

	var result ActionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode action response: %w", err)
	}
	return &result, nil
}
