package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookGateway delivers messages by POSTing them to an HTTP relay that
// owns templating and the actual SMTP/API call.
// The base URL is injected from config so tests can point to a local mock.
type WebhookGateway struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookGateway(baseURL string, timeout time.Duration) *WebhookGateway {
	return &WebhookGateway{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the message and expects a 200 or 202 with a JSON body
// containing messageId.
func (g *WebhookGateway) Send(ctx context.Context, msg Message) (*SendResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected provider status: %d", resp.StatusCode)
	}

	var result SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// compile-time check that WebhookGateway implements Gateway
var _ Gateway = (*WebhookGateway)(nil)
