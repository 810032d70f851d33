// Package n8n implements the workflow trigger port for an n8n runner.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaydesk/relaydesk/internal/port/workflow"
)

// customerMessagePath is the runner's inbound-message webhook.
const customerMessagePath = "/webhook/customer-message"

// Trigger sends inbound customer messages to n8n for AI processing. The
// runner processes them through its workflow and POSTs the response back
// to the automation callback webhook; this call never waits for that.
type Trigger struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewTrigger creates an n8n trigger. An empty baseURL or secret leaves
// the trigger unconfigured; Trigger then returns ErrNotConfigured.
func NewTrigger(baseURL, secret string, timeout time.Duration) *Trigger {
	return &Trigger{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Trigger fires the customer-message workflow.
func (t *Trigger) Trigger(ctx context.Context, req workflow.TriggerRequest) error {
	if t.baseURL == "" || t.secret == "" {
		return workflow.ErrNotConfigured
	}
	if req.AIAgent == nil {
		return workflow.ErrNoAgent
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("n8n marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+customerMessagePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("n8n request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.secret)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("n8n trigger: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("n8n API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
