package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Known Cloud API error codes mapped to actionable messages.
var errorMessages = map[int]string{
	131047: "24-hour window expired - use template message",
	131051: "unsupported message type",
	131052: "media download failed",
	131053: "media upload failed",
	131056: "pair rate limit - too many messages to same user",
	132001: "template does not exist",
}

// APIError is a structured error returned by the Graph API.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	if friendly, ok := errorMessages[e.Code]; ok {
		return fmt.Sprintf("whatsapp error %d: %s", e.Code, friendly)
	}
	return fmt.Sprintf("whatsapp error %d: %s", e.Code, e.Message)
}

// SendResponse is the Graph API response to a send request.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the provider ID assigned to the sent message.
func (r *SendResponse) MessageID() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// Client sends messages through the WhatsApp Cloud (Graph) API.
type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	apiVersion    string
	httpClient    *http.Client
}

// NewClient creates a Cloud API client. baseURL is overridable for tests;
// pass "" for the production Graph endpoint.
func NewClient(baseURL, phoneNumberID, accessToken, apiVersion string) *Client {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	return &Client{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		apiVersion:    apiVersion,
		httpClient:    http.DefaultClient,
	}
}

type sendTextRequest struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             Text   `json:"text"`
}

type apiErrorResponse struct {
	Error APIError `json:"error"`
}

// SendText sends a free-form text message to the given wa_id phone number.
func (c *Client) SendText(ctx context.Context, to, text string) (*SendResponse, error) {
	payload := sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             Text{Body: text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("whatsapp marshal: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Code != 0 {
			return nil, &apiErr.Error
		}
		return nil, fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	var out SendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("whatsapp decode response: %w", err)
	}
	return &out, nil
}
