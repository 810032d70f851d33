package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/relaydesk/relaydesk/internal/adapter/otel"
	"github.com/relaydesk/relaydesk/internal/service"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

// Pinger reports storage liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	processor *service.Processor
	runner    *service.Runner
	send      *service.SendService
	takeover  *service.TakeoverService

	appSecret   string
	verifyToken string

	db      Pinger
	metrics *otel.Metrics
}

// NewHandlers creates the handler set. appSecret signs inbound webhook
// bodies; verifyToken answers the subscription handshake.
func NewHandlers(processor *service.Processor, runner *service.Runner, send *service.SendService, takeover *service.TakeoverService, appSecret, verifyToken string) *Handlers {
	return &Handlers{
		processor:   processor,
		runner:      runner,
		send:        send,
		takeover:    takeover,
		appSecret:   appSecret,
		verifyToken: verifyToken,
	}
}

// SetPinger attaches a storage pinger for the readiness probe.
func (h *Handlers) SetPinger(db Pinger) {
	h.db = db
}

// SetMetrics attaches metric instruments.
func (h *Handlers) SetMetrics(m *otel.Metrics) {
	h.metrics = m
}

// VerifyWebhook answers the provider's subscription handshake: echo the
// challenge only when the mode and verify token both match. Anything else
// fails closed.
func (h *Handlers) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if !whatsapp.VerifyHandshake(mode, token, challenge, h.verifyToken) {
		slog.Warn("webhook verification failed", "mode", mode)
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	slog.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// ReceiveWebhook ingests an inbound event batch. The signature is checked
// over the exact raw bytes before any parsing. Processing is detached:
// the 200 is written first so provider retries are never caused by slow
// or failing downstream work.
func (h *Handlers) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	if !whatsapp.VerifySignature(body, r.Header.Get(whatsapp.SignatureHeader), h.appSecret) {
		if h.metrics != nil {
			h.metrics.SignatureFailures.Add(r.Context(), 1)
		}
		slog.Warn("webhook signature verification failed")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload whatsapp.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("webhook payload parse failed", "error", err)
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	h.runner.Go(func(ctx context.Context) {
		h.processor.Process(ctx, &payload)
	})
}

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// SendMessage sends an outbound text message through the provider.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.SendRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	id, err := h.send.Send(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sendResponse{Success: true, MessageID: id})
	case errors.Is(err, service.ErrHumanMode):
		// 200 so automated callers treat it as final, not retryable.
		writeJSON(w, http.StatusOK, map[string]any{
			"error":   "Conversation is in human mode",
			"blocked": true,
		})
	case errors.Is(err, service.ErrWindowExpired):
		writeJSON(w, http.StatusOK, map[string]any{
			"error":             "24-hour messaging window expired. Template message required.",
			"template_required": true,
		})
	default:
		writeDomainError(w, err, "Conversation not found")
	}
}

type aiResponseRequest struct {
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AIResponse persists an AI-generated reply delivered by the workflow runner.
func (h *Handlers) AIResponse(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[aiResponseRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.ConversationID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: conversation_id, content")
		return
	}

	msg, err := h.takeover.AIResponse(r.Context(), req.ConversationID, req.Content, req.Metadata)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sendResponse{Success: true, MessageID: msg.ID})
	case errors.Is(err, service.ErrRejected):
		writeJSON(w, http.StatusOK, map[string]any{
			"error":    "Conversation is in human mode",
			"rejected": true,
		})
	default:
		writeDomainError(w, err, "Conversation not found")
	}
}

type takeoverRequest struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	Reason         string `json:"reason,omitempty"`
}

// HumanTakeover flips a conversation from automation to a human agent.
func (h *Handlers) HumanTakeover(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[takeoverRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.ConversationID == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: conversation_id, agent_id")
		return
	}

	if err := h.takeover.HumanTakeover(r.Context(), req.ConversationID, req.AgentID, req.Reason); err != nil {
		writeDomainError(w, err, "Conversation not found")
		return
	}

	assigned := req.AgentID
	if assigned == service.UnassignedAgent {
		assigned = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"conversation_id":   req.ConversationID,
		"assigned_agent_id": assigned,
	})
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe; it fails when storage is unreachable.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
