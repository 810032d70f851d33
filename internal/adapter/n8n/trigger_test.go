package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/port/workflow"
)

func TestTriggerSendsPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq workflow.TriggerRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTrigger(srv.URL, "wf-secret", 5*time.Second)
	err := tr.Trigger(context.Background(), workflow.TriggerRequest{
		ConversationID:  "conv-1",
		MessageID:       "msg-1",
		CustomerMessage: "hello",
		Channel:         "whatsapp",
		Contact:         workflow.ContactSummary{ID: "c-1", Phone: "972501234567", Name: "Jane"},
		AIAgent:         &agent.Context{ID: "a-1", Name: "Support Bot", Model: "gpt-4o"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/webhook/customer-message" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer wf-secret" {
		t.Errorf("unexpected auth %s", gotAuth)
	}
	if gotReq.ConversationID != "conv-1" || gotReq.CustomerMessage != "hello" {
		t.Errorf("unexpected payload %+v", gotReq)
	}
	if gotReq.AIAgent == nil || gotReq.AIAgent.Name != "Support Bot" {
		t.Errorf("agent context lost: %+v", gotReq.AIAgent)
	}
}

func TestTriggerNotConfigured(t *testing.T) {
	tr := NewTrigger("", "", time.Second)
	err := tr.Trigger(context.Background(), workflow.TriggerRequest{})
	if !errors.Is(err, workflow.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTriggerSkipsWithoutAgent(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTrigger(srv.URL, "wf-secret", time.Second)
	err := tr.Trigger(context.Background(), workflow.TriggerRequest{
		ConversationID:  "conv-1",
		CustomerMessage: "hello",
	})
	if !errors.Is(err, workflow.ErrNoAgent) {
		t.Fatalf("expected ErrNoAgent, got %v", err)
	}
	if requests != 0 {
		t.Errorf("expected no request to the runner, got %d", requests)
	}
}

func TestTriggerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "workflow not found", http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewTrigger(srv.URL, "secret", time.Second)
	req := workflow.TriggerRequest{AIAgent: &agent.Context{ID: "a-1"}}
	if err := tr.Trigger(context.Background(), req); err == nil {
		t.Fatal("expected error on 4xx response")
	}
}
