package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relaydesk/relaydesk/internal/adapter/ws"
	"github.com/relaydesk/relaydesk/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. The
// webhook routes authenticate themselves (signature / handshake); the
// automation callbacks share a Bearer secret with the workflow runner.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub, automationSecret string) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/whatsapp", h.VerifyWebhook)
			r.Post("/whatsapp", h.ReceiveWebhook)

			r.Route("/automation", func(r chi.Router) {
				r.Use(middleware.BearerSecret(automationSecret))
				r.Post("/ai-response", h.AIResponse)
				r.Post("/human-takeover", h.HumanTakeover)
			})
		})

		r.Post("/messages/send", h.SendMessage)
	})

	if hub != nil {
		r.Get("/ws", http.HandlerFunc(hub.HandleWS))
	}
}
