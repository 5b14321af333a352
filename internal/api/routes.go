package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/antidoom/internal/identity"
)

// RegisterRoutes mounts every REST endpoint on r. Routes that act on a user's
// data sit behind identity.Require.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/health/ready", h.Ready)

	r.Post("/otp/send", h.SendOTP)
	r.Post("/otp/verify", h.VerifyOTP)

	r.Post("/hume/evaluate-transcript", h.EvaluateTranscript)
	r.Post("/hume-webhook", h.HumeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(identity.Require)

		r.Route("/todos", func(r chi.Router) {
			r.Get("/", h.ListTodos)
			r.Post("/", h.AddTodo)
			r.Put("/{id}", h.UpdateTodo)
			r.Delete("/{id}", h.DeleteTodo)
		})

		r.Get("/profile/premium-status", h.PremiumStatus)
		r.Post("/profile/sync-premium", h.SyncPremium)

		r.Get("/call-usage/check-limit", h.CheckCallLimit)
		r.Post("/call-usage/record-duration", h.RecordCallDuration)
		r.Get("/manual-unblock/check-limit", h.CheckManualUnblockLimit)
		r.Post("/manual-unblock/record", h.RecordManualUnblock)

		r.Get("/chat/check-limit", h.CheckChatLimit)
		r.Post("/chat/message", h.SendChatMessage)
		r.Post("/chat/end", h.EndChat)
		r.Delete("/chat/cancel", h.CancelChat)

		r.Post("/hume/create-session", h.CreateVoiceSession)

		r.Delete("/account/delete", h.DeleteAccount)
	})
}
