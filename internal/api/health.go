package api

import (
	"context"
	"net/http"
	"time"
)

// Root answers the bare liveness check used by the mobile client.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the backing store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
		return
	}
	body := map[string]interface{}{"status": "ok", "database": "ok"}
	if h.Chat != nil {
		body["active_conversations"] = h.Chat.Store().Len()
	}
	JSON(w, http.StatusOK, body)
}
