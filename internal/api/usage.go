package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/identity"
	"github.com/ashureev/antidoom/internal/quota"
)

type recordDurationRequest struct {
	DurationSeconds *float64 `json:"duration_seconds"`
}

// CheckCallLimit reports today's voice-call allowance.
func (h *Handler) CheckCallLimit(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Quota.Check(r.Context(), identity.UserIDFromContext(r.Context()), domain.KindCallSeconds)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"can_call":          snap.Allowed,
		"remaining_seconds": snap.Remaining,
		"used_seconds":      snap.Used,
		"limit_seconds":     snap.Limit,
	})
}

// RecordCallDuration adds a finished call's length to today's usage. The
// call already happened, so the limit is not enforced here.
func (h *Handler) RecordCallDuration(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())

	var req recordDurationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.DurationSeconds == nil {
		WriteError(w, domain.NewValidationError("duration_seconds", "is required"))
		return
	}

	snap, err := h.Quota.Record(r.Context(), phone, domain.KindCallSeconds, *req.DurationSeconds)
	if err != nil {
		WriteError(w, err)
		return
	}
	slog.Info("Call duration recorded", "user_id", phone, "seconds", *req.DurationSeconds, "used", snap.Used)
	JSON(w, http.StatusOK, map[string]interface{}{
		"message":           "Call duration recorded",
		"used_seconds":      snap.Used,
		"remaining_seconds": snap.Remaining,
		"limit_seconds":     snap.Limit,
	})
}

// CheckManualUnblockLimit reports today's manual unblock allowance.
func (h *Handler) CheckManualUnblockLimit(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Quota.Check(r.Context(), identity.UserIDFromContext(r.Context()), domain.KindManualUnblocks)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"can_unblock":     snap.Allowed,
		"remaining_count": snap.Remaining,
		"used_count":      snap.Used,
		"limit_count":     snap.Limit,
	})
}

// RecordManualUnblock consumes one manual unblock, refusing once the daily
// allowance is spent.
func (h *Handler) RecordManualUnblock(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())

	if _, err := h.Quota.Allow(r.Context(), phone, domain.KindManualUnblocks); err != nil {
		WriteError(w, err)
		return
	}
	snap, err := h.Quota.Record(r.Context(), phone, domain.KindManualUnblocks, 1)
	if err != nil {
		WriteError(w, err)
		return
	}
	slog.Info("Manual unblock recorded", "user_id", phone, "used", snap.Used)
	JSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Manual unblock recorded",
		"used_count":      snap.Used,
		"remaining_count": snap.Remaining,
		"limit_count":     snap.Limit,
	})
}

// CheckChatLimit reports today's chat message allowance.
func (h *Handler) CheckChatLimit(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Quota.Check(r.Context(), identity.UserIDFromContext(r.Context()), domain.KindChatMessages)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, chatLimitBody(snap))
}

func chatLimitBody(snap quota.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"can_send":           snap.Allowed,
		"remaining_messages": snap.Remaining,
		"used_messages":      snap.Used,
		"limit_messages":     snap.Limit,
	}
}
