package api

import (
	"net/http"
	"time"

	"github.com/ashureev/antidoom/internal/identity"
)

type syncPremiumRequest struct {
	IsPremium bool `json:"is_premium"`
}

// PremiumStatus returns the caller's profile, creating it on first use.
func (h *Handler) PremiumStatus(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())
	p, err := h.Repo.GetOrCreateProfile(r.Context(), phone)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"phone":       p.Phone,
		"is_premium":  p.IsPremium,
		"last_active": p.LastActive.UTC().Format(time.RFC3339),
	})
}

// SyncPremium stores the premium flag reported by the app store client.
func (h *Handler) SyncPremium(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())

	var req syncPremiumRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	p, err := h.Repo.SetPremium(r.Context(), phone, req.IsPremium)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Premium status synced",
		"phone":      p.Phone,
		"is_premium": p.IsPremium,
	})
}
