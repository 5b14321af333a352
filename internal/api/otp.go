package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/antidoom/internal/domain"
)

type phoneRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

// SendOTP starts an SMS verification for a phone number.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	status, err := h.OTP.Send(r.Context(), req.Phone)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": status})
}

// VerifyOTP exchanges a correct code for a session token.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	token, err := h.OTP.Verify(r.Context(), req.Phone, req.OTP)
	if errors.Is(err, domain.ErrUnauthorized) {
		Error(w, http.StatusUnauthorized, "Invalid or expired code")
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"token": token})
}
