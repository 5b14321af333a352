// Package api provides HTTP handlers for the antidoom API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/antidoom/internal/chatlog"
	"github.com/ashureev/antidoom/internal/conversation"
	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/otp"
	"github.com/ashureev/antidoom/internal/provider"
	"github.com/ashureev/antidoom/internal/quota"
	"github.com/ashureev/antidoom/internal/store"
)

const maxBodyBytes = 1 << 20

// VoiceSessions negotiates realtime voice sessions.
type VoiceSessions interface {
	NewSession(ctx context.Context, tasks []string, minutes int) (*provider.VoiceSession, error)
}

// TranscriptEvaluator decides whether a conversation earns an unblock.
type TranscriptEvaluator interface {
	Evaluate(ctx context.Context, transcript string) (bool, error)
}

// SessionCloser drops any live connections a user holds.
type SessionCloser interface {
	CloseUser(userID string)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Repo      store.Repository
	Quota     *quota.Engine
	Chat      *conversation.Manager
	OTP       *otp.Service
	Voice     VoiceSessions
	Evaluator TranscriptEvaluator
	ChatLog   chatlog.Logger
	Sockets   SessionCloser
	// OTPCounters is set when OTP rate limits live outside Repo (Redis).
	OTPCounters store.CounterStore
}

// Handler serves the REST surface.
type Handler struct {
	Deps
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.ChatLog == nil {
		deps.ChatLog = chatlog.Noop{}
	}
	return &Handler{Deps: deps}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMessage returns the client-facing text for err. Server-side failures
// are reported generically; details stay in the log.
func ErrorMessage(err error) string {
	switch StatusCode(err) {
	case http.StatusBadGateway:
		return "upstream provider error"
	case http.StatusServiceUnavailable:
		return "storage unavailable"
	case http.StatusInternalServerError:
		return "internal error"
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

// WriteError writes err as a JSON error response. Quota denials carry the
// counter state so clients can render remaining usage.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "status", status)
	}

	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		s := exceeded.Snapshot
		JSON(w, status, map[string]interface{}{
			"error":     limitMessage(s),
			"kind":      s.Kind,
			"used":      s.Used,
			"remaining": s.Remaining,
			"limit":     s.Limit,
		})
		return
	}
	Error(w, status, ErrorMessage(err))
}

func limitMessage(s quota.Snapshot) string {
	switch s.Kind {
	case domain.KindCallSeconds:
		return fmt.Sprintf("Daily call limit reached. You've used %.1fs of %.0fs today.", s.Used, s.Limit)
	case domain.KindChatMessages:
		return fmt.Sprintf("Daily message limit reached. You've sent %.0f of %.0f messages today.", s.Used, s.Limit)
	case domain.KindManualUnblocks:
		return fmt.Sprintf("Daily manual unblock limit reached. You've used %.0f of %.0f today.", s.Used, s.Limit)
	case domain.KindOTPSends:
		return "Too many OTP requests, try later"
	}
	return "quota exceeded"
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}
