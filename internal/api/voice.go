package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/antidoom/internal/chatlog"
	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/identity"
)

type voiceSessionRequest struct {
	Todos   []todoRequest `json:"todos"`
	Minutes int           `json:"minutes"`
}

type evaluateRequest struct {
	Transcript string `json:"transcript"`
}

type humeEvent struct {
	Type       string `json:"type"`
	ChatID     string `json:"chat_id"`
	Transcript string `json:"transcript"`
}

// CreateVoiceSession checks the caller's call allowance and returns the
// websocket URL and variables for a voice session.
func (h *Handler) CreateVoiceSession(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())

	var req voiceSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	snap, err := h.Quota.Allow(r.Context(), phone, domain.KindCallSeconds)
	if err != nil {
		WriteError(w, err)
		return
	}

	tasks := make([]string, len(req.Todos))
	for i, t := range req.Todos {
		tasks[i] = t.Task
	}

	session, err := h.Voice.NewSession(r.Context(), tasks, req.Minutes)
	if err != nil {
		WriteError(w, err)
		return
	}
	slog.Info("Voice session created", "user_id", phone, "remaining_seconds", snap.Remaining)
	JSON(w, http.StatusOK, session)
}

// EvaluateTranscript asks the evaluator whether the transcript earns an unblock.
func (h *Handler) EvaluateTranscript(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		JSON(w, http.StatusOK, map[string]interface{}{"unblock": false, "message": "No transcript provided"})
		return
	}

	unblock, err := h.Evaluator.Evaluate(r.Context(), req.Transcript)
	if err != nil {
		WriteError(w, err)
		return
	}
	slog.Info("Transcript evaluated", "user_id", identity.UserIDFromContext(r.Context()), "unblock", unblock)

	message := "You were not able to convince the AI! Finish your tasks!"
	if unblock {
		message = "Great job! You convinced the AI. Apps are now unblocked."
	}
	JSON(w, http.StatusOK, map[string]interface{}{"unblock": unblock, "message": message})
}

// HumeWebhook records transcripts of finished voice sessions.
func (h *Handler) HumeWebhook(w http.ResponseWriter, r *http.Request) {
	var event humeEvent
	if err := decodeJSON(w, r, &event); err != nil {
		WriteError(w, err)
		return
	}

	if event.Type == "session_ended" {
		userID := identity.UserIDFromContext(r.Context())
		if userID == "" {
			userID = "hume"
		}
		slog.Info("Voice session ended", "chat_id", event.ChatID, "transcript_chars", len(event.Transcript))
		h.ChatLog.Log(chatlog.Event{
			UserID:         userID,
			ConversationID: event.ChatID,
			Channel:        "voice",
			EventType:      chatlog.EventVoiceTranscript,
			Content:        event.Transcript,
		})
	}
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
