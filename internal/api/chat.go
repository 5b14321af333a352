package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/antidoom/internal/conversation"
	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/identity"
)

type chatRequest struct {
	Message           string   `json:"message"`
	Todos             []string `json:"todos"`
	IsNewConversation bool     `json:"is_new_conversation"`
}

// SendChatMessage runs one exchange with the scolding agent.
func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.Chat.Send(r.Context(), conversation.SendRequest{
		UserID:          phone,
		Message:         req.Message,
		Tasks:           req.Todos,
		NewConversation: req.IsNewConversation,
		Channel:         "http",
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"response":           res.Reply,
		"conversation_ended": res.Ended,
	})
}

// EndChat closes the caller's conversation and returns its transcript.
func (h *Handler) EndChat(w http.ResponseWriter, r *http.Request) {
	ending, err := h.Chat.End(r.Context(), identity.UserIDFromContext(r.Context()))
	if errors.Is(err, domain.ErrNotFound) {
		Error(w, http.StatusNotFound, "No active conversation found")
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"transcript": ending.Transcript,
		"todos":      ending.Tasks,
	})
}

// CancelChat discards the caller's conversation. It succeeds whether or not
// one existed.
func (h *Handler) CancelChat(w http.ResponseWriter, r *http.Request) {
	h.Chat.Cancel(r.Context(), identity.UserIDFromContext(r.Context()))
	JSON(w, http.StatusOK, map[string]string{"message": "Conversation cancelled"})
}
