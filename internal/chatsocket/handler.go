package chatsocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/ashureev/antidoom/internal/api"
	"github.com/ashureev/antidoom/internal/conversation"
	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/identity"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 10 * time.Second
)

// Chat is the conversation surface driven by socket frames.
type Chat interface {
	Send(ctx context.Context, req conversation.SendRequest) (*conversation.SendResult, error)
	End(ctx context.Context, userID string) (*conversation.Ending, error)
	Cancel(ctx context.Context, userID string) bool
}

// inbound is a client frame.
type inbound struct {
	Type              string   `json:"type"`
	Message           string   `json:"message,omitempty"`
	Todos             []string `json:"todos,omitempty"`
	IsNewConversation bool     `json:"is_new_conversation,omitempty"`
}

// outbound is a server frame.
type outbound struct {
	Type              string   `json:"type"`
	Response          string   `json:"response,omitempty"`
	ConversationEnded bool     `json:"conversation_ended,omitempty"`
	Transcript        string   `json:"transcript,omitempty"`
	Todos             []string `json:"todos,omitempty"`
	Status            int      `json:"status,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Handler upgrades requests to chat sockets.
type Handler struct {
	chat     Chat
	registry *Registry
}

// NewHandler creates a Handler.
func NewHandler(chat Chat, registry *Registry) *Handler {
	return &Handler{chat: chat, registry: registry}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("Chat socket request", "user_id", userID, "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(readLimit)

	connID := uuid.NewString()
	h.registry.Register(userID, connID, ws)
	defer h.registry.Unregister(userID, connID, ws)

	ctx := r.Context()
	for {
		var frame inbound
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Debug("WebSocket read ended", "error", err, "user_id", userID)
			}
			return
		}

		reply := h.dispatch(ctx, userID, frame)
		if err := h.write(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, userID string, frame inbound) outbound {
	switch frame.Type {
	case "message":
		res, err := h.chat.Send(ctx, conversation.SendRequest{
			UserID:          userID,
			Message:         frame.Message,
			Tasks:           frame.Todos,
			NewConversation: frame.IsNewConversation,
			Channel:         "ws",
		})
		if err != nil {
			return errorFrame(err)
		}
		return outbound{Type: "response", Response: res.Reply, ConversationEnded: res.Ended}
	case "end":
		ending, err := h.chat.End(ctx, userID)
		if err != nil {
			return errorFrame(err)
		}
		return outbound{Type: "ended", Transcript: ending.Transcript, Todos: ending.Tasks}
	case "cancel":
		h.chat.Cancel(ctx, userID)
		return outbound{Type: "cancelled"}
	case "ping":
		return outbound{Type: "pong"}
	default:
		return errorFrame(domain.NewValidationError("type", "unknown frame type "+frame.Type))
	}
}

func errorFrame(err error) outbound {
	status := api.StatusCode(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Chat socket request failed", "error", err)
	}
	return outbound{Type: "error", Status: status, Error: api.ErrorMessage(err)}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, v outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
