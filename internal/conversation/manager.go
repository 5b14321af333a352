package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/antidoom/internal/chatlog"
	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/quota"
)

// DefaultReplyTimeout bounds one provider round-trip.
const DefaultReplyTimeout = 30 * time.Second

// Responder produces the next agent turn for a history.
type Responder interface {
	Reply(ctx context.Context, history []domain.Turn) (string, error)
}

// Quota gates and records chat usage for one counter kind.
type Quota interface {
	Allow(ctx context.Context, subject string) (quota.Snapshot, error)
	Record(ctx context.Context, subject string, amount float64) (quota.Snapshot, error)
}

// SendRequest is one inbound chat message.
type SendRequest struct {
	UserID          string
	Message         string
	Tasks           []string
	NewConversation bool
	Channel         string
}

// SendResult is the agent's answer to a SendRequest.
type SendResult struct {
	ConversationID string         `json:"conversation_id"`
	Reply          string         `json:"response"`
	Ended          bool           `json:"conversation_ended"`
	Usage          quota.Snapshot `json:"usage"`
}

// Manager composes the store, quota and provider into the chat operations.
type Manager struct {
	store     *Store
	responder Responder
	quota     Quota
	log       chatlog.Logger
	timeout   time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithReplyTimeout overrides DefaultReplyTimeout.
func WithReplyTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithChatLog records conversation events to l.
func WithChatLog(l chatlog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager.
func NewManager(store *Store, responder Responder, q Quota, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		responder: responder,
		quota:     q,
		log:       chatlog.Noop{},
		timeout:   DefaultReplyTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the underlying conversation store.
func (m *Manager) Store() *Store { return m.store }

// Start begins a fresh conversation for userID.
func (m *Manager) Start(_ context.Context, userID string, tasks []string) (*domain.Conversation, error) {
	conv, err := m.store.Start(userID, tasks)
	if err != nil {
		return nil, err
	}
	m.logEvent(conv.UserID, conv.ID, "", chatlog.EventConversationStarted, "", map[string]any{"tasks": len(tasks)})
	return conv, nil
}

// Send runs one exchange: validate, check quota, append the user turn, call
// the provider without holding locks, then append the reply and record usage.
// A failed provider call removes the user turn again and records nothing.
// A failed usage record is logged and does not fail the send.
func (m *Manager) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := ValidateMessage(req.Message); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, domain.NewValidationError("user_id", "is required")
	}

	allowed, err := m.quota.Allow(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	x, err := m.store.begin(req.UserID, req.Message, req.Tasks, req.NewConversation)
	if err != nil {
		return nil, err
	}
	if x.started {
		m.logEvent(req.UserID, x.conversationID, req.Channel, chatlog.EventConversationStarted, "", map[string]any{"tasks": len(req.Tasks)})
	}
	m.logEvent(req.UserID, x.conversationID, req.Channel, chatlog.EventUserMessage, req.Message, nil)

	ended := DetectEnd(req.Message)

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	reply, err := m.responder.Reply(callCtx, x.history)
	cancel()
	if err != nil {
		m.store.abort(req.UserID, x, req.Message)
		m.logEvent(req.UserID, x.conversationID, req.Channel, chatlog.EventProviderFailed, "", map[string]any{"error": err.Error()})
		if !errors.Is(err, domain.ErrProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrProvider, err)
		}
		return nil, err
	}

	if err := m.store.complete(req.UserID, x, reply); err != nil {
		slog.Warn("Discarding reply for replaced conversation",
			"user_id", req.UserID, "conversation_id", x.conversationID)
		return nil, err
	}
	m.logEvent(req.UserID, x.conversationID, req.Channel, chatlog.EventAgentMessage, reply, map[string]any{"conversation_ended": ended})

	// The reply is committed to history at this point, so it is returned even
	// when usage cannot be recorded. Usage then reports the pre-send state.
	usage, err := m.quota.Record(ctx, req.UserID, 1)
	if err != nil {
		slog.Error("Failed to record chat usage", "error", err, "user_id", req.UserID)
		usage = allowed
	}

	return &SendResult{
		ConversationID: x.conversationID,
		Reply:          reply,
		Ended:          ended,
		Usage:          usage,
	}, nil
}

// End tears down userID's conversation and returns the transcript.
func (m *Manager) End(_ context.Context, userID string) (*Ending, error) {
	ending, err := m.store.End(userID)
	if err != nil {
		return nil, err
	}
	m.logEvent(userID, ending.ConversationID, "", chatlog.EventConversationEnded, ending.Transcript, nil)
	return ending, nil
}

// Cancel discards userID's conversation if any. It never fails.
func (m *Manager) Cancel(_ context.Context, userID string) bool {
	id, ok := m.store.Cancel(userID)
	if ok {
		m.logEvent(userID, id, "", chatlog.EventConversationCancelled, "", nil)
	}
	return ok
}

func (m *Manager) logEvent(userID, conversationID, channel, eventType, content string, meta map[string]any) {
	if channel == "" {
		channel = "chat"
	}
	m.log.Log(chatlog.Event{
		UserID:         userID,
		ConversationID: conversationID,
		Channel:        channel,
		EventType:      eventType,
		Content:        content,
		Meta:           meta,
	})
}
