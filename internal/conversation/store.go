// Package conversation manages per-user scolding-chat state.
package conversation

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/antidoom/internal/domain"
)

// entry guards one user's conversation. A dead entry has been removed from
// the store's map and must not be used; lockers retry with a fresh lookup.
type entry struct {
	mu   sync.Mutex
	conv *domain.Conversation
	dead bool
}

// Ending is what End returns after tearing a conversation down.
type Ending struct {
	ConversationID string   `json:"conversation_id"`
	Transcript     string   `json:"transcript"`
	Tasks          []string `json:"todos"`
}

// exchange is a snapshot taken when a user turn is appended, carried across
// the provider call without holding any lock.
type exchange struct {
	conversationID string
	history        []domain.Turn
	started        bool
}

// Store is the process-wide map from user ID to active conversation.
// Each user has its own lock; the map lock is only held for lookups.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	newID   func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock overrides the store's time source.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty conversation store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock returns userID's entry locked, creating it when create is set.
// Returns nil when no entry exists and create is false.
func (s *Store) lock(userID string, create bool) *entry {
	for {
		s.mu.Lock()
		e, ok := s.entries[userID]
		if !ok {
			if !create {
				s.mu.Unlock()
				return nil
			}
			e = &entry{}
			s.entries[userID] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// unlock releases e, dropping it from the map when it no longer holds a conversation.
func (s *Store) unlock(userID string, e *entry) {
	if e.conv == nil {
		s.mu.Lock()
		if s.entries[userID] == e {
			delete(s.entries, userID)
		}
		e.dead = true
		s.mu.Unlock()
	}
	e.mu.Unlock()
}

func (s *Store) newConversation(userID string, tasks []string) *domain.Conversation {
	now := s.now()
	return &domain.Conversation{
		ID:           s.newID(),
		UserID:       userID,
		History:      seedHistory(tasks),
		Tasks:        slices.Clone(tasks),
		StartedAt:    now,
		LastActiveAt: now,
	}
}

// Start creates a conversation for userID, replacing any existing one.
func (s *Store) Start(userID string, tasks []string) (*domain.Conversation, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	e := s.lock(userID, true)
	defer s.unlock(userID, e)
	e.conv = s.newConversation(userID, tasks)
	return e.conv.Clone(), nil
}

// Get returns a copy of userID's active conversation.
func (s *Store) Get(userID string) (*domain.Conversation, error) {
	e := s.lock(userID, false)
	if e == nil {
		return nil, notFound(userID)
	}
	defer s.unlock(userID, e)
	if e.conv == nil {
		return nil, notFound(userID)
	}
	return e.conv.Clone(), nil
}

// AppendUserTurn appends a user turn to the active conversation.
func (s *Store) AppendUserTurn(userID, text string) error {
	return s.appendTurn(userID, domain.Turn{Speaker: domain.SpeakerUser, Text: text})
}

// AppendAgentTurn appends an agent turn to the active conversation.
func (s *Store) AppendAgentTurn(userID, text string) error {
	return s.appendTurn(userID, domain.Turn{Speaker: domain.SpeakerAgent, Text: text})
}

func (s *Store) appendTurn(userID string, turn domain.Turn) error {
	e := s.lock(userID, false)
	if e == nil {
		return notFound(userID)
	}
	defer s.unlock(userID, e)
	if e.conv == nil {
		return notFound(userID)
	}
	e.conv.History = append(e.conv.History, turn)
	e.conv.LastActiveAt = s.now()
	return nil
}

// TruncateIfNeeded drops middle turns once history exceeds MaxHistoryTurns.
func (s *Store) TruncateIfNeeded(userID string) error {
	e := s.lock(userID, false)
	if e == nil {
		return notFound(userID)
	}
	defer s.unlock(userID, e)
	if e.conv == nil {
		return notFound(userID)
	}
	e.conv.History = truncate(e.conv.History)
	return nil
}

// End removes userID's conversation and returns its transcript.
func (s *Store) End(userID string) (*Ending, error) {
	e := s.lock(userID, false)
	if e == nil {
		return nil, notFound(userID)
	}
	defer s.unlock(userID, e)
	if e.conv == nil {
		return nil, notFound(userID)
	}
	out := &Ending{
		ConversationID: e.conv.ID,
		Transcript:     Transcript(e.conv.History),
		Tasks:          slices.Clone(e.conv.Tasks),
	}
	e.conv = nil
	return out, nil
}

// Cancel discards userID's conversation. It reports whether one existed.
func (s *Store) Cancel(userID string) (string, bool) {
	e := s.lock(userID, false)
	if e == nil {
		return "", false
	}
	defer s.unlock(userID, e)
	if e.conv == nil {
		return "", false
	}
	id := e.conv.ID
	e.conv = nil
	return id, true
}

// Len returns the number of active conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// EvictIdle removes conversations idle for longer than ttl and returns the
// affected user IDs with their conversation IDs.
func (s *Store) EvictIdle(ttl time.Duration) map[string]string {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	users := make([]string, 0, len(s.entries))
	for userID := range s.entries {
		users = append(users, userID)
	}
	s.mu.Unlock()

	evicted := make(map[string]string)
	for _, userID := range users {
		e := s.lock(userID, false)
		if e == nil {
			continue
		}
		if e.conv != nil && e.conv.LastActiveAt.Before(cutoff) {
			evicted[userID] = e.conv.ID
			e.conv = nil
		}
		s.unlock(userID, e)
	}
	return evicted
}

// begin appends the user turn, starting a conversation first when requested
// or when none exists, and snapshots the history for the provider call.
func (s *Store) begin(userID, text string, tasks []string, startNew bool) (*exchange, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	e := s.lock(userID, true)
	defer s.unlock(userID, e)

	started := false
	if startNew || e.conv == nil {
		e.conv = s.newConversation(userID, tasks)
		started = true
	}
	e.conv.History = append(e.conv.History, domain.Turn{Speaker: domain.SpeakerUser, Text: text})
	e.conv.LastActiveAt = s.now()

	return &exchange{
		conversationID: e.conv.ID,
		history:        slices.Clone(e.conv.History),
		started:        started,
	}, nil
}

// complete appends the agent reply and truncates, provided the conversation
// the exchange started in is still the active one.
func (s *Store) complete(userID string, x *exchange, reply string) error {
	e := s.lock(userID, false)
	if e == nil {
		return replaced(userID)
	}
	defer s.unlock(userID, e)
	if e.conv == nil || e.conv.ID != x.conversationID {
		return replaced(userID)
	}
	e.conv.History = append(e.conv.History, domain.Turn{Speaker: domain.SpeakerAgent, Text: reply})
	e.conv.History = truncate(e.conv.History)
	e.conv.LastActiveAt = s.now()
	return nil
}

// abort removes the user turn appended by x after a failed provider call,
// provided it is still the last turn of the same conversation.
func (s *Store) abort(userID string, x *exchange, text string) {
	e := s.lock(userID, false)
	if e == nil {
		return
	}
	defer s.unlock(userID, e)
	if e.conv == nil || e.conv.ID != x.conversationID {
		return
	}
	h := e.conv.History
	if n := len(h); n > pinnedTurns && h[n-1].Speaker == domain.SpeakerUser && h[n-1].Text == text {
		e.conv.History = h[:n-1]
	}
}

func notFound(userID string) error {
	return fmt.Errorf("no active conversation for %s: %w", userID, domain.ErrNotFound)
}

func replaced(userID string) error {
	return fmt.Errorf("conversation for %s ended or was replaced during the reply: %w", userID, domain.ErrNotFound)
}
