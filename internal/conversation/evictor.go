package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/antidoom/internal/chatlog"
)

const evictionInterval = 5 * time.Minute

// EvictCallback is called for each user whose conversation was evicted.
type EvictCallback func(userID string)

// Evictor periodically drops conversations that have been idle past a TTL.
type Evictor struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	log      chatlog.Logger
	onEvict  []EvictCallback
}

// NewEvictor creates an evictor for store. A zero ttl disables eviction.
func NewEvictor(store *Store, ttl time.Duration, log chatlog.Logger, onEvict ...EvictCallback) *Evictor {
	if log == nil {
		log = chatlog.Noop{}
	}
	return &Evictor{
		store:    store,
		ttl:      ttl,
		interval: evictionInterval,
		log:      log,
		onEvict:  onEvict,
	}
}

// Run sweeps on every tick until ctx is done. It always returns nil so it
// can run under an errgroup alongside the HTTP server.
func (e *Evictor) Run(ctx context.Context) error {
	if e.ttl <= 0 {
		slog.Info("Conversation eviction disabled")
		return nil
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	slog.Info("Conversation evictor started", "interval", e.interval, "ttl", e.ttl)

	for {
		select {
		case <-ticker.C:
			e.Sweep()
		case <-ctx.Done():
			slog.Info("Conversation evictor shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Sweep evicts idle conversations once and returns how many were removed.
func (e *Evictor) Sweep() int {
	evicted := e.store.EvictIdle(e.ttl)
	if len(evicted) == 0 {
		return 0
	}

	slog.Info("Evicting idle conversations", "count", len(evicted))
	for userID, conversationID := range evicted {
		e.log.Log(chatlog.Event{
			UserID:         userID,
			ConversationID: conversationID,
			Channel:        "chat",
			EventType:      chatlog.EventConversationEvicted,
		})
		for _, cb := range e.onEvict {
			cb(userID)
		}
	}
	return len(evicted)
}
