// Package chatlog writes conversation events as NDJSON for later review.
package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is one logged conversation occurrence.
type Event struct {
	ID             string         `json:"id"`
	Timestamp      string         `json:"ts"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Channel        string         `json:"channel"`
	EventType      string         `json:"event_type"`
	Content        string         `json:"content,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Event types.
const (
	EventConversationStarted   = "conversation_started"
	EventUserMessage           = "user_message"
	EventAgentMessage          = "agent_message"
	EventProviderFailed        = "provider_failed"
	EventConversationEnded     = "conversation_ended"
	EventConversationCancelled = "conversation_cancelled"
	EventConversationEvicted   = "conversation_evicted"
	EventVoiceTranscript       = "voice_transcript"
)

// Logger records events without blocking the caller.
type Logger interface {
	Log(Event)
	Close() error
}

// Config controls where events are written.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Noop discards every event.
type Noop struct{}

// Log discards e.
func (Noop) Log(Event) {}

// Close does nothing.
func (Noop) Close() error { return nil }

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._+-]`)

func sanitize(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

// FileLogger appends events to <dir>/<user>/<conversation>.ndjson and,
// optionally, to a single global file. Writes happen on one goroutine fed by
// a bounded queue; when the queue is full the event is dropped.
type FileLogger struct {
	cfg     Config
	log     *slog.Logger
	queue   chan Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// New returns a FileLogger, or Noop when both outputs are disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
	}

	l := &FileLogger{
		cfg:   cfg,
		log:   logger,
		queue: make(chan Event, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues e, filling in ID and Timestamp when empty.
func (l *FileLogger) Log(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		n := l.dropped.Add(1)
		l.log.Warn("Conversation log queue full, dropping event",
			"user_id", e.UserID, "event_type", e.EventType, "dropped_total", n)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (l *FileLogger) Dropped() int64 { return l.dropped.Load() }

// Close flushes queued events and stops the writer.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *FileLogger) run() {
	defer close(l.done)
	for e := range l.queue {
		line, err := json.Marshal(e)
		if err != nil {
			l.log.Warn("Failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			conv := e.ConversationID
			if conv == "" {
				conv = e.Channel
			}
			path := filepath.Join(l.cfg.Dir, sanitize(e.UserID), sanitize(conv)+".ndjson")
			if err := appendLine(path, line); err != nil {
				l.log.Warn("Failed to write conversation log", "error", err, "path", path)
			}
		}
		if l.cfg.GlobalEnabled {
			if err := appendLine(l.cfg.GlobalPath, line); err != nil {
				l.log.Warn("Failed to write global conversation log", "error", err)
			}
		}
	}
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
