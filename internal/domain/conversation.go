package domain

import (
	"slices"
	"time"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one message in a conversation.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Conversation is the in-memory state of a user's active chat.
// History[0] and History[1] are the system prompt and the opening line.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	History      []Turn    `json:"history"`
	Tasks        []string  `json:"tasks"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Clone returns a deep copy safe to hand out of a locked scope.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.History = slices.Clone(c.History)
	out.Tasks = slices.Clone(c.Tasks)
	return &out
}
