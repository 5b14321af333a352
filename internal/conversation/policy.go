package conversation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/antidoom/internal/domain"
)

const (
	// MaxMessageChars caps a single user message.
	MaxMessageChars = 3000
	// MaxHistoryTurns bounds the history sent to the provider.
	MaxHistoryTurns = 20
	// pinnedTurns are the system prompt and opening line, never truncated or transcribed.
	pinnedTurns = 2

	// OpeningLine is the agent's fixed first turn.
	OpeningLine = "I see you have some tasks to complete. Let's talk about them. What have you been up to?"
)

const systemPromptTemplate = `You are a good friend that is lightly scolding the user for spending too much time doomscrolling or mindlessly using the internet. The user has the following tasks to do:

%s

Make sure to list quickly the things the user has to do, all of them. Enumerate them. You are skeptical if the user says they finished the tasks but are easy to convince after they provide evidence or explanation.

Keep your responses concise and friendly but firm. Remember the conversation context as it progresses.`

// endPhrases signal that the user wants to wrap up.
var endPhrases = []string{
	"i'm done",
	"i'm finished",
	"conversation is over",
	"we're done",
	"that's it",
	"end conversation",
	"ready to evaluate",
	"done talking",
	"finished talking",
}

// endPhraseGap is how many other words may sit between consecutive words of
// an end phrase. "I'm not done yet" still matches "i'm done".
const endPhraseGap = 1

var endPhraseWords = func() [][]string {
	out := make([][]string, len(endPhrases))
	for i, phrase := range endPhrases {
		out[i] = splitWords(phrase)
	}
	return out
}()

// BuildSystemPrompt renders the scolding persona with tasks as a numbered list.
func BuildSystemPrompt(tasks []string) string {
	lines := make([]string, len(tasks))
	for i, task := range tasks {
		lines[i] = fmt.Sprintf("%d. %s", i+1, task)
	}
	return fmt.Sprintf(systemPromptTemplate, strings.Join(lines, "\n"))
}

// DetectEnd reports whether msg contains one of the end-of-conversation
// phrases. Matching is on whole words, case-insensitive, ignoring punctuation.
func DetectEnd(msg string) bool {
	words := splitWords(msg)
	for _, phrase := range endPhraseWords {
		if containsPhrase(words, phrase) {
			return true
		}
	}
	return false
}

// splitWords lowercases s and splits it on anything but letters, digits and
// in-word apostrophes.
func splitWords(s string) []string {
	s = strings.ToLower(strings.ReplaceAll(s, "’", "'"))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			words = append(words, f)
		}
	}
	return words
}

// containsPhrase reports whether phrase occurs in words in order, with at
// most endPhraseGap other words between consecutive phrase words.
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i, w := range words {
		if w == phrase[0] && followsWithin(words[i+1:], phrase[1:]) {
			return true
		}
	}
	return false
}

func followsWithin(words, phrase []string) bool {
	if len(phrase) == 0 {
		return true
	}
	for i := 0; i <= endPhraseGap && i < len(words); i++ {
		if words[i] == phrase[0] && followsWithin(words[i+1:], phrase[1:]) {
			return true
		}
	}
	return false
}

// ValidateMessage rejects empty and oversized user messages.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return domain.NewValidationError("message", "is required")
	}
	if utf8.RuneCountInString(msg) > MaxMessageChars {
		return domain.NewValidationError("message",
			fmt.Sprintf("too long, maximum %d characters allowed", MaxMessageChars))
	}
	return nil
}

// Transcript renders history after the pinned turns as "You:"/"AI:" lines.
func Transcript(history []domain.Turn) string {
	if len(history) <= pinnedTurns {
		return ""
	}
	lines := make([]string, 0, len(history)-pinnedTurns)
	for _, turn := range history[pinnedTurns:] {
		role := "AI"
		if turn.Speaker == domain.SpeakerUser {
			role = "You"
		}
		lines = append(lines, role+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}

// truncate keeps the pinned turns plus the most recent turns so that the
// result has at most MaxHistoryTurns entries.
func truncate(history []domain.Turn) []domain.Turn {
	if len(history) <= MaxHistoryTurns {
		return history
	}
	keep := MaxHistoryTurns - pinnedTurns
	out := make([]domain.Turn, 0, MaxHistoryTurns)
	out = append(out, history[:pinnedTurns]...)
	out = append(out, history[len(history)-keep:]...)
	return out
}

func seedHistory(tasks []string) []domain.Turn {
	return []domain.Turn{
		{Speaker: domain.SpeakerUser, Text: BuildSystemPrompt(tasks)},
		{Speaker: domain.SpeakerAgent, Text: OpeningLine},
	}
}
