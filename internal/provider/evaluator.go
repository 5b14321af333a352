package provider

import (
	"context"
	"fmt"
	"strings"
)

const evaluatorPromptTemplate = `
You are an evaluator for an 'Anti-Doomscroll' app.
A user just had a conversation with an AI scolder/coach to try and unblock their distracted apps.
Based on the following transcript, did the AI agent (scolder) explicitly or implicitly agree that the user has completed their tasks and deserves to have their apps unblocked?

Transcript:
%s

Respond with ONLY 'YES' if they should be unblocked, or 'NO' if they should not be unblocked.
`

// Generator completes a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Evaluator judges whether a transcript earns an unblock.
type Evaluator struct {
	gen Generator
}

// NewEvaluator creates an Evaluator on top of gen.
func NewEvaluator(gen Generator) *Evaluator {
	return &Evaluator{gen: gen}
}

// Evaluate asks the model for a verdict on transcript.
func (e *Evaluator) Evaluate(ctx context.Context, transcript string) (bool, error) {
	text, err := e.gen.Generate(ctx, fmt.Sprintf(evaluatorPromptTemplate, transcript))
	if err != nil {
		return false, err
	}
	return ParseDecision(text), nil
}

// ParseDecision reports whether "YES" appears anywhere in the normalised answer.
func ParseDecision(text string) bool {
	return strings.Contains(strings.ToUpper(strings.TrimSpace(text)), "YES")
}
