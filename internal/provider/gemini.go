package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/antidoom/internal/domain"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.5-flash-lite"
	// DefaultChatTimeout bounds one generateContent call.
	DefaultChatTimeout = 30 * time.Second
)

// Gemini calls the generateContent endpoint.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// GeminiOption configures Gemini.
type GeminiOption func(*Gemini)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) GeminiOption {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithModel selects the model name.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpClient = c }
}

// WithTimeout overrides DefaultChatTimeout.
func WithTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) { g.timeout = d }
}

// NewGemini creates a client. An empty key is accepted so the server can
// start without AI configured; every call then fails with ErrProvider.
func NewGemini(apiKey string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		model:      DefaultGeminiModel,
		timeout:    DefaultChatTimeout,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

var errNoAPIKey = errors.New("GEMINI_API_KEY is not configured")

// Reply sends the full history and returns the model's next turn.
func (g *Gemini) Reply(ctx context.Context, history []domain.Turn) (string, error) {
	contents := make([]geminiContent, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Speaker == domain.SpeakerAgent {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Text}}})
	}
	return g.generate(ctx, geminiRequest{Contents: contents})
}

// Generate sends a single prompt with no role and returns the text answer.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
}

func (g *Gemini) generate(ctx context.Context, body geminiRequest) (string, error) {
	if g.apiKey == "" {
		return "", providerErr("gemini", "configure", errNoAPIKey)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", providerErr("gemini", "request", err)
	}
	if err := checkResponse("gemini", resp); err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", providerErr("gemini", "decode response", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", providerErr("gemini", "read response", errors.New("no candidates returned"))
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
