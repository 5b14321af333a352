package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultHumeBaseURL = "https://api.hume.ai"
	defaultHumeWSURL   = "wss://api.hume.ai/v0/evi/chat"
	// DefaultTokenTimeout bounds the token exchange.
	DefaultTokenTimeout = 10 * time.Second
	// DefaultSessionMinutes is used when the caller gives no call length.
	DefaultSessionMinutes = 15

	tokenRefreshMargin = 30 * time.Second
)

// VoiceSession is what a client needs to open an EVI websocket.
type VoiceSession struct {
	WebSocketURL     string            `json:"websocket_url"`
	InitialVariables map[string]string `json:"initial_variables"`
}

// Hume exchanges client credentials for short-lived EVI access tokens.
type Hume struct {
	apiKey     string
	secretKey  string
	configID   string
	baseURL    string
	wsURL      string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	token   string
	expires time.Time
}

// HumeOption configures Hume.
type HumeOption func(*Hume)

// WithHumeBaseURL overrides the REST base URL.
func WithHumeBaseURL(u string) HumeOption {
	return func(h *Hume) { h.baseURL = strings.TrimRight(u, "/") }
}

// WithHumeWebSocketURL overrides the EVI chat URL handed to clients.
func WithHumeWebSocketURL(u string) HumeOption {
	return func(h *Hume) { h.wsURL = u }
}

// WithHumeHTTPClient sets a custom HTTP client.
func WithHumeHTTPClient(c *http.Client) HumeOption {
	return func(h *Hume) { h.httpClient = c }
}

// WithHumeClock overrides the time source used for token caching.
func WithHumeClock(now func() time.Time) HumeOption {
	return func(h *Hume) { h.now = now }
}

// NewHume creates a client. configID may be empty.
func NewHume(apiKey, secretKey, configID string, opts ...HumeOption) *Hume {
	h := &Hume{
		apiKey:     apiKey,
		secretKey:  secretKey,
		configID:   configID,
		baseURL:    defaultHumeBaseURL,
		wsURL:      defaultHumeWSURL,
		timeout:    DefaultTokenTimeout,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type humeTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccessToken returns a cached token or fetches a new one. Concurrent callers
// share a single in-flight exchange.
func (h *Hume) AccessToken(ctx context.Context) (string, error) {
	h.mu.Lock()
	if h.token != "" && h.now().Before(h.expires) {
		token := h.token
		h.mu.Unlock()
		return token, nil
	}
	h.mu.Unlock()

	// The shared exchange is detached from any one caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := h.group.Do("token", func() (any, error) {
		return h.fetchToken(fetchCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (h *Hume) fetchToken(ctx context.Context) (string, error) {
	if h.apiKey == "" || h.secretKey == "" {
		return "", providerErr("hume", "configure", errors.New("HUME_API_KEY and HUME_SECRET_KEY must be set"))
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/oauth2-cc/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create hume token request: %w", err)
	}
	req.SetBasicAuth(h.apiKey, h.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", providerErr("hume", "token exchange", err)
	}
	if err := checkResponse("hume", resp); err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out humeTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", providerErr("hume", "decode token", err)
	}
	if out.AccessToken == "" {
		return "", providerErr("hume", "token exchange", errors.New("no access_token in response"))
	}

	if out.ExpiresIn > 0 {
		h.mu.Lock()
		h.token = out.AccessToken
		h.expires = h.now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenRefreshMargin)
		h.mu.Unlock()
	}
	return out.AccessToken, nil
}

// NewSession builds the websocket URL and the session variables for a call
// covering tasks. A non-positive minutes falls back to DefaultSessionMinutes.
func (h *Hume) NewSession(ctx context.Context, tasks []string, minutes int) (*VoiceSession, error) {
	token, err := h.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		minutes = DefaultSessionMinutes
	}

	params := url.Values{"access_token": {token}}
	if h.configID != "" {
		params.Set("config_id", h.configID)
	}

	bullets := make([]string, len(tasks))
	for i, task := range tasks {
		bullets[i] = "• " + task
	}

	return &VoiceSession{
		WebSocketURL: h.wsURL + "?" + params.Encode(),
		InitialVariables: map[string]string{
			"todos":   strings.Join(bullets, "\n"),
			"minutes": strconv.Itoa(minutes),
		},
	}, nil
}
