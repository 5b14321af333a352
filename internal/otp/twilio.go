package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/antidoom/internal/domain"
)

const (
	defaultTwilioBaseURL = "https://verify.twilio.com"
	twilioTimeout        = 10 * time.Second

	// StatusPending is returned after a code has been sent.
	StatusPending = "pending"
	// StatusApproved is returned for a correct code.
	StatusApproved = "approved"
)

// Verifier starts and checks phone verifications.
type Verifier interface {
	StartVerification(ctx context.Context, phone string) (string, error)
	CheckVerification(ctx context.Context, phone, code string) (string, error)
}

// Twilio is a Verifier backed by the Twilio Verify v2 REST API.
type Twilio struct {
	accountSID string
	authToken  string
	serviceSID string
	baseURL    string
	httpClient *http.Client
}

var _ Verifier = (*Twilio)(nil)

// TwilioOption configures Twilio.
type TwilioOption func(*Twilio)

// WithTwilioBaseURL overrides the Verify base URL.
func WithTwilioBaseURL(u string) TwilioOption {
	return func(t *Twilio) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithTwilioHTTPClient sets a custom HTTP client.
func WithTwilioHTTPClient(c *http.Client) TwilioOption {
	return func(t *Twilio) { t.httpClient = c }
}

// NewTwilio creates a Verify client for serviceSID.
func NewTwilio(accountSID, authToken, serviceSID string, opts ...TwilioOption) *Twilio {
	t := &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		serviceSID: serviceSID,
		baseURL:    defaultTwilioBaseURL,
		httpClient: &http.Client{Timeout: twilioTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type verificationResponse struct {
	Status string `json:"status"`
}

// StartVerification sends an SMS code to phone.
func (t *Twilio) StartVerification(ctx context.Context, phone string) (string, error) {
	return t.post(ctx, "Verifications", url.Values{"To": {phone}, "Channel": {"sms"}})
}

// CheckVerification checks code for phone. An expired or already used
// verification is reported by Twilio as 404 and returned as "not_found".
func (t *Twilio) CheckVerification(ctx context.Context, phone, code string) (string, error) {
	status, err := t.post(ctx, "VerificationCheck", url.Values{"To": {phone}, "Code": {code}})
	if errors.Is(err, errVerificationGone) {
		return "not_found", nil
	}
	return status, err
}

var errVerificationGone = fmt.Errorf("%w: twilio: verification not found", domain.ErrProvider)


func (t *Twilio) post(ctx context.Context, resource string, form url.Values) (string, error) {
	if t.accountSID == "" || t.authToken == "" || t.serviceSID == "" {
		return "", fmt.Errorf("%w: twilio: credentials are not configured", domain.ErrProvider)
	}

	endpoint := fmt.Sprintf("%s/v2/Services/%s/%s", t.baseURL, url.PathEscape(t.serviceSID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create twilio request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: twilio: %s: %w", domain.ErrProvider, resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errVerificationGone
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: twilio: %s: status %d: %s", domain.ErrProvider, resource, resp.StatusCode, body)
	}

	var out verificationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: twilio: decode %s: %w", domain.ErrProvider, resource, err)
	}
	return out.Status, nil
}
