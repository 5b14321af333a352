// Package provider holds REST clients for the conversational-AI and voice
// services the backend delegates to.
package provider

import (
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/antidoom/internal/domain"
)

// HTTPError is a non-2xx answer from an upstream service.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match domain.ErrProvider.
func (e *HTTPError) Unwrap() error { return domain.ErrProvider }

// checkResponse returns an *HTTPError for non-2xx responses, consuming and
// closing the body in that case.
func checkResponse(name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	_ = resp.Body.Close()
	return &HTTPError{Provider: name, StatusCode: resp.StatusCode, Body: string(body)}
}

func providerErr(name, op string, err error) error {
	return fmt.Errorf("%w: %s: %s: %w", domain.ErrProvider, name, op, err)
}
