package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/antidoom/internal/domain"
)

func geminiServer(t *testing.T, status int, body string, seen *geminiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "k3y", r.URL.Query().Get("key"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiReplyMapsRoles(t *testing.T) {
	var seen geminiRequest
	srv := geminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Prove it."}]}}]}`, &seen)
	g := NewGemini("k3y", WithBaseURL(srv.URL), WithModel("test-model"))

	reply, err := g.Reply(context.Background(), []domain.Turn{
		{Speaker: domain.SpeakerUser, Text: "system"},
		{Speaker: domain.SpeakerAgent, Text: "hello"},
		{Speaker: domain.SpeakerUser, Text: "I did it"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Prove it.", reply)

	require.Len(t, seen.Contents, 3)
	assert.Equal(t, "user", seen.Contents[0].Role)
	assert.Equal(t, "model", seen.Contents[1].Role)
	assert.Equal(t, "I did it", seen.Contents[2].Parts[0].Text)
}

func TestGeminiErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := geminiServer(t, http.StatusInternalServerError, `{"error":"boom"}`, nil)
		_, err := NewGemini("k3y", WithBaseURL(srv.URL), WithModel("test-model")).Generate(context.Background(), "hi")

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
		assert.ErrorIs(t, err, domain.ErrProvider)
	})

	t.Run("no candidates", func(t *testing.T) {
		srv := geminiServer(t, http.StatusOK, `{"candidates":[]}`, nil)
		_, err := NewGemini("k3y", WithBaseURL(srv.URL), WithModel("test-model")).Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, domain.ErrProvider)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewGemini("").Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, domain.ErrProvider)
	})
}

func TestGeminiTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	g := NewGemini("k3y", WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
