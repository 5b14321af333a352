package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
		wantCreds  string
	}{
		{"wildcard echoes origin", []string{"*"}, "https://app.example", http.MethodGet, http.StatusTeapot, "https://app.example", ""},
		{"explicit origin gets credentials", []string{"https://app.example"}, "https://app.example", http.MethodGet, http.StatusTeapot, "https://app.example", "true"},
		{"unknown origin", []string{"https://app.example"}, "https://evil.example", http.MethodGet, http.StatusTeapot, "", ""},
		{"preflight short-circuits", []string{"*"}, "https://app.example", http.MethodOptions, http.StatusOK, "https://app.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/todos", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Fatalf("allow-credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}
