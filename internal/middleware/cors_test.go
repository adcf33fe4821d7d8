package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		wantStatus  int
		wantOrigin  string
		wantCredits bool
	}{
		{"explicit origin", []string{"https://ngong.example"}, "https://ngong.example", http.MethodPost, http.StatusTeapot, "https://ngong.example", true},
		{"wildcard", []string{"*"}, "https://any.example", http.MethodPost, http.StatusTeapot, "https://any.example", false},
		{"unknown origin", []string{"https://ngong.example"}, "https://evil.example", http.MethodPost, http.StatusTeapot, "", false},
		{"preflight", []string{"https://ngong.example"}, "https://ngong.example", http.MethodOptions, http.StatusNoContent, "https://ngong.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/api/chat", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("expected allow-origin %q, got %q", tt.wantOrigin, got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tt.wantCredits {
				t.Fatalf("expected credentials %v, got %v", tt.wantCredits, got)
			}
			if tt.wantOrigin != "" && !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-Ngong-Session-ID") {
				t.Fatal("session header must be allowed")
			}
		})
	}
}
