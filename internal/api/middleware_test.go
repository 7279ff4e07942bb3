package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &fakeRepo{config: map[string]string{AuthTokenKey: testToken}}
	handler := AuthMiddleware(repo, logger)(okHandler())

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantError  string
	}{
		{"missing", "", "", http.StatusUnauthorized, "missing authorization header"},
		{"basic scheme", "Basic abc", "", http.StatusUnauthorized, "invalid authorization format"},
		{"wrong token", "Bearer nope", "", http.StatusUnauthorized, "invalid token"},
		{"bearer", "Bearer " + testToken, "", http.StatusOK, ""},
		{"query token", "", "?token=" + testToken, http.StatusOK, ""},
		{"wrong query token", "", "?token=nope", http.StatusUnauthorized, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				body := decodeJSONBody(t, rr)
				if body["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", body["error"], tt.wantError)
				}
			}
		})
	}
}

type brokenRepo struct {
	fakeRepo
}

func (brokenRepo) GetConfig(ctx context.Context, key string) (string, error) {
	return "", errors.New("db closed")
}

func TestAuthMiddleware_ConfigError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := AuthMiddleware(&brokenRepo{}, logger)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 8 {
		t.Fatalf("request id = %q, want 8 characters", seen)
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID = %q, want %q", got, seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v, want INTERNAL_ERROR", body["code"])
	}
}

func TestCORSMiddleware_AnyOrigin(t *testing.T) {
	handler := CORSMiddleware(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/assets/a/media", nil)
	req.Header.Set("Origin", "http://player.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("ACAO = %q, want *", got)
	}
	exposed := strings.ToLower(rr.Header().Get("Access-Control-Expose-Headers"))
	for _, h := range []string{"content-range", "accept-ranges"} {
		if !strings.Contains(exposed, h) {
			t.Errorf("Access-Control-Expose-Headers = %q, missing %s", exposed, h)
		}
	}
}

func TestCORSMiddleware_Allowlist(t *testing.T) {
	handler := CORSMiddleware([]string{"http://localhost:3000"})(okHandler())

	tests := []struct {
		origin   string
		wantACAO string
	}{
		{"http://localhost:3000", "http://localhost:3000"},
		{"https://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantACAO {
				t.Errorf("ACAO = %q, want %q", got, tt.wantACAO)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	called := false
	handler := CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/assets/a/media", nil)
	req.Header.Set("Origin", "http://player.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Range")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if called {
		t.Error("preflight should not reach the handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if got := strings.ToLower(rr.Header().Get("Access-Control-Allow-Headers")); !strings.Contains(got, "range") {
		t.Errorf("Access-Control-Allow-Headers = %q, want range", got)
	}
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"[::1]", true},
		{"8.8.8.8:12345", false},
		{"192.168.1.1:8080", false},
		{"not-an-ip:1234", false},
		{"garbage", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := isLoopbackRemoteAddr(tc.addr); got != tc.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestLoopbackGuard(t *testing.T) {
	tests := []struct {
		remote     string
		wantStatus int
	}{
		{"127.0.0.1:12345", http.StatusOK},
		{"[::1]:12345", http.StatusOK},
		{"8.8.8.8:12345", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			handler := LoopbackGuard()(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/assets/a/media", nil)
			req.RemoteAddr = tt.remote
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				body := decodeJSONBody(t, rr)
				if body["code"] != "FORBIDDEN" {
					t.Errorf("code = %v, want FORBIDDEN", body["code"])
				}
			}
		})
	}
}

func TestMediaRoute_RejectsRemoteClient(t *testing.T) {
	env := newTestEnv(t, videoAsset("v", 10))

	req := httptest.NewRequest(http.MethodGet, "/assets/v/media", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "8.8.8.8:12345"
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
	if len(env.media.served) != 0 {
		t.Errorf("media served to remote client: %v", env.media.served)
	}
}

func TestHealthRoute_CORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://player.example")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("ACAO = %q, want *", got)
	}
}

func TestHEAD_Media_NoBody(t *testing.T) {
	env := newTestEnv(t, videoAsset("v", 10))
	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodHead, server.URL+"/assets/v/media", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HEAD error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD body length = %d, want 0", len(body))
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", resp.Header.Get("Accept-Ranges"))
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rr, status: http.StatusOK}

	w.Flush()

	if !rr.Flushed {
		t.Error("Flush should reach the underlying writer")
	}
	var _ http.Flusher = w
}
