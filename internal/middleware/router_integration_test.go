package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/vipchannel/internal/model"
)

// newSubscriptionRouter は本番と同じ外側のスタック（Recovery → Logging → SecurityHeaders → CORS）の内側に
// CSRFトークン取得と購読・購読解除ルートを持つルーターを組み立てる。
func newSubscriptionRouter(t *testing.T, subscribed map[string]bool) http.Handler {
	t.Helper()
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "subscriber-session" {
				return nil, nil
			}
			return &model.Session{ID: id, UserID: "U2", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	csrfConfig := CSRFConfig{}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	r.Use(NewSecurityHeadersMiddleware(SecurityHeadersConfig{}))
	r.Use(NewCORSMiddleware("http://localhost:3000"))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(repo))
		r.Use(NewCSRFMiddleware(csrfConfig))
		r.Route("/api/channels/{id}/subscription", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				userID, _ := UserIDFromContext(r.Context())
				subscribed[chi.URLParam(r, "id")+"/"+userID] = true
				w.WriteHeader(http.StatusNoContent)
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				userID, _ := UserIDFromContext(r.Context())
				delete(subscribed, chi.URLParam(r, "id")+"/"+userID)
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})
	return r
}

// TestRouterIntegration_SubscribeThenUnsubscribe はCSRFトークンを取得してから購読・購読解除する流れを検証する。
func TestRouterIntegration_SubscribeThenUnsubscribe(t *testing.T) {
	subscribed := map[string]bool{}
	r := newSubscriptionRouter(t, subscribed)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d, want 200", w.Code)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Token == "" {
		t.Fatalf("failed to get token: %v", err)
	}

	send := func(method string) int {
		req := httptest.NewRequest(method, "/api/channels/C1/subscription", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "subscriber-session"})
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: body.Token})
		req.Header.Set(csrfHeaderName, body.Token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(http.MethodPost); code != http.StatusNoContent {
		t.Fatalf("subscribe status = %d, want 204", code)
	}
	if !subscribed["C1/U2"] {
		t.Fatalf("subscribed = %v, want C1/U2", subscribed)
	}
	if code := send(http.MethodDelete); code != http.StatusNoContent {
		t.Fatalf("unsubscribe status = %d, want 204", code)
	}
	if len(subscribed) != 0 {
		t.Errorf("subscribed = %v, want empty", subscribed)
	}
}

// TestRouterIntegration_PreflightBeforeSession はプリフライトがセッションなしでも204になることを検証する。
func TestRouterIntegration_PreflightBeforeSession(t *testing.T) {
	r := newSubscriptionRouter(t, map[string]bool{})

	req := httptest.NewRequest(http.MethodOptions, "/api/channels/C1/subscription", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

// TestRouterIntegration_RejectionsCarryOuterHeaders は401と403のレスポンスにも
// セキュリティヘッダーとCORSヘッダーが付くことを検証する。
func TestRouterIntegration_RejectionsCarryOuterHeaders(t *testing.T) {
	tests := []struct {
		name     string
		session  string
		wantCode int
	}{
		{"no session", "", http.StatusUnauthorized},
		{"no csrf token", "subscriber-session", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subscribed := map[string]bool{}
			r := newSubscriptionRouter(t, subscribed)

			req := httptest.NewRequest(http.MethodPost, "/api/channels/C1/subscription", nil)
			if tt.session != "" {
				req.AddCookie(&http.Cookie{Name: "session_id", Value: tt.session})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if len(subscribed) != 0 {
				t.Errorf("subscribed = %v, want empty", subscribed)
			}
			if got := w.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
				t.Errorf("Access-Control-Allow-Origin = %q", got)
			}
		})
	}
}
