package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// TestRouterIntegration_ProtectedRoutes は
// Auth -> CSRF -> RateLimit のチェーンがchi.Routerで正しく動作することを検証する。
func TestRouterIntegration_ProtectedRoutes(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(100, 100))
	defer rl.Stop()

	csrfConfig := CSRFConfig{CookieSecure: false}

	r := chi.NewRouter()
	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewAuthMiddleware(sessionRepoWith("router-test-session", "user-router-test"), bearerWith("mobile-token", "user-mobile")))
		r.Use(NewCSRFMiddleware(csrfConfig))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/spirits", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
		r.Post("/api/spirits", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
	})

	tests := []struct {
		name       string
		method     string
		cookie     string
		bearer     string
		csrf       string
		wantStatus int
		wantUser   string
	}{
		{"GET with session", http.MethodGet, "router-test-session", "", "", http.StatusOK, "user-router-test"},
		{"GET without session", http.MethodGet, "", "", "", http.StatusUnauthorized, ""},
		{"POST with session and csrf", http.MethodPost, "router-test-session", "", "test-csrf-token", http.StatusCreated, "user-router-test"},
		{"POST with session without csrf", http.MethodPost, "router-test-session", "", "", http.StatusForbidden, ""},
		{"POST without session", http.MethodPost, "", "", "", http.StatusUnauthorized, ""},
		{"POST with bearer without csrf", http.MethodPost, "", "mobile-token", "", http.StatusCreated, "user-mobile"},
		{"POST with invalid bearer", http.MethodPost, "", "forged", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/spirits", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			if tt.csrf != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.csrf})
				req.Header.Set(csrfHeaderName, tt.csrf)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantUser == "" {
				return
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["user_id"] != tt.wantUser {
				t.Errorf("user_id = %q, want %q", body["user_id"], tt.wantUser)
			}
		})
	}

	t.Run("CSRF token endpoint needs no auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}
