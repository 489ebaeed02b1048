package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn       func(ctx context.Context, userID string) (*model.User, error)
	updateProfileFn    func(ctx context.Context, userID string, patch model.ProfilePatch) (*model.User, error)
	getPublicProfileFn func(ctx context.Context, username string) (*model.PublicProfile, error)
	withdrawFn         func(ctx context.Context, userID string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, patch)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) GetPublicProfile(ctx context.Context, username string) (*model.PublicProfile, error) {
	if m.getPublicProfileFn != nil {
		return m.getPublicProfileFn(ctx, username)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// --- GET /api/users/me テスト ---

func TestUserHandler_GetMe_ReturnsProfile(t *testing.T) {
	updatedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{
				ID:               userID,
				Email:            "rye@example.com",
				Name:             "Rye Fan",
				Username:         ptr("ryefan"),
				Bio:              "High-rye only",
				ProfileVersion:   3,
				ProfileUpdatedAt: updatedAt,
			}, nil
		},
	}
	h := NewUserHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/users/me", nil), "user-123")
	w := httptest.NewRecorder()

	h.GetMe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body profileResponse
	decodeBody(t, w, &body)
	if body.ID != "user-123" || body.Username != "ryefan" || body.Bio != "High-rye only" {
		t.Errorf("body = %+v", body)
	}
	if body.ProfileVersion != 3 || !body.ProfileUpdatedAt.Equal(updatedAt) {
		t.Errorf("profile version = %d at %v", body.ProfileVersion, body.ProfileUpdatedAt)
	}
}

// --- PATCH /api/users/me テスト ---

func TestUserHandler_UpdateMe_PassesOnlyPresentFields(t *testing.T) {
	var got model.ProfilePatch
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, patch model.ProfilePatch) (*model.User, error) {
			got = patch
			return &model.User{ID: userID, Name: *patch.Name, Username: patch.Username}, nil
		},
	}
	h := NewUserHandler(svc)

	body := `{"name":"Barrel Proof","username":"barrel_proof"}`
	req := withUserID(httptest.NewRequest(http.MethodPatch, "/api/users/me", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	h.UpdateMe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Name == nil || *got.Name != "Barrel Proof" {
		t.Errorf("Name = %v, want Barrel Proof", got.Name)
	}
	if got.Username == nil || *got.Username != "barrel_proof" {
		t.Errorf("Username = %v, want barrel_proof", got.Username)
	}
	if got.Bio != nil || got.Location != nil || got.AvatarURL != nil {
		t.Errorf("absent fields should stay nil: %+v", got)
	}
}

func TestUserHandler_UpdateMe_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"username too short", `{"username":"ab"}`},
		{"username with symbols", `{"username":"bad-name!"}`},
		{"name too long", `{"name":"` + strings.Repeat("a", 101) + `"}`},
		{"bio too long", `{"bio":"` + strings.Repeat("b", 501) + `"}`},
		{"location too long", `{"location":"` + strings.Repeat("c", 101) + `"}`},
		{"avatar not url", `{"avatar_url":"not a url"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockUserService{
				updateProfileFn: func(ctx context.Context, userID string, patch model.ProfilePatch) (*model.User, error) {
					called = true
					return &model.User{}, nil
				},
			}
			h := NewUserHandler(svc)

			req := withUserID(httptest.NewRequest(http.MethodPatch, "/api/users/me", strings.NewReader(tt.body)), "user-123")
			w := httptest.NewRecorder()

			h.UpdateMe(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := decodeAPIError(t, w); body.Code != model.ErrCodeValidation {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
			}
			if called {
				t.Error("service should not be called for invalid input")
			}
		})
	}
}

func TestUserHandler_UpdateMe_UsernameTaken_ReturnsConflict(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, patch model.ProfilePatch) (*model.User, error) {
			return nil, model.NewUsernameTakenError(*patch.Username)
		},
	}
	h := NewUserHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodPatch, "/api/users/me", strings.NewReader(`{"username":"taken"}`)), "user-123")
	w := httptest.NewRecorder()

	h.UpdateMe(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

// --- GET /api/users/{username} テスト ---

func TestUserHandler_GetPublic_ReturnsProfileWithSpiritCount(t *testing.T) {
	svc := &mockUserService{
		getPublicProfileFn: func(ctx context.Context, username string) (*model.PublicProfile, error) {
			if username != "wheater" {
				t.Errorf("username = %q, want %q", username, "wheater")
			}
			return &model.PublicProfile{ID: "u-9", Username: username, SpiritCount: 42}, nil
		},
	}
	h := NewUserHandler(svc)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/users/wheater", nil), "username", "wheater")
	w := httptest.NewRecorder()

	h.GetPublic(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body publicProfileResponse
	decodeBody(t, w, &body)
	if body.SpiritCount != 42 || body.Username != "wheater" {
		t.Errorf("body = %+v", body)
	}
}

func TestUserHandler_GetPublic_Unknown_ReturnsNotFound(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil), "username", "ghost")
	w := httptest.NewRecorder()

	h.GetPublic(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- DELETE /api/users/me テスト ---

func TestUserHandler_Withdraw_Success(t *testing.T) {
	withdrawCalled := false
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			withdrawCalled = true
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return nil
		},
	}
	h := NewUserHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "user-123")
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !withdrawCalled {
		t.Error("expected Withdraw to be called")
	}
}

func TestUserHandler_Withdraw_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	// ユーザーIDを注入しない
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestUserHandler_Withdraw_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"user not found", model.NewUserNotFoundError(), http.StatusNotFound},
		{"internal error", errors.New("database error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				withdrawFn: func(ctx context.Context, userID string) error {
					return tt.err
				},
			}
			h := NewUserHandler(svc)

			req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "user-123")
			w := httptest.NewRecorder()

			h.Withdraw(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
