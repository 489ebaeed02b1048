package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.User, error)
	GetPublicProfile(ctx context.Context, username string) (*model.PublicProfile, error)
	// Withdraw はユーザーの退会処理を実行する。
	// セッションを削除した後にユーザーを削除する。ボトル、動画、コメントはカスケード削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// updateProfileRequest はプロフィール更新リクエスト。省略したフィールドは変更しない。
type updateProfileRequest struct {
	Name      *string `json:"name" validate:"omitnil,max=100"`
	Username  *string `json:"username" validate:"omitnil,username"`
	AvatarURL *string `json:"avatar_url" validate:"omitnil,omitempty,url"`
	Bio       *string `json:"bio" validate:"omitnil,max=500"`
	Location  *string `json:"location" validate:"omitnil,max=100"`
}

// profileResponse はログインユーザー自身のプロフィール。
type profileResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Username         string    `json:"username"`
	AvatarURL        string    `json:"avatar_url"`
	Bio              string    `json:"bio"`
	Location         string    `json:"location"`
	ProfileVersion   int       `json:"profile_version"`
	ProfileUpdatedAt time.Time `json:"profile_updated_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// publicProfileResponse は公開プロフィール。
type publicProfileResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	AvatarURL   string    `json:"avatar_url"`
	Bio         string    `json:"bio"`
	Location    string    `json:"location"`
	SpiritCount int       `json:"spirit_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func toProfileResponse(u *model.User) profileResponse {
	return profileResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Username:         u.UsernameOrEmpty(),
		AvatarURL:        u.AvatarURL,
		Bio:              u.Bio,
		Location:         u.Location,
		ProfileVersion:   u.ProfileVersion,
		ProfileUpdatedAt: u.ProfileUpdatedAt,
		CreatedAt:        u.CreatedAt,
	}
}

// GetMe はログインユーザーのプロフィールを返す。
// GET /api/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// UpdateMe はログインユーザーのプロフィールを部分更新する。
// PATCH /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, model.ProfilePatch{
		Name:      req.Name,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
		Location:  req.Location,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// GetPublic はユーザー名で公開プロフィールを返す。
// GET /api/users/{username}
func (h *UserHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetPublicProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, publicProfileResponse{
		ID:          profile.ID,
		Name:        profile.Name,
		Username:    profile.Username,
		AvatarURL:   profile.AvatarURL,
		Bio:         profile.Bio,
		Location:    profile.Location,
		SpiritCount: profile.SpiritCount,
		CreatedAt:   profile.CreatedAt,
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
