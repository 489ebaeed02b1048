package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/video"
)

// VideoServiceInterface は動画ハンドラーが必要とするサービスインターフェース。
type VideoServiceInterface interface {
	Create(ctx context.Context, userID, title, description string, publiclyListed bool) (*video.CreateResult, error)
	ListPublic(ctx context.Context, limit int) ([]*model.Video, error)
	ListMine(ctx context.Context, userID string) ([]*model.Video, error)
	Get(ctx context.Context, viewerID, id string) (*model.Video, error)
	Update(ctx context.Context, userID, id string, patch model.VideoPatch) (*model.Video, error)
	Delete(ctx context.Context, userID, id string) error
	Playback(ctx context.Context, viewerID, id string) (*video.Playback, error)
	Reupload(ctx context.Context, userID, id string) (*video.CreateResult, error)
}

// VideoReconciler は動画の照合を実行するインターフェース。
type VideoReconciler interface {
	Reconcile(ctx context.Context, videoID string) *video.Report
}

// VideoHandler は動画関連のHTTPハンドラー。
type VideoHandler struct {
	service    VideoServiceInterface
	reconciler VideoReconciler
}

// NewVideoHandler はVideoHandlerを生成する。
func NewVideoHandler(service VideoServiceInterface, reconciler VideoReconciler) *VideoHandler {
	return &VideoHandler{
		service:    service,
		reconciler: reconciler,
	}
}

// createVideoRequest は動画作成リクエスト。publicly_listed省略時は公開一覧に載せる。
type createVideoRequest struct {
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=5000"`
	PubliclyListed *bool  `json:"publicly_listed"`
}

// updateVideoRequest は動画の部分更新リクエスト。
type updateVideoRequest struct {
	Title          *string `json:"title" validate:"omitnil,max=200"`
	Description    *string `json:"description" validate:"omitnil,max=5000"`
	PubliclyListed *bool   `json:"publicly_listed"`
}

// videoResponse は動画のレスポンス。
type videoResponse struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Status         model.VideoStatus `json:"status"`
	PlaybackID     string            `json:"playback_id"`
	Duration       *float64          `json:"duration"`
	AspectRatio    string            `json:"aspect_ratio"`
	PubliclyListed bool              `json:"publicly_listed"`
	Views          int               `json:"views"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// createVideoResponse は動画作成・再アップロードのレスポンス。
type createVideoResponse struct {
	Video     videoResponse `json:"video"`
	UploadURL string        `json:"upload_url"`
}

func toVideoResponse(v *model.Video) videoResponse {
	resp := videoResponse{
		ID:             v.ID,
		UserID:         v.UserID,
		Title:          v.Title,
		Description:    v.Description,
		Status:         v.Status,
		Duration:       v.Duration,
		AspectRatio:    v.AspectRatio,
		PubliclyListed: v.PubliclyListed,
		Views:          v.Views,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
	// 仮IDはクライアントに公開しない
	if !v.HasPlaceholderPlaybackID() {
		resp.PlaybackID = v.MuxPlaybackID
	}
	return resp
}

func toVideoListResponse(videos []*model.Video) []videoResponse {
	out := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, toVideoResponse(v))
	}
	return out
}

// ListPublic は公開一覧に載っている再生可能な動画を返す。
// GET /api/videos?limit=
func (h *VideoHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			handleServiceError(w, model.NewValidationError("limit は整数で指定してください"))
			return
		}
		limit = parsed
	}

	videos, err := h.service.ListPublic(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoListResponse(videos))
}

// ListMine はログインユーザーの動画をすべて返す。
// GET /api/videos/mine
func (h *VideoHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	videos, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoListResponse(videos))
}

// Create はアップロードURLを発行して動画を作成する。
// POST /api/videos
func (h *VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createVideoRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}
	listed := true
	if req.PubliclyListed != nil {
		listed = *req.PubliclyListed
	}

	result, err := h.service.Create(r.Context(), userID, req.Title, req.Description, listed)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createVideoResponse{
		Video:     toVideoResponse(result.Video),
		UploadURL: result.UploadURL,
	})
}

// Get は動画を1件返す。未認証の場合は公開動画のみ参照できる。
// GET /api/videos/{id}
func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(r.Context(), optionalUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoResponse(v))
}

// Update は動画のタイトル・説明・公開設定を部分更新する。
// PATCH /api/videos/{id}
func (h *VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateVideoRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), model.VideoPatch{
		Title:          req.Title,
		Description:    req.Description,
		PubliclyListed: req.PubliclyListed,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoResponse(updated))
}

// Delete は動画を削除する。
// DELETE /api/videos/{id}
func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Playback は再生URLとトークンを返す。
// GET /api/videos/{id}/playback
func (h *VideoHandler) Playback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	playback, err := h.service.Playback(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playback)
}

// Reupload は新しいアップロードURLを発行し、動画をuploading状態に戻す。
// POST /api/videos/{id}/reupload
func (h *VideoHandler) Reupload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Reupload(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createVideoResponse{
		Video:     toVideoResponse(result.Video),
		UploadURL: result.UploadURL,
	})
}

// Sync は動画の照合を実行する。行ごとの失敗は結果に含め、常に200を返す。
// idを指定した場合は自分の動画のみ照合できる。
// POST /api/videos/sync?id=
func (h *VideoHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if h.reconciler == nil {
		handleServiceError(w, model.NewNotConfiguredError("video"))
		return
	}

	id := r.URL.Query().Get("id")
	if id != "" {
		v, err := h.service.Get(r.Context(), userID, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if v.UserID != userID {
			handleServiceError(w, model.NewForbiddenError("他のユーザーの動画は照合できません"))
			return
		}
	}

	report := h.reconciler.Reconcile(r.Context(), id)
	writeJSON(w, http.StatusOK, report)
}
