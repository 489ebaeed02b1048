package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	ListForVideo(ctx context.Context, viewerID, videoID string) ([]*model.Comment, error)
	ListForReview(ctx context.Context, reviewID string) ([]*model.Comment, error)
	Create(ctx context.Context, userID string, target model.CommentTarget, content string) (*model.Comment, error)
	Delete(ctx context.Context, userID, commentID string) error
}

// CommentHandler はコメント関連のHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{
		service: service,
	}
}

type createCommentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type commentResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	VideoID    *string   `json:"video_id"`
	ReviewID   *string   `json:"review_id"`
	Content    string    `json:"content"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		UserID:     c.UserID,
		VideoID:    c.VideoID,
		ReviewID:   c.ReviewID,
		Content:    c.Content,
		AuthorName: c.AuthorName,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func writeComments(w http.ResponseWriter, comments []*model.Comment) {
	out := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListForVideo は動画のコメントを古い順に返す。参照できない動画は404。
// GET /api/videos/{id}/comments
func (h *CommentHandler) ListForVideo(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListForVideo(r.Context(), optionalUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeComments(w, comments)
}

// CreateForVideo は動画にコメントを投稿する。
// POST /api/videos/{id}/comments
func (h *CommentHandler) CreateForVideo(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, model.CommentTarget{VideoID: chi.URLParam(r, "id")})
}

// ListForReview はレビューのコメントを古い順に返す。
// GET /api/reviews/{id}/comments
func (h *CommentHandler) ListForReview(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListForReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeComments(w, comments)
}

// CreateForReview はレビューにコメントを投稿する。
// POST /api/reviews/{id}/comments
func (h *CommentHandler) CreateForReview(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, model.CommentTarget{ReviewID: chi.URLParam(r, "id")})
}

func (h *CommentHandler) create(w http.ResponseWriter, r *http.Request, target model.CommentTarget) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createCommentRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	created, err := h.service.Create(r.Context(), userID, target, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(created))
}

// Delete はコメントを削除する。投稿者以外は403。
// DELETE /api/comments/{id}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
