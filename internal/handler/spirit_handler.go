package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/spirit"
)

// SpiritServiceInterface はコレクションハンドラーが必要とするサービスインターフェース。
type SpiritServiceInterface interface {
	List(ctx context.Context, ownerID string, filter model.SpiritFilter) (*spirit.ListResult, error)
	Get(ctx context.Context, ownerID, id string) (*model.Spirit, error)
	Create(ctx context.Context, ownerID string, input model.SpiritPatch) (*model.Spirit, error)
	Update(ctx context.Context, ownerID, id string, patch model.SpiritPatch) (*model.Spirit, error)
	Delete(ctx context.Context, ownerID, id string) error
	RequestImageUpload(ctx context.Context, ownerID, id, contentType string) (*spirit.ImageUpload, error)
	ImportImage(ctx context.Context, ownerID, id, rawURL string) (*model.Spirit, error)
}

// SpiritHandler はコレクション管理のHTTPハンドラー。
type SpiritHandler struct {
	service SpiritServiceInterface
}

// NewSpiritHandler はSpiritHandlerを生成する。
func NewSpiritHandler(service SpiritServiceInterface) *SpiritHandler {
	return &SpiritHandler{
		service: service,
	}
}

// spiritRequest は登録・部分更新のリクエスト。
// 部分更新では省略したフィールドは変更しない。
type spiritRequest struct {
	Name        *string  `json:"name" validate:"omitnil,max=200"`
	Brand       *string  `json:"brand" validate:"omitnil,max=200"`
	Type        *string  `json:"type" validate:"omitnil,max=100"`
	Category    *string  `json:"category" validate:"omitnil,max=100"`
	Proof       *float64 `json:"proof" validate:"omitnil,gte=0,lte=200"`
	Price       *float64 `json:"price" validate:"omitnil,gte=0"`
	Rating      *float64 `json:"rating" validate:"omitnil,gte=0,lte=10"`
	BottleLevel *int     `json:"bottle_level" validate:"omitnil,gte=0,lte=100"`
	Notes       *string  `json:"notes" validate:"omitnil,max=5000"`
	Nose        *string  `json:"nose" validate:"omitnil,max=2000"`
	Palate      *string  `json:"palate" validate:"omitnil,max=2000"`
	Finish      *string  `json:"finish" validate:"omitnil,max=2000"`
	IsFavorite  *bool    `json:"is_favorite"`
}

func (req spiritRequest) toPatch() model.SpiritPatch {
	return model.SpiritPatch{
		Name:        req.Name,
		Brand:       req.Brand,
		Type:        req.Type,
		Category:    req.Category,
		Proof:       req.Proof,
		Price:       req.Price,
		Rating:      req.Rating,
		BottleLevel: req.BottleLevel,
		Notes:       req.Notes,
		Nose:        req.Nose,
		Palate:      req.Palate,
		Finish:      req.Finish,
		IsFavorite:  req.IsFavorite,
	}
}

// imageUploadRequest は画像アップロードURL発行のリクエスト。
type imageUploadRequest struct {
	ContentType string `json:"content_type" validate:"required"`
}

// imageImportRequest は外部画像取り込みのリクエスト。
type imageImportRequest struct {
	URL string `json:"url" validate:"required,http_url"`
}

// spiritResponse はボトルのレスポンス。
type spiritResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Brand       string    `json:"brand"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Proof       *float64  `json:"proof"`
	Price       *float64  `json:"price"`
	Rating      *float64  `json:"rating"`
	BottleLevel *int      `json:"bottle_level"`
	ImageURL    string    `json:"image_url"`
	Notes       string    `json:"notes"`
	Nose        string    `json:"nose"`
	Palate      string    `json:"palate"`
	Finish      string    `json:"finish"`
	IsFavorite  bool      `json:"is_favorite"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// spiritListResponse はコレクション一覧のレスポンス。
type spiritListResponse struct {
	Spirits    []spiritResponse `json:"spirits"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// imageUploadResponse は画像アップロードURLのレスポンス。
type imageUploadResponse struct {
	UploadURL string    `json:"upload_url"`
	ImageURL  string    `json:"image_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toSpiritResponse(s *model.Spirit) spiritResponse {
	return spiritResponse{
		ID:          s.ID,
		Name:        s.Name,
		Brand:       s.Brand,
		Type:        s.Type,
		Category:    s.Category,
		Proof:       s.Proof,
		Price:       s.Price,
		Rating:      s.Rating,
		BottleLevel: s.BottleLevel,
		ImageURL:    s.ImageURL,
		Notes:       s.Notes,
		Nose:        s.Nose,
		Palate:      s.Palate,
		Finish:      s.Finish,
		IsFavorite:  s.IsFavorite,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// List はログインユーザーのコレクションを新しい順に返す。
// GET /api/spirits?category=&favorite=&limit=&cursor=
func (h *SpiritHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := model.SpiritFilter{Category: query.Get("category")}

	if v := query.Get("favorite"); v != "" {
		favorite, err := strconv.ParseBool(v)
		if err != nil {
			handleServiceError(w, model.NewValidationError("favorite は true または false で指定してください"))
			return
		}
		filter.FavoriteOnly = favorite
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			handleServiceError(w, model.NewValidationError("limit は整数で指定してください"))
			return
		}
		filter.Limit = limit
	}
	cursor, err := spirit.ParseCursor(query.Get("cursor"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	filter.Cursor = cursor

	result, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := spiritListResponse{
		Spirits:    make([]spiritResponse, 0, len(result.Spirits)),
		NextCursor: result.NextCursor,
	}
	for _, s := range result.Spirits {
		resp.Spirits = append(resp.Spirits, toSpiritResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はボトルを登録する。
// POST /api/spirits
func (h *SpiritHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req spiritRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	created, err := h.service.Create(r.Context(), userID, req.toPatch())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSpiritResponse(created))
}

// Get はボトルを1件返す。
// GET /api/spirits/{id}
func (h *SpiritHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpiritResponse(s))
}

// Update はボトルを部分更新する。
// PATCH /api/spirits/{id}
func (h *SpiritHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req spiritRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpiritResponse(updated))
}

// Delete はボトルを削除する。
// DELETE /api/spirits/{id}
func (h *SpiritHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// RequestImageUpload はボトル画像のアップロード用署名付きURLを発行する。
// POST /api/spirits/{id}/image
func (h *SpiritHandler) RequestImageUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req imageUploadRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	upload, err := h.service.RequestImageUpload(r.Context(), userID, chi.URLParam(r, "id"), req.ContentType)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imageUploadResponse{
		UploadURL: upload.UploadURL,
		ImageURL:  upload.ImageURL,
		Key:       upload.Key,
		ExpiresAt: upload.ExpiresAt,
	})
}

// ImportImage は外部URLの画像をボトル画像として取り込む。
// POST /api/spirits/{id}/image/import
func (h *SpiritHandler) ImportImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req imageImportRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	updated, err := h.service.ImportImage(r.Context(), userID, chi.URLParam(r, "id"), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpiritResponse(updated))
}
