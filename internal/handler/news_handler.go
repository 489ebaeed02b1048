package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// NewsServiceInterface はニュースハンドラーが必要とするサービスインターフェース。
type NewsServiceInterface interface {
	ListLatest(ctx context.Context, limit int) ([]*model.NewsItem, error)
}

// NewsHandler はウイスキーニュースのHTTPハンドラー。
type NewsHandler struct {
	service NewsServiceInterface
}

// NewNewsHandler はNewsHandlerを生成する。
func NewNewsHandler(service NewsServiceInterface) *NewsHandler {
	return &NewsHandler{service: service}
}

type newsItemResponse struct {
	ID          string     `json:"id"`
	SourceTitle string     `json:"source_title"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     string     `json:"summary"`
	PublishedAt *time.Time `json:"published_at"`
}

// ListLatest は全ソースの最新記事を返す。
// GET /api/news?limit=
func (h *NewsHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			handleServiceError(w, model.NewValidationError("limit は整数で指定してください"))
			return
		}
		limit = parsed
	}

	items, err := h.service.ListLatest(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]newsItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, newsItemResponse{
			ID:          it.ID,
			SourceTitle: it.SourceTitle,
			Title:       it.Title,
			Link:        it.Link,
			Summary:     it.Summary,
			PublishedAt: it.PublishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
