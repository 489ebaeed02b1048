package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/search"
)

// Searcher はWeb検索を行うインターフェース。
type Searcher interface {
	Search(ctx context.Context, q string, count int) ([]search.Result, error)
}

// SearchHandler はWeb検索APIのプロキシハンドラー。
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

// Search は検索結果を正規化して返す。
// GET /api/search?q=&count=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			handleServiceError(w, model.NewValidationError("count は整数で指定してください"))
			return
		}
		count = parsed
	}

	q, count, err := search.ValidateQuery(r.URL.Query().Get("q"), count)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results, err := h.searcher.Search(r.Context(), q, count)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Results: results})
}
