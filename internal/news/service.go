package news

import (
	"context"
	"fmt"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
)

const (
	// DefaultLimit は件数未指定時のニュース件数。
	DefaultLimit = 20
	// MaxLimit は1回に返す最大件数。
	MaxLimit = 50
)

// Service はニュース一覧のサービス層。
type Service struct {
	repo repository.NewsRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.NewsRepository) *Service {
	return &Service{repo: repo}
}

// ListLatest は全ソースの最新記事を新しい順に返す。
// limitが範囲外の場合は既定値または上限に丸める。
func (s *Service) ListLatest(ctx context.Context, limit int) ([]*model.NewsItem, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	items, err := s.repo.ListLatest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ニュース一覧の取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []*model.NewsItem{}
	}
	return items, nil
}
