package model

import "time"

// Spirit はユーザーのコレクションに登録されたボトルを表す。
type Spirit struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Name        string    `db:"name"`
	Brand       string    `db:"brand"`
	Type        string    `db:"type"`
	Category    string    `db:"category"`
	Proof       *float64  `db:"proof"`
	Price       *float64  `db:"price"`
	Rating      *float64  `db:"rating"`
	BottleLevel *int      `db:"bottle_level"`
	ImageURL    string    `db:"image_url"`
	Notes       string    `db:"notes"`
	Nose        string    `db:"nose"`
	Palate      string    `db:"palate"`
	Finish      string    `db:"finish"`
	IsFavorite  bool      `db:"is_favorite"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// SpiritFilter はコレクション一覧の絞り込み条件を表す。
type SpiritFilter struct {
	Category     string
	FavoriteOnly bool
	Cursor       time.Time // ゼロ値の場合は先頭から
	Limit        int
}

// SpiritPatch はボトルの部分更新内容を表す。
// nilのフィールドは変更しない。
type SpiritPatch struct {
	Name        *string
	Brand       *string
	Type        *string
	Category    *string
	Proof       *float64
	Price       *float64
	Rating      *float64
	BottleLevel *int
	ImageURL    *string
	Notes       *string
	Nose        *string
	Palate      *string
	Finish      *string
	IsFavorite  *bool
}

// Apply は部分更新内容をボトルに適用する。
func (p SpiritPatch) Apply(s *Spirit) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Brand != nil {
		s.Brand = *p.Brand
	}
	if p.Type != nil {
		s.Type = *p.Type
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Proof != nil {
		s.Proof = p.Proof
	}
	if p.Price != nil {
		s.Price = p.Price
	}
	if p.Rating != nil {
		s.Rating = p.Rating
	}
	if p.BottleLevel != nil {
		s.BottleLevel = p.BottleLevel
	}
	if p.ImageURL != nil {
		s.ImageURL = *p.ImageURL
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Nose != nil {
		s.Nose = *p.Nose
	}
	if p.Palate != nil {
		s.Palate = *p.Palate
	}
	if p.Finish != nil {
		s.Finish = *p.Finish
	}
	if p.IsFavorite != nil {
		s.IsFavorite = *p.IsFavorite
	}
}
