package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/jmoiron/sqlx"
)

const spiritColumns = `id, owner_id, name, brand, type, category, proof, price, rating,
	bottle_level, image_url, notes, nose, palate, finish, is_favorite, created_at, updated_at`

// PostgresSpiritRepo はPostgreSQLを使用したボトルリポジトリ。
type PostgresSpiritRepo struct {
	db *sqlx.DB
}

// NewPostgresSpiritRepo はPostgresSpiritRepoを生成する。
func NewPostgresSpiritRepo(db *sqlx.DB) *PostgresSpiritRepo {
	return &PostgresSpiritRepo{db: db}
}

// List は所有者のボトルをcreated_at降順でカーソルベースページネーションして返す。
func (r *PostgresSpiritRepo) List(ctx context.Context, ownerID string, filter model.SpiritFilter) ([]*model.Spirit, error) {
	conds := []string{"owner_id = $1"}
	args := []any{ownerID}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.FavoriteOnly {
		conds = append(conds, "is_favorite = true")
	}
	if !filter.Cursor.IsZero() {
		args = append(args, filter.Cursor)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	args = append(args, filter.Limit)

	query := fmt.Sprintf(
		`SELECT %s FROM spirits WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		spiritColumns, strings.Join(conds, " AND "), len(args),
	)

	var spirits []*model.Spirit
	if err := r.db.SelectContext(ctx, &spirits, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list spirits: %w", err)
	}
	return spirits, nil
}

// FindByIDAndOwner は所有者のボトルを取得する。見つからない場合はnilを返す。
func (r *PostgresSpiritRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Spirit, error) {
	spirit := &model.Spirit{}
	err := r.db.GetContext(ctx, spirit,
		`SELECT `+spiritColumns+` FROM spirits WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find spirit: %w", err)
	}
	return spirit, nil
}

// Create はボトルを作成する。
func (r *PostgresSpiritRepo) Create(ctx context.Context, spirit *model.Spirit) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO spirits (id, owner_id, name, brand, type, category, proof, price, rating,
		                      bottle_level, image_url, notes, nose, palate, finish, is_favorite,
		                      created_at, updated_at)
		 VALUES (:id, :owner_id, :name, :brand, :type, :category, :proof, :price, :rating,
		         :bottle_level, :image_url, :notes, :nose, :palate, :finish, :is_favorite,
		         :created_at, :updated_at)`,
		spirit,
	)
	if err != nil {
		return fmt.Errorf("failed to create spirit: %w", err)
	}
	return nil
}

// Update はボトルの全項目を上書きする。
func (r *PostgresSpiritRepo) Update(ctx context.Context, spirit *model.Spirit) error {
	_, err := r.db.NamedExecContext(ctx,
		`UPDATE spirits SET
		    name = :name, brand = :brand, type = :type, category = :category,
		    proof = :proof, price = :price, rating = :rating, bottle_level = :bottle_level,
		    image_url = :image_url, notes = :notes, nose = :nose, palate = :palate,
		    finish = :finish, is_favorite = :is_favorite, updated_at = :updated_at
		 WHERE id = :id AND owner_id = :owner_id`,
		spirit,
	)
	if err != nil {
		return fmt.Errorf("failed to update spirit: %w", err)
	}
	return nil
}

// Delete は所有者のボトルを削除する。削除対象が存在しない場合はfalseを返す。
func (r *PostgresSpiritRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM spirits WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete spirit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ SpiritRepository = (*PostgresSpiritRepo)(nil)
