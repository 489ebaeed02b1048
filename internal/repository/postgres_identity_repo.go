package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sqlx.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sqlx.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.GetContext(ctx, identity,
		`SELECT id, user_id, provider, provider_user_id, created_at
		 FROM identities
		 WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, nil
}

// FindByUserIDAndProvider はユーザーに紐づく指定providerのidentityを取得する。
func (r *PostgresIdentityRepo) FindByUserIDAndProvider(ctx context.Context, userID, provider string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.GetContext(ctx, identity,
		`SELECT id, user_id, provider, provider_user_id, created_at
		 FROM identities
		 WHERE user_id = $1 AND provider = $2
		 ORDER BY created_at ASC
		 LIMIT 1`,
		userID, provider,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by user: %w", err)
	}
	return identity, nil
}

// Create は既存ユーザーにidentityを追加する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES (:id, :user_id, :provider, :provider_user_id, :created_at)`,
		identity,
	)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
