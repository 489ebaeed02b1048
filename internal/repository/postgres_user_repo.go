package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, email, name, username, avatar_url, bio, location,
	profile_version, profile_updated_at, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sqlx.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sqlx.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO users (id, email, name, username, avatar_url, bio, location,
		                    profile_version, profile_updated_at, created_at, updated_at)
		 VALUES (:id, :email, :name, :username, :avatar_url, :bio, :location,
		         :profile_version, :profile_updated_at, :created_at, :updated_at)`,
		user,
	)
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES (:id, :user_id, :provider, :provider_user_id, :created_at)`,
		identity,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateProfile はプロフィールを部分更新し、profile_versionを1つ進める。
// nilのフィールドはCOALESCEで既存値を維持する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user,
		`UPDATE users SET
		    name = COALESCE($2, name),
		    username = COALESCE($3, username),
		    avatar_url = COALESCE($4, avatar_url),
		    bio = COALESCE($5, bio),
		    location = COALESCE($6, location),
		    profile_version = profile_version + 1,
		    profile_updated_at = now(),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, patch.Name, patch.Username, patch.AvatarURL, patch.Bio, patch.Location,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 所有データはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// FindPublicProfile はユーザー名で公開プロフィールをボトル数付きで取得する。
func (r *PostgresUserRepo) FindPublicProfile(ctx context.Context, username string) (*model.PublicProfile, error) {
	profile := &model.PublicProfile{}
	err := r.db.GetContext(ctx, profile,
		`SELECT u.id, u.name, u.username, u.avatar_url, u.bio, u.location, u.created_at,
		        (SELECT count(*) FROM spirits s WHERE s.owner_id = u.id) AS spirit_count
		 FROM users u
		 WHERE u.username = $1`,
		username,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find public profile: %w", err)
	}
	return profile, nil
}

// isUniqueViolation はエラーが指定制約のユニーク制約違反かどうかを判定する。
// constraintが空の場合は制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
