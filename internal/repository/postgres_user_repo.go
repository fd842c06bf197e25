package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しない場合に返される。
var ErrNotFound = errors.New("record not found")

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db DBTX
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DBTX) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider_identity, email, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.ProviderIdentity, &user.Email, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByProviderIdentity はprovider_identityでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByProviderIdentity(ctx context.Context, providerIdentity string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider_identity, email, created_at FROM users WHERE provider_identity = $1`,
		providerIdentity,
	).Scan(&user.ID, &user.ProviderIdentity, &user.Email, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by provider identity: %w", err)
	}

	return user, nil
}

// InsertIfAbsent はユーザーを作成する。provider_identityが既に存在する場合は何もせずfalseを返す。
// 競合する同時挿入はユニーク制約で直列化される。
func (r *PostgresUserRepo) InsertIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, provider_identity, email, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider_identity) DO NOTHING
		 RETURNING created_at`,
		user.ID, user.ProviderIdentity, user.Email, user.CreatedAt,
	).Scan(&user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}

	return true, nil
}

// UpdateEmail はユーザーのメールアドレスを更新する。
func (r *PostgresUserRepo) UpdateEmail(ctx context.Context, id, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2 WHERE id = $1`,
		id, email,
	)
	if err != nil {
		return fmt.Errorf("failed to update user email: %w", err)
	}
	return expectAffected(result, id)
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するoauth_credentialsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectAffected(result, id)
}

func expectAffected(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
