package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

// PostgresStateRepo はPostgreSQLを使用したOAuth stateリポジトリ。
type PostgresStateRepo struct {
	db DBTX
}

// NewPostgresStateRepo はPostgresStateRepoを生成する。
func NewPostgresStateRepo(db DBTX) *PostgresStateRepo {
	return &PostgresStateRepo{db: db}
}

// Create はstateトークンを保存する。
func (r *PostgresStateRepo) Create(ctx context.Context, state *model.StateToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth_states (token, created_at) VALUES ($1, $2)`,
		state.Token, state.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert state token: %w", err)
	}
	return nil
}

// Consume は条件付きDELETEでトークンを取り出す。
// 同時に同じトークンを消費しようとした場合、RETURNINGで行を受け取れるのは1つだけ。
func (r *PostgresStateRepo) Consume(ctx context.Context, token string) (*model.StateToken, error) {
	state := &model.StateToken{Token: token}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM oauth_states WHERE token = $1 RETURNING created_at`,
		token,
	).Scan(&state.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume state token: %w", err)
	}

	return state, nil
}

// DeleteOlderThan はbeforeより前に作成されたstateを削除する。
func (r *PostgresStateRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired state tokens: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ StateRepository = (*PostgresStateRepo)(nil)
