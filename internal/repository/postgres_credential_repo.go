package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db DBTX
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db DBTX) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// Upsert は資格情報を作成または全置換する。
// 同一(user_id, provider)への同時書き込みはどちらか一方の完全な行が残る。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO oauth_credentials (user_id, provider, encrypted_refresh_token, scopes, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (user_id, provider) DO UPDATE SET
			encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
			scopes = EXCLUDED.scopes,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		 RETURNING updated_at`,
		cred.UserID, cred.Provider, cred.EncryptedRefreshToken, pq.Array(scopes), nullTime(cred.ExpiresAt),
	).Scan(&cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

// FindByUserAndProvider は資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.Credential, error) {
	cred := &model.Credential{}
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, provider, encrypted_refresh_token, scopes, expires_at, updated_at
		 FROM oauth_credentials WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	).Scan(&cred.UserID, &cred.Provider, &cred.EncryptedRefreshToken, pq.Array(&cred.Scopes), &expiresAt, &cred.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		cred.ExpiresAt = &t
	}

	return cred, nil
}

// UpdateRefreshToken はローテーション後のリフレッシュトークンを単一のUPDATE文で保存する。
func (r *PostgresCredentialRepo) UpdateRefreshToken(ctx context.Context, userID, provider, encryptedRefreshToken string, expiresAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE oauth_credentials
		 SET encrypted_refresh_token = $3, expires_at = $4, updated_at = now()
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider, encryptedRefreshToken, nullTime(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	return expectAffected(result, userID)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
