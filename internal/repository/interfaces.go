// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
// リポジトリはトランザクション内外のどちらでも同じ実装で動作する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByProviderIdentity はプロバイダー上の識別子でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderIdentity(ctx context.Context, providerIdentity string) (*model.User, error)

	// InsertIfAbsent はprovider_identityが未登録の場合のみユーザーを作成する。
	// 作成した場合はtrue、既に存在した場合はfalseを返す。
	InsertIfAbsent(ctx context.Context, user *model.User) (bool, error)

	// UpdateEmail はユーザーのメールアドレスを更新する。
	UpdateEmail(ctx context.Context, id, email string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するoauth_credentialsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// CredentialRepository はプロバイダー資格情報の永続化インターフェース。
type CredentialRepository interface {
	// Upsert は(user_id, provider)の行を1文で作成または全置換する。
	Upsert(ctx context.Context, cred *model.Credential) error

	// FindByUserAndProvider は資格情報を取得する。見つからない場合はnilを返す。
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.Credential, error)

	// UpdateRefreshToken はローテーションされたリフレッシュトークンを1文で更新する。
	UpdateRefreshToken(ctx context.Context, userID, provider, encryptedRefreshToken string, expiresAt *time.Time) error
}

// StateRepository はOAuth stateトークンの永続化インターフェース。
type StateRepository interface {
	// Create はstateトークンを保存する。
	Create(ctx context.Context, state *model.StateToken) error

	// Consume はトークンの行を削除し、その作成日時を返す。
	// 削除対象が存在しない場合はnilを返す。同一トークンで削除に成功するのは1回のみ。
	Consume(ctx context.Context, token string) (*model.StateToken, error)

	// DeleteOlderThan は指定時刻より前に作成された行を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Store はトランザクションに束縛されたリポジトリ群。
type Store interface {
	Users() UserRepository
	Credentials() CredentialRepository
}

// TxManager はStoreを1トランザクション内で実行する。
// fnがエラーを返した場合はロールバックする。
type TxManager interface {
	WithinTx(ctx context.Context, fn func(store Store) error) error
}

// Pinger はデータベース疎通確認用のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}
