// Package model はドメインモデルを定義する。
package model

import "time"

// ProviderGoogle は現在サポートしている唯一のOAuthプロバイダー名。
const ProviderGoogle = "google"

// User はサービス利用ユーザーを表す。
// ProviderIdentityは作成後に変更しない。
type User struct {
	ID               string
	ProviderIdentity string
	Email            string
	CreatedAt        time.Time
}

// Credential はユーザーごとのプロバイダー資格情報を表す。
// リフレッシュトークンは暗号化済みの値のみを保持し、平文は保持しない。
type Credential struct {
	UserID                string
	Provider              string
	EncryptedRefreshToken string
	Scopes                []string   // プロバイダーが実際に付与したスコープ
	ExpiresAt             *time.Time // アクセストークンの有効期限（任意）
	UpdatedAt             time.Time
}

// StateToken はOAuthフローのCSRF対策用ワンタイムトークンを表す。
type StateToken struct {
	Token     string
	CreatedAt time.Time
}

// OAuthTokens はプロバイダーのトークンエンドポイントから得た値を表す。
// RefreshTokenはローテーションされなかった場合、送信した値がそのまま入る。
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	Scopes       []string // 付与されたスコープ
	Expiry       time.Time
	IDToken      string
}

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}
