package auth

import "errors"

// 設定
var (
	// ErrConfiguration は署名鍵やクライアント設定が不足している場合に返される。
	ErrConfiguration = errors.New("auth configuration error")
)

// stateトークン
var (
	ErrStateNotFound      = errors.New("state token not found")
	ErrStateExpired       = errors.New("state token expired")
	ErrStorageUnavailable = errors.New("state storage unavailable")
)

// プロバイダーとのOAuthプロトコル
var (
	ErrExchangeFailed      = errors.New("authorization code exchange failed")
	ErrMissingRefreshToken = errors.New("provider did not return a refresh token")
	ErrIdentityUnavailable = errors.New("provider identity unavailable")
	ErrRefreshFailed       = errors.New("access token refresh failed")
	ErrProviderTimeout     = errors.New("provider request timed out")
	ErrUnknownProvider     = errors.New("unknown oauth provider")
)

// セッショントークン
var (
	ErrTokenInvalid     = errors.New("session token invalid")
	ErrTokenExpired     = errors.New("session token expired")
	ErrMalformedSubject = errors.New("session token subject is not a user id")
)
