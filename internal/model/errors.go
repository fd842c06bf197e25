// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, oauth, credential, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidState            = "INVALID_STATE"
	ErrCodeExpiredState            = "EXPIRED_STATE"
	ErrCodeOAuthFailed             = "OAUTH_FAILED"
	ErrCodeMissingIdentity         = "MISSING_IDENTITY"
	ErrCodeMissingRefreshToken     = "MISSING_REFRESH_TOKEN"
	ErrCodeUnknownProvider         = "UNKNOWN_PROVIDER"
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeReauthorizationRequired = "REAUTHORIZATION_REQUIRED"
	ErrCodeUpstreamFailed          = "UPSTREAM_FAILED"
	ErrCodeMediaItemsNotReady      = "MEDIA_ITEMS_NOT_READY"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// NewInvalidStateError は不正なstateトークンのエラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "認証リクエストが無効です。",
		Category: "oauth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewExpiredStateError は期限切れstateトークンのエラーを生成する。
func NewExpiredStateError() *APIError {
	return &APIError{
		Code:     ErrCodeExpiredState,
		Message:  "認証リクエストの有効期限が切れています。",
		Category: "oauth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewOAuthFailedError はプロバイダーとのトークン交換失敗エラーを生成する。
// 詳細はサーバーログにのみ記録し、クライアントには一般的なメッセージを返す。
func NewOAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthFailed,
		Message:  "認証プロバイダーとの連携に失敗しました。",
		Category: "oauth",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewMissingIdentityError はプロバイダーからemailまたはユーザーIDを取得できなかった場合のエラーを生成する。
func NewMissingIdentityError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingIdentity,
		Message:  "認証プロバイダーからユーザー情報を取得できませんでした。",
		Category: "oauth",
		Action:   "メールアドレスの共有を許可して再度ログインしてください。",
	}
}

// NewMissingRefreshTokenError はリフレッシュトークンが発行されなかった場合のエラーを生成する。
func NewMissingRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingRefreshToken,
		Message:  "長期アクセスの許可を取得できませんでした。",
		Category: "oauth",
		Action:   "すべての権限に同意して再度ログインしてください。",
	}
}

// NewUnknownProviderError は未対応プロバイダーのエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("未対応の認証プロバイダーです: %s", provider),
		Category: "validation",
		Action:   "対応しているプロバイダーでログインしてください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewReauthorizationRequiredError はプロバイダー資格情報が存在しない場合のエラーを生成する。
func NewReauthorizationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeReauthorizationRequired,
		Message:  "Googleフォトへのアクセス許可がありません。",
		Category: "credential",
		Action:   "再度ログインしてアクセスを許可してください。",
	}
}

// NewUpstreamFailedError は外部APIの呼び出し失敗エラーを生成する。
func NewUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "Googleフォトとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewMediaItemsNotReadyError は写真がまだ選択されていない場合のエラーを生成する。
func NewMediaItemsNotReadyError() *APIError {
	return &APIError{
		Code:     ErrCodeMediaItemsNotReady,
		Message:  "写真がまだ選択されていません。",
		Category: "validation",
		Action:   "ピッカーで写真を選択してから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
