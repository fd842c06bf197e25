// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/RazK/Voyage-Voyage/internal/auth"
	"github.com/RazK/Voyage-Voyage/internal/credential"
	"github.com/RazK/Voyage-Voyage/internal/middleware"
	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/picker"
	"github.com/RazK/Voyage-Voyage/internal/security"
	"github.com/RazK/Voyage-Voyage/internal/user"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAuthError はログインフローのエラーをHTTPレスポンスに変換する。
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrStateExpired):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewExpiredStateError())
	case errors.Is(err, auth.ErrStateNotFound):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidStateError())
	case errors.Is(err, auth.ErrMissingRefreshToken):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingRefreshTokenError())
	case errors.Is(err, auth.ErrIdentityUnavailable):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingIdentityError())
	case errors.Is(err, auth.ErrExchangeFailed):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewOAuthFailedError())
	case errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrMalformedSubject):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	default:
		// 設定不備・ストレージ障害・暗号化失敗はすべて内部エラー
		slog.Error("auth request failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// writeUpstreamError はPicker連携のエラーをHTTPレスポンスに変換する。
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credential.ErrNoCredential):
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewReauthorizationRequiredError())
	case errors.Is(err, picker.ErrItemsNotReady):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewMediaItemsNotReadyError())
	case errors.Is(err, picker.ErrSessionNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "PICKER_SESSION_NOT_FOUND",
			Message:  "ピッカーセッションが見つかりません。",
			Category: "validation",
			Action:   "新しいピッカーセッションを作成してください。",
		})
	case errors.Is(err, credential.ErrRefreshFailed), errors.Is(err, picker.ErrUpstream):
		slog.Warn("upstream request failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamFailedError())
	case errors.Is(err, credential.ErrDecryptFailed), errors.Is(err, security.ErrTampered), errors.Is(err, security.ErrMalformed):
		slog.Error("stored credential unusable", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	default:
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// writeUserError はユーザー管理のエラーをHTTPレスポンスに変換する。
func writeUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, user.ErrUserNotFound) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
