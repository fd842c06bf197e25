package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/RazK/Voyage-Voyage/internal/auth"
	"github.com/RazK/Voyage-Voyage/internal/logger"
	"github.com/RazK/Voyage-Voyage/internal/middleware"
	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/go-chi/chi/v5"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Start(ctx context.Context) (authURL, state string, err error)
	HandleCallback(ctx context.Context, code, state string) (*auth.CallbackResult, error)
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type startResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type callbackResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

// supportedProvider はURLのプロバイダー名を検証し、未対応なら404を書き込む。
func supportedProvider(w http.ResponseWriter, r *http.Request) bool {
	provider := chi.URLParam(r, "provider")
	if provider != model.ProviderGoogle {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownProviderError(provider))
		return false
	}
	return true
}

// Start はOAuthフローを開始し、認証URLとstateトークンを返す。
// GET /auth/{provider}/start
func (h *AuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !supportedProvider(w, r) {
		return
	}

	authURL, state, err := h.service.Start(r.Context())
	if err != nil {
		slog.Error("failed to start oauth flow", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, startResponse{AuthURL: authURL, State: state})
}

// Callback はOAuthコールバックを処理し、セッショントークンを返す。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !supportedProvider(w, r) {
		return
	}

	q := r.URL.Query()

	// ユーザーが同意を拒否した場合などはプロバイダーがerrorを付けて戻す
	if providerErr := q.Get("error"); providerErr != "" {
		slog.Warn("oauth provider returned error",
			slog.String("error", providerErr),
			slog.String("error_description", q.Get("error_description")),
		)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewOAuthFailedError())
		return
	}

	state := q.Get("state")
	result, err := h.service.HandleCallback(r.Context(), q.Get("code"), state)
	if err != nil {
		slog.Warn("oauth callback failed",
			slog.String("state", logger.TruncateToken(state)),
			slog.String("error", err.Error()),
		)
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, callbackResponse{
		User:  userResponse{ID: result.User.ID, Email: result.User.Email},
		Token: result.Token,
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	u, err := h.service.CurrentUser(r.Context(), token)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Email: u.Email})
}
