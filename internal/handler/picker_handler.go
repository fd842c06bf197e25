package handler

import (
	"context"
	"net/http"

	"github.com/RazK/Voyage-Voyage/internal/middleware"
	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/picker"
	"github.com/go-chi/chi/v5"
)

// PickerServiceInterface はピッカーハンドラーが必要とするサービスインターフェース。
type PickerServiceInterface interface {
	CreateSession(ctx context.Context, userID string) (*picker.Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (*picker.Session, error)
	ListMediaItems(ctx context.Context, userID, sessionID, pageToken string) (*picker.MediaItemsPage, error)
}

// PickerHandler はGoogle Photos Pickerの中継ハンドラー。
type PickerHandler struct {
	service PickerServiceInterface
}

// NewPickerHandler はPickerHandlerを生成する。
func NewPickerHandler(service PickerServiceInterface) *PickerHandler {
	return &PickerHandler{service: service}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// CreateSession はピッカーセッションを作成する。
// POST /api/picker/session
func (h *PickerHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	session, err := h.service.CreateSession(r.Context(), userID)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetSession はピッカーセッションの状態を返す。
// GET /api/picker/session/{id}
func (h *PickerHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// ListMediaItems は選択済みメディアを1ページ返す。
// GET /api/picker/session/{id}/items?page_token=xxx
func (h *PickerHandler) ListMediaItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListMediaItems(r.Context(), userID, chi.URLParam(r, "id"), r.URL.Query().Get("page_token"))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}
