package picker

import (
	"context"
	"fmt"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

// AccessTokenSource はユーザーの有効なアクセストークンを返すインターフェース。
type AccessTokenSource interface {
	GetValidAccessToken(ctx context.Context, userID, provider string) (string, error)
}

// Service はユーザー単位でPicker APIを呼び出す。
type Service struct {
	tokens AccessTokenSource
	client *Client
}

// NewService はServiceを生成する。
func NewService(tokens AccessTokenSource, client *Client) *Service {
	return &Service{tokens: tokens, client: client}
}

func (s *Service) accessToken(ctx context.Context, userID string) (string, error) {
	token, err := s.tokens.GetValidAccessToken(ctx, userID, model.ProviderGoogle)
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return token, nil
}

// CreateSession はユーザーのPickerセッションを作成する。
func (s *Service) CreateSession(ctx context.Context, userID string) (*Session, error) {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.CreateSession(ctx, token)
}

// GetSession はPickerセッションの状態を返す。
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.GetSession(ctx, token, sessionID)
}

// ListMediaItems は選択済みメディアを1ページ返す。
func (s *Service) ListMediaItems(ctx context.Context, userID, sessionID, pageToken string) (*MediaItemsPage, error) {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.ListMediaItems(ctx, token, sessionID, pageToken)
}
