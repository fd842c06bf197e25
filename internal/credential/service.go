// Package credential はプロバイダー資格情報（暗号化済みリフレッシュトークン）の保存と
// アクセストークンの再取得を提供する。
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/repository"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoCredential はユーザーの資格情報が保存されていない場合に返される。
	ErrNoCredential = errors.New("no stored credential")
	// ErrDecryptFailed は保存済みリフレッシュトークンを復号できない場合に返される。
	ErrDecryptFailed = errors.New("failed to decrypt stored refresh token")
	// ErrRefreshFailed はプロバイダーでのアクセストークン再取得に失敗した場合に返される。
	ErrRefreshFailed = errors.New("failed to refresh access token")
)

// Cipher はリフレッシュトークンの暗号化インターフェース。
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// TokenRefresher はリフレッシュトークンからアクセストークンを取得するインターフェース。
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*model.OAuthTokens, error)
}

// RefreshObserver はリフレッシュ結果の通知先。メトリクス収集に使う。
type RefreshObserver interface {
	RecordTokenRefresh(success, rotated bool)
}

// Service は資格情報のビジネスロジックを提供する。
type Service struct {
	repo      repository.CredentialRepository
	cipher    Cipher
	refresher TokenRefresher
	observer  RefreshObserver

	// 同じ資格情報への同時リフレッシュを1回にまとめる
	group *singleflight.Group
}

// NewService はServiceを生成する。observerはnilでもよい。
func NewService(repo repository.CredentialRepository, cipher Cipher, refresher TokenRefresher, observer RefreshObserver) *Service {
	return &Service{
		repo:      repo,
		cipher:    cipher,
		refresher: refresher,
		observer:  observer,
		group:     &singleflight.Group{},
	}
}

// WithRepository はrepoに束縛したServiceのコピーを返す。トランザクション内で使う。
func (s *Service) WithRepository(repo repository.CredentialRepository) *Service {
	c := *s
	c.repo = repo
	return &c
}

// Upsert はリフレッシュトークンを暗号化して資格情報を作成または置換する。
func (s *Service) Upsert(ctx context.Context, userID, provider, refreshToken string, scopes []string, expiresAt *time.Time) error {
	encrypted, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	cred := &model.Credential{
		UserID:                userID,
		Provider:              provider,
		EncryptedRefreshToken: encrypted,
		Scopes:                scopes,
		ExpiresAt:             expiresAt,
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Get は保存済みの資格情報を返す。
func (s *Service) Get(ctx context.Context, userID, provider string) (*model.Credential, error) {
	cred, err := s.repo.FindByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNoCredential
	}
	return cred, nil
}

// GetValidAccessToken は保存済みリフレッシュトークンで新しいアクセストークンを取得する。
// プロバイダーがリフレッシュトークンをローテーションした場合は、返却前に暗号化して保存する。
// 同じユーザー・プロバイダーへの同時呼び出しは1回のリフレッシュ結果を共有する。
func (s *Service) GetValidAccessToken(ctx context.Context, userID, provider string) (string, error) {
	ch := s.group.DoChan(userID+"/"+provider, func() (any, error) {
		return s.refreshAccessToken(context.WithoutCancel(ctx), userID, provider)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Service) refreshAccessToken(ctx context.Context, userID, provider string) (string, error) {
	cred, err := s.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}

	refreshToken, err := s.cipher.Decrypt(cred.EncryptedRefreshToken)
	if err != nil {
		slog.Error("stored refresh token could not be decrypted",
			slog.String("user_id", userID),
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}

	tokens, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		s.observe(false, false)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	rotated := tokens.RefreshToken != "" && tokens.RefreshToken != refreshToken
	if rotated {
		encrypted, err := s.cipher.Encrypt(tokens.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt rotated refresh token: %w", err)
		}

		var expiresAt *time.Time
		if !tokens.Expiry.IsZero() {
			e := tokens.Expiry
			expiresAt = &e
		}
		if err := s.repo.UpdateRefreshToken(ctx, userID, provider, encrypted, expiresAt); err != nil {
			return "", fmt.Errorf("failed to persist rotated refresh token: %w", err)
		}

		slog.Info("refresh token rotated",
			slog.String("user_id", userID),
			slog.String("provider", provider),
		)
	}

	s.observe(true, rotated)
	return tokens.AccessToken, nil
}

func (s *Service) observe(success, rotated bool) {
	if s.observer != nil {
		s.observer.RecordTokenRefresh(success, rotated)
	}
}
