// Package auth はOAuth認証フロー、stateトークン、セッショントークンを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/credential"
	"github.com/RazK/Voyage-Voyage/internal/logger"
	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/repository"
	"github.com/RazK/Voyage-Voyage/internal/user"
)

// LoginObserver はログインフローの結果通知先。メトリクス収集に使う。
type LoginObserver interface {
	RecordStateConsume(result string)
	RecordLogin(result string)
}

// CallbackResult はコールバック処理の結果。
type CallbackResult struct {
	User  *model.User
	Token string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	states      *StateStore
	provider    OAuthProvider
	tx          repository.TxManager
	directory   *user.Directory
	credentials *credential.Service
	sessions    *SessionIssuer
	observer    LoginObserver
}

// ServiceDeps はServiceの依存関係。
type ServiceDeps struct {
	States      *StateStore
	Provider    OAuthProvider
	Tx          repository.TxManager
	Directory   *user.Directory
	Credentials *credential.Service
	Sessions    *SessionIssuer
	Observer    LoginObserver
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps) *Service {
	return &Service{
		states:      deps.States,
		provider:    deps.Provider,
		tx:          deps.Tx,
		directory:   deps.Directory,
		credentials: deps.Credentials,
		sessions:    deps.Sessions,
		observer:    deps.Observer,
	}
}

// Start はstateトークンを発行し、プロバイダーの認証URLを返す。
func (s *Service) Start(ctx context.Context) (authURL, state string, err error) {
	state, err = s.states.Issue(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue state token: %w", err)
	}
	return s.provider.GetLoginURL(state), state, nil
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// stateの消費はコード交換より前に確定させる。ユーザー作成・資格情報保存・
// セッション発行は1トランザクションで行い、いずれかが失敗すれば何も残さない。
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if err := s.states.Consume(ctx, state); err != nil {
		s.recordState(err)
		s.recordLogin("invalid_state")
		slog.Warn("oauth state rejected",
			slog.String("state", logger.TruncateToken(state)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.recordState(nil)

	if code == "" {
		s.recordLogin("exchange_failed")
		return nil, fmt.Errorf("%w: authorization code is empty", ErrExchangeFailed)
	}

	started := time.Now()
	tokens, info, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		s.recordLogin(loginFailureResult(err))
		slog.Warn("oauth code exchange failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(started)),
		)
		return nil, err
	}
	if info == nil || info.ProviderUserID == "" || info.Email == "" {
		s.recordLogin("identity_unavailable")
		slog.Warn("provider returned incomplete identity",
			slog.Bool("has_subject", info != nil && info.ProviderUserID != ""),
			slog.Bool("has_email", info != nil && info.Email != ""),
		)
		return nil, ErrIdentityUnavailable
	}
	if tokens.RefreshToken == "" {
		s.recordLogin("missing_refresh_token")
		return nil, ErrMissingRefreshToken
	}

	var expiresAt *time.Time
	if !tokens.Expiry.IsZero() {
		e := tokens.Expiry
		expiresAt = &e
	}

	var result *CallbackResult
	err = s.tx.WithinTx(ctx, func(store repository.Store) error {
		u, err := s.directory.WithRepository(store.Users()).FindOrCreate(ctx, info.ProviderUserID, info.Email)
		if err != nil {
			return err
		}

		if err := s.credentials.WithRepository(store.Credentials()).Upsert(ctx,
			u.ID, model.ProviderGoogle, tokens.RefreshToken, tokens.Scopes, expiresAt,
		); err != nil {
			return err
		}

		token, err := s.sessions.Issue(u)
		if err != nil {
			return err
		}

		result = &CallbackResult{User: u, Token: token}
		return nil
	})
	if err != nil {
		s.recordLogin("persist_failed")
		return nil, fmt.Errorf("failed to complete login: %w", err)
	}

	s.recordLogin("success")
	slog.Info("user logged in",
		slog.String("user_id", result.User.ID),
		slog.String("provider", model.ProviderGoogle),
		slog.Int("scopes_count", len(tokens.Scopes)),
	)
	return result, nil
}

// CurrentUser はセッショントークンを検証し、対応するユーザーを返す。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, err
	}

	u, err := s.directory.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) recordState(err error) {
	if s.observer == nil {
		return
	}
	switch {
	case err == nil:
		s.observer.RecordStateConsume("ok")
	case errors.Is(err, ErrStateExpired):
		s.observer.RecordStateConsume("expired")
	case errors.Is(err, ErrStateNotFound):
		s.observer.RecordStateConsume("not_found")
	default:
		s.observer.RecordStateConsume("error")
	}
}

func (s *Service) recordLogin(result string) {
	if s.observer != nil {
		s.observer.RecordLogin(result)
	}
}

func loginFailureResult(err error) string {
	switch {
	case errors.Is(err, ErrMissingRefreshToken):
		return "missing_refresh_token"
	case errors.Is(err, ErrIdentityUnavailable):
		return "identity_unavailable"
	case errors.Is(err, ErrProviderTimeout):
		return "timeout"
	default:
		return "exchange_failed"
	}
}
