package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/repository"
)

// DefaultStateTTL はstateトークンの有効期間。
const DefaultStateTTL = 10 * time.Minute

// stateTokenBytes はstateトークンの乱数バイト数（256bit）。
const stateTokenBytes = 32

// StateStore はOAuthフローのCSRF対策用stateトークンを発行・消費する。
type StateStore struct {
	repo   repository.StateRepository
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// StateStoreOption はStateStoreのオプション。
type StateStoreOption func(*StateStore)

// WithStateClock は現在時刻の取得関数を差し替える。
func WithStateClock(now func() time.Time) StateStoreOption {
	return func(s *StateStore) { s.now = now }
}

// NewStateStore はStateStoreを生成する。ttlが0以下の場合はDefaultStateTTLを使う。
func NewStateStore(repo repository.StateRepository, ttl time.Duration, opts ...StateStoreOption) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	s := &StateStore{
		repo:   repo,
		ttl:    ttl,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue は新しいstateトークンを生成して保存する。
func (s *StateStore) Issue(ctx context.Context) (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	if err := s.repo.Create(ctx, &model.StateToken{Token: token, CreatedAt: s.now()}); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return token, nil
}

// Consume はstateトークンを1回だけ消費する。
// 行は有効期限に関わらず削除され、期限切れの場合はErrStateExpiredを返す。
func (s *StateStore) Consume(ctx context.Context, token string) error {
	if token == "" {
		return ErrStateNotFound
	}

	state, err := s.repo.Consume(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if state == nil {
		return ErrStateNotFound
	}

	if s.now().Sub(state.CreatedAt) > s.ttl {
		return ErrStateExpired
	}
	return nil
}

// SweepExpired は有効期限を過ぎた未消費のstateを削除する。
func (s *StateStore) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return n, nil
}
