package auth

import (
	"context"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

// LatencyRecorder はプロバイダー呼び出しの所要時間を記録する。
type LatencyRecorder interface {
	RecordProviderLatency(operation string, duration time.Duration)
}

// InstrumentedProvider はOAuthProviderの呼び出し時間を計測するデコレーター。
type InstrumentedProvider struct {
	next     OAuthProvider
	recorder LatencyRecorder
}

// NewInstrumentedProvider はnextをラップしたInstrumentedProviderを返す。
func NewInstrumentedProvider(next OAuthProvider, recorder LatencyRecorder) *InstrumentedProvider {
	return &InstrumentedProvider{next: next, recorder: recorder}
}

func (p *InstrumentedProvider) GetLoginURL(state string) string {
	return p.next.GetLoginURL(state)
}

func (p *InstrumentedProvider) ExchangeCode(ctx context.Context, code string) (*model.OAuthTokens, *model.OAuthUserInfo, error) {
	start := time.Now()
	tokens, info, err := p.next.ExchangeCode(ctx, code)
	p.recorder.RecordProviderLatency("exchange", time.Since(start))
	return tokens, info, err
}

func (p *InstrumentedProvider) Refresh(ctx context.Context, refreshToken string) (*model.OAuthTokens, error) {
	start := time.Now()
	tokens, err := p.next.Refresh(ctx, refreshToken)
	p.recorder.RecordProviderLatency("refresh", time.Since(start))
	return tokens, err
}

var _ OAuthProvider = (*InstrumentedProvider)(nil)
