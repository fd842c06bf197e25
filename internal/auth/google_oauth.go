package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	// DefaultProviderTimeout はプロバイダー呼び出し1回あたりの上限時間。
	DefaultProviderTimeout = 30 * time.Second
)

// GoogleScopes はログイン時に要求するスコープ。
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/photospicker.mediaitems.readonly",
	"https://www.googleapis.com/auth/photoslibrary.appendonly",
	"https://www.googleapis.com/auth/photoslibrary.readonly.appcreateddata",
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*model.OAuthTokens, *model.OAuthUserInfo, error)
	// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
	Refresh(ctx context.Context, refreshToken string) (*model.OAuthTokens, error)
}

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string
}

// GoogleOAuthProvider はGoogle OAuth 2.0による認証を提供する。
type GoogleOAuthProvider struct {
	oauth2      *oauth2.Config
	userInfoURL string
	timeout     time.Duration
	httpClient  *http.Client
	verifier    *IDTokenVerifier
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProviderTimeout
	}

	httpClient := &http.Client{Timeout: config.Timeout}

	return &GoogleOAuthProvider{
		oauth2: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       GoogleScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: config.UserInfoURL,
		timeout:     config.Timeout,
		httpClient:  httpClient,
		verifier:    NewIDTokenVerifier(config.JWKSURL, config.ClientID, httpClient),
	}
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
// リフレッシュトークンを毎回受け取るためoffline/consentを指定する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth2.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
// ID Tokenがあれば検証してクレームを使い、無ければuserinfoエンドポイントに問い合わせる。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.OAuthTokens, *model.OAuthUserInfo, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, nil, providerError(ErrExchangeFailed, err)
	}
	if token.RefreshToken == "" {
		return nil, nil, ErrMissingRefreshToken
	}

	tokens := p.toTokens(token, p.oauth2.Scopes)

	var info *model.OAuthUserInfo
	if tokens.IDToken != "" {
		claims, err := p.verifier.Verify(ctx, tokens.IDToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
		}
		info = &model.OAuthUserInfo{
			ProviderUserID: claims.Subject,
			Email:          claims.Email,
			Name:           claims.Name,
			Provider:       model.ProviderGoogle,
		}
	} else {
		info, err = p.fetchUserInfo(ctx, token.AccessToken)
		if err != nil {
			return nil, nil, err
		}
	}

	return tokens, info, nil
}

// Refresh はリフレッシュトークンでアクセストークンを再取得する。
// プロバイダーが新しいリフレッシュトークンを返さなかった場合は送信した値を保持する。
func (p *GoogleOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*model.OAuthTokens, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	token, err := p.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, providerError(ErrRefreshFailed, err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	return p.toTokens(token, nil), nil
}

func (p *GoogleOAuthProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return context.WithTimeout(ctx, p.timeout)
}

// toTokens はoauth2.Tokenを変換する。
// scopeが省略された場合は要求どおり付与されたものとみなす（RFC 6749 §5.1）。
func (p *GoogleOAuthProvider) toTokens(token *oauth2.Token, requested []string) *model.OAuthTokens {
	tokens := &model.OAuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	if scope, ok := token.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		tokens.Scopes = strings.Fields(scope)
	} else if requested != nil {
		tokens.Scopes = append([]string(nil), requested...)
	}

	if idToken, ok := token.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}

	return tokens
}

// fetchUserInfo はアクセストークンでGoogleのユーザー情報を取得する。
func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, accessToken string) (*model.OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, providerError(ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, providerError(ErrIdentityUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user info fetch failed with status %d", ErrIdentityUnavailable, resp.StatusCode)
	}

	var raw struct {
		Sub   string `json:"sub"`
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse user info response: %w", ErrIdentityUnavailable, err)
	}

	subject := raw.Sub
	if subject == "" {
		subject = raw.ID
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: empty subject in user info response", ErrIdentityUnavailable)
	}

	return &model.OAuthUserInfo{
		ProviderUserID: subject,
		Email:          raw.Email,
		Name:           raw.Name,
		Provider:       model.ProviderGoogle,
	}, nil
}

// providerError はkindでラップし、タイムアウトの場合はErrProviderTimeoutも付与する。
func providerError(kind, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %w: %w", kind, ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
