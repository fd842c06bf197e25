package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	defaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	jwksFetchTimeout     = 10 * time.Second
)

// googleIssuers はGoogleのID Tokenで許可されるiss値。
var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// IDTokenClaims は検証済みGoogle ID Tokenのクレーム。
type IDTokenClaims struct {
	Subject       string `json:"sub"`
	Issuer        string `json:"iss"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// IDTokenVerifier はGoogleの公開鍵（JWKS）でID Tokenの署名とクレームを検証する。
// 鍵はoidc.RemoteKeySetがキャッシュし、未知のkidを受け取った場合のみ再取得する。
// 再取得は検証要求のcontextから切り離されて実行される。
type IDTokenVerifier struct {
	verifier *oidc.IDTokenVerifier
	issuers  []string
}

// NewIDTokenVerifier はIDTokenVerifierを生成する。
// jwksURLが空の場合はGoogleの公開エンドポイントを使う。
func NewIDTokenVerifier(jwksURL, audience string, httpClient *http.Client) *IDTokenVerifier {
	if jwksURL == "" {
		jwksURL = defaultGoogleJWKSURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: jwksFetchTimeout}
	}

	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), httpClient), jwksURL)

	// Googleはissに2種類の表記を使うため、issuerはVerify側で照合する
	verifier := oidc.NewVerifier("", keySet, &oidc.Config{
		ClientID:             audience,
		SupportedSigningAlgs: []string{oidc.RS256},
		SkipIssuerCheck:      true,
	})

	return &IDTokenVerifier{verifier: verifier, issuers: googleIssuers}
}

// Verify はID Tokenを検証し、クレームを返す。
func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (*IDTokenClaims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	if !slices.Contains(v.issuers, token.Issuer) {
		return nil, fmt.Errorf("unexpected id token issuer %q", token.Issuer)
	}

	claims := &IDTokenClaims{}
	if err := token.Claims(claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("id token has empty subject")
	}

	return claims, nil
}
