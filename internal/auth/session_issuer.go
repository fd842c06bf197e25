package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/RazK/Voyage-Voyage/internal/model"
)

// DefaultSessionTTL はセッショントークンの有効期間。
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionClaims はセッショントークンのクレーム。
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID はsubに格納されたユーザーIDを返す。
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// SessionIssuer はHS256で署名されたセッショントークンを発行・検証する。
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer はSessionIssuerを生成する。ttlが0以下の場合はDefaultSessionTTLを使う。
func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock は現在時刻の取得関数を差し替えたコピーを返す。
func (s *SessionIssuer) WithClock(now func() time.Time) *SessionIssuer {
	c := *s
	c.now = now
	return &c
}

// Issue はユーザーのセッショントークンを発行する。
func (s *SessionIssuer) Issue(user *model.User) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("%w: session signing secret is empty", ErrConfiguration)
	}
	if user == nil || user.ID == "" {
		return "", errors.New("user is required to issue a session")
	}

	now := s.now()
	claims := SessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証してクレームを返す。
func (s *SessionIssuer) Verify(token string) (*SessionClaims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("%w: session signing secret is empty", ErrConfiguration)
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrMalformedSubject
	}

	return claims, nil
}
