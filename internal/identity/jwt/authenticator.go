// Package jwt implements the identity.Authenticator using signed JWTs for
// access tokens and server-stored opaque refresh tokens.
package jwt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mberezin/tubedigest/internal/domain"
	"github.com/mberezin/tubedigest/internal/identity"
)

// Config contains authenticator settings.
type Config struct {
	SecretKey            string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

// claims carried by access tokens. The role claim is what separates the
// owner and admin authorization classes; nothing client-asserted is trusted.
type claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates session tokens.
type Authenticator struct {
	config Config
	repo   identity.Repository
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(config Config, repo identity.Repository) *Authenticator {
	return &Authenticator{config: config, repo: repo}
}

// GenerateTokens issues a signed access token and stores a new opaque
// refresh token for the account.
func (a *Authenticator) GenerateTokens(ctx context.Context, account *domain.Account) (*identity.TokenPair, error) {
	access, err := a.signAccessToken(account)
	if err != nil {
		return nil, err
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}

	if err := a.repo.SaveRefreshToken(ctx, &domain.RefreshToken{
		Token:     refresh,
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(a.config.RefreshTokenDuration),
	}); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &identity.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateAccessToken parses and verifies an access token.
func (a *Authenticator) ValidateAccessToken(_ context.Context, token string) (string, string, domain.Role, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil || !parsed.Valid {
		return "", "", "", identity.ErrInvalidToken
	}

	return c.Subject, c.Email, c.Role, nil
}

// RefreshTokens rotates a refresh token, returning a fresh pair.
func (a *Authenticator) RefreshTokens(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	stored, err := a.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return nil, identity.ErrInvalidToken
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored == nil || stored.Expired(time.Now()) {
		return nil, identity.ErrInvalidToken
	}

	account, err := a.repo.GetAccountByID(ctx, stored.AccountID)
	if err != nil {
		return nil, identity.ErrInvalidToken
	}

	// Rotation: the presented token is single-use.
	if err := a.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("delete refresh token: %w", err)
	}

	return a.GenerateTokens(ctx, account)
}

// RevokeRefreshToken invalidates a refresh token.
func (a *Authenticator) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return a.repo.DeleteRefreshToken(ctx, refreshToken)
}

func (a *Authenticator) signAccessToken(account *domain.Account) (string, error) {
	now := time.Now()
	c := claims{
		Email: account.Email,
		Role:  account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
