// Package identity provides account registration, login, and session tokens.
package identity

import (
	"context"

	"github.com/mberezin/tubedigest/internal/domain"
)

// Repository defines the interface for the credential store.
type Repository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdateAccount(ctx context.Context, account *domain.Account) error
	CountAccounts(ctx context.Context) (int64, error)

	SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteAccountRefreshTokens(ctx context.Context, accountID string) error
}

// TokenPair is an access/refresh token pair issued at login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Authenticator issues and validates session tokens.
type Authenticator interface {
	GenerateTokens(ctx context.Context, account *domain.Account) (*TokenPair, error)
	ValidateAccessToken(ctx context.Context, token string) (accountID, email string, role domain.Role, err error)
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error)
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}
