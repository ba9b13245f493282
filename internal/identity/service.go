package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/mberezin/tubedigest/internal/domain"
	"github.com/mberezin/tubedigest/internal/pkg/ctxlog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

// minPasswordLen is the minimum accepted password length.
const minPasswordLen = 6

// registerFanOut bounds the parallelism of channel creation during
// registration.
const registerFanOut = 4

// dummyHash is compared against on unknown-email logins so the two
// invalid-credential paths cost roughly the same.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tubedigest-dummy"), bcrypt.DefaultCost)

// ChannelStore is the subscription-store surface registration needs.
type ChannelStore interface {
	Add(ctx context.Context, accountEmail, channelURL, channelName string) (*domain.Subscription, error)
	ListByAccount(ctx context.Context, accountEmail string) ([]domain.Subscription, error)
}

// ConfirmationMailer sends the post-registration confirmation email.
// The send is best-effort; registration never fails on it.
type ConfirmationMailer interface {
	SendConfirmation(ctx context.Context, account *domain.Account, subs []domain.Subscription) error
}

// Service provides identity business logic.
type Service struct {
	repo     Repository
	auth     Authenticator
	channels ChannelStore
	mailer   ConfirmationMailer
}

// NewService creates a new identity service. mailer may be nil.
func NewService(repo Repository, auth Authenticator, channels ChannelStore, mailer ConfirmationMailer) *Service {
	return &Service{
		repo:     repo,
		auth:     auth,
		channels: channels,
		mailer:   mailer,
	}
}

// ChannelInput describes one channel in a registration request.
type ChannelInput struct {
	URL  string
	Name string
}

// RegisterInput describes a registration request.
type RegisterInput struct {
	DisplayName string
	Email       string
	Password    string
	NotifyAt    string
	Channels    []ChannelInput
}

// ChannelFailure records one failed channel creation inside a registration.
type ChannelFailure struct {
	ChannelURL string `json:"channel_url"`
	Message    string `json:"message"`
}

// RegisterResult is the aggregate outcome of a registration. Channel
// creation is a saga, not a transaction: the account and any subscriptions
// created before a failure persist, and Failures lists what did not.
type RegisterResult struct {
	Account       *domain.Account       `json:"account"`
	Subscriptions []domain.Subscription `json:"subscriptions"`
	Failures      []ChannelFailure      `json:"errors"`
}

// Register creates an account and fans out one subscription per channel.
// Validation failures and a duplicate email reject the whole request before
// any write. After the account exists, channel creation is best-effort with
// bounded parallelism and no rollback; failed channels can be retried via
// the subscription add path.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	email := domain.NormalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(input.Password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}
	if len(input.Channels) == 0 {
		return nil, ErrNoChannels
	}
	for _, ch := range input.Channels {
		if !domain.ValidChannelURL(ch.URL) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChannelURL, ch.URL)
		}
	}

	notifyAt := domain.DefaultNotifyTime
	if input.NotifyAt != "" {
		parsed, err := domain.ParseNotifyTime(input.NotifyAt)
		if err != nil {
			return nil, err
		}
		notifyAt = parsed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &domain.Account{
		Email:        email,
		DisplayName:  input.DisplayName,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		NotifyAt:     notifyAt,
	}

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	result := &RegisterResult{
		Account:       account,
		Subscriptions: make([]domain.Subscription, 0, len(input.Channels)),
	}

	// One creation call per channel, bounded parallelism, no cancellation of
	// siblings on failure. Ordering between the calls is unspecified.
	type outcome struct {
		sub *domain.Subscription
		err error
	}
	outcomes := make([]outcome, len(input.Channels))

	var g errgroup.Group
	g.SetLimit(registerFanOut)
	for i, ch := range input.Channels {
		g.Go(func() error {
			sub, err := s.channels.Add(ctx, email, ch.URL, ch.Name)
			outcomes[i] = outcome{sub: sub, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if o.err != nil {
			result.Failures = append(result.Failures, ChannelFailure{
				ChannelURL: input.Channels[i].URL,
				Message:    o.err.Error(),
			})
			continue
		}
		result.Subscriptions = append(result.Subscriptions, *o.sub)
	}

	if s.mailer != nil {
		if err := s.mailer.SendConfirmation(ctx, account, result.Subscriptions); err != nil {
			ctxlog.FromContext(ctx).Warn("confirmation email failed",
				"email", account.Email,
				"error", err,
			)
		}
	}

	return result, nil
}

// LoginInput describes a login request.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is the materialized session returned on successful login: the
// account plus a point-in-time read of its full subscription set.
type LoginResult struct {
	Account           *domain.Account       `json:"account"`
	Subscriptions     []domain.Subscription `json:"subscriptions"`
	SubscriptionCount int                   `json:"subscription_count"`
}

// Login authenticates the credentials and loads the account's current
// subscriptions. Unknown email and wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, *TokenPair, error) {
	email := domain.NormalizeEmail(input.Email)

	account, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Equalize timing with the wrong-password path.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(input.Password))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	// Fresh read against the store, not a snapshot carried from
	// registration time.
	subs, err := s.channels.ListByAccount(ctx, account.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("load subscriptions: %w", err)
	}

	tokens, err := s.auth.GenerateTokens(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	return &LoginResult{
		Account:           account,
		Subscriptions:     subs,
		SubscriptionCount: len(subs),
	}, tokens, nil
}

// GetAccountByID returns the account for an authenticated id.
func (s *Service) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	return s.repo.GetAccountByID(ctx, id)
}

// UpdateAccountInput carries the mutable account fields. Nil means "leave
// unchanged". Email is immutable and has no field here.
type UpdateAccountInput struct {
	DisplayName *string
	NotifyAt    *string
	Password    *string
}

// UpdateAccount mutates display name, notification time, or password for the
// account identified by email. The notification time applies to the account
// as a whole; there is no per-subscription override.
func (s *Service) UpdateAccount(ctx context.Context, email string, input UpdateAccountInput) (*domain.Account, error) {
	account, err := s.repo.GetAccountByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		account.DisplayName = *input.DisplayName
	}
	if input.NotifyAt != nil {
		parsed, err := domain.ParseNotifyTime(*input.NotifyAt)
		if err != nil {
			return nil, err
		}
		account.NotifyAt = parsed
	}
	passwordChanged := false
	if input.Password != nil {
		if len(*input.Password) < minPasswordLen {
			return nil, ErrPasswordTooShort
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		account.PasswordHash = string(hash)
		passwordChanged = true
	}

	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}

	// A password change invalidates every outstanding session.
	if passwordChanged {
		if err := s.repo.DeleteAccountRefreshTokens(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("revoke refresh tokens: %w", err)
		}
	}

	return account, nil
}

// RefreshTokens exchanges a refresh token for a new token pair.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.auth.RefreshTokens(ctx, refreshToken)
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.auth.RevokeRefreshToken(ctx, refreshToken)
}

// ValidateToken implements httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, string, domain.Role, error) {
	return s.auth.ValidateAccessToken(ctx, token)
}

// EnsureAdmin creates or repairs the bootstrap administrator account. Called
// once at startup; a no-op when no admin email is configured.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, displayName string) error {
	if email == "" {
		return nil
	}
	email = domain.NormalizeEmail(email)

	account, err := s.repo.GetAccountByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			return fmt.Errorf("hash admin password: %w", hashErr)
		}
		admin := &domain.Account{
			Email:        email,
			DisplayName:  displayName,
			PasswordHash: string(hash),
			Role:         domain.RoleAdmin,
			NotifyAt:     domain.DefaultNotifyTime,
		}
		if createErr := s.repo.CreateAccount(ctx, admin); createErr != nil {
			// Lost a race against a concurrent startup; the account exists.
			if errors.Is(createErr, ErrDuplicateAccount) {
				return nil
			}
			return fmt.Errorf("create admin account: %w", createErr)
		}
		return nil
	case err != nil:
		return err
	}

	if account.Role != domain.RoleAdmin {
		account.Role = domain.RoleAdmin
		if err := s.repo.UpdateAccount(ctx, account); err != nil {
			return fmt.Errorf("promote admin account: %w", err)
		}
	}
	return nil
}
