package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mberezin/tubedigest/internal/domain"
)

// mockRepository implements Repository in memory, keyed by lowercase email.
type mockRepository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	tokens   map[string]*domain.RefreshToken
	nextID   int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts: make(map[string]*domain.Account),
		tokens:   make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRepository) CreateAccount(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.NormalizeEmail(account.Email)
	if _, ok := m.accounts[key]; ok {
		return ErrDuplicateAccount
	}
	m.nextID++
	account.ID = fmt.Sprintf("acc-%d", m.nextID)
	copied := *account
	m.accounts[key] = &copied
	return nil
}

func (m *mockRepository) GetAccountByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.ID == id {
			copied := *acc
			return &copied, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *mockRepository) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[domain.NormalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *acc
	return &copied, nil
}

func (m *mockRepository) UpdateAccount(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.NormalizeEmail(account.Email)
	if _, ok := m.accounts[key]; !ok {
		return ErrAccountNotFound
	}
	copied := *account
	m.accounts[key] = &copied
	return nil
}

func (m *mockRepository) CountAccounts(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.accounts)), nil
}

func (m *mockRepository) SaveRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRepository) GetRefreshToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return t, nil
}

func (m *mockRepository) DeleteRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *mockRepository) DeleteAccountRefreshTokens(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.tokens {
		if t.AccountID == accountID {
			delete(m.tokens, k)
		}
	}
	return nil
}

// mockAuthenticator implements Authenticator with fixed tokens.
type mockAuthenticator struct{}

func (m *mockAuthenticator) GenerateTokens(_ context.Context, account *domain.Account) (*TokenPair, error) {
	return &TokenPair{AccessToken: "access-" + account.ID, RefreshToken: "refresh-" + account.ID}, nil
}

func (m *mockAuthenticator) ValidateAccessToken(_ context.Context, _ string) (string, string, domain.Role, error) {
	return "", "", "", ErrInvalidToken
}

func (m *mockAuthenticator) RefreshTokens(_ context.Context, _ string) (*TokenPair, error) {
	return nil, ErrInvalidToken
}

func (m *mockAuthenticator) RevokeRefreshToken(_ context.Context, _ string) error {
	return nil
}

// mockChannelStore implements ChannelStore, failing for listed URLs.
type mockChannelStore struct {
	mu      sync.Mutex
	subs    map[string][]domain.Subscription
	failFor map[string]error
	adds    int
	nextID  int
}

func newMockChannelStore() *mockChannelStore {
	return &mockChannelStore{
		subs:    make(map[string][]domain.Subscription),
		failFor: make(map[string]error),
	}
}

func (m *mockChannelStore) Add(_ context.Context, accountEmail, channelURL, channelName string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds++
	if err := m.failFor[channelURL]; err != nil {
		return nil, err
	}
	m.nextID++
	sub := domain.Subscription{
		ID:           fmt.Sprintf("sub-%d", m.nextID),
		AccountEmail: accountEmail,
		ChannelURL:   channelURL,
		ChannelName:  channelName,
		IsActive:     true,
	}
	m.subs[accountEmail] = append(m.subs[accountEmail], sub)
	return &sub, nil
}

func (m *mockChannelStore) ListByAccount(_ context.Context, accountEmail string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[accountEmail], nil
}

// mockMailer records confirmation sends.
type mockMailer struct {
	mu    sync.Mutex
	sends int
	err   error
}

func (m *mockMailer) SendConfirmation(_ context.Context, _ *domain.Account, _ []domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	return m.err
}

func channels(urls ...string) []ChannelInput {
	out := make([]ChannelInput, 0, len(urls))
	for _, u := range urls {
		out = append(out, ChannelInput{URL: u})
	}
	return out
}

const (
	chanA = "https://www.youtube.com/channel/UCaaaaaaaaaaaaaaaaaaaaaa"
	chanB = "https://www.youtube.com/channel/UCbbbbbbbbbbbbbbbbbbbbbb"
	chanC = "https://www.youtube.com/channel/UCcccccccccccccccccccccc"
)

func TestService_Register(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	store := newMockChannelStore()
	mailer := &mockMailer{}
	svc := NewService(repo, &mockAuthenticator{}, store, mailer)

	// Act
	result, err := svc.Register(context.Background(), RegisterInput{
		DisplayName: "Alice",
		Email:       "  Alice@Example.COM ",
		Password:    "sekret1",
		Channels:    channels(chanA, chanB, chanC),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", result.Account.Email, "email is normalized")
	assert.Equal(t, domain.RoleUser, result.Account.Role)
	assert.Equal(t, domain.DefaultNotifyTime, result.Account.NotifyAt)
	assert.Len(t, result.Subscriptions, 3, "one subscription per channel")
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, store.adds)
	assert.Equal(t, 1, mailer.sends)

	// The stored hash verifies against the plaintext.
	stored, err := repo.GetAccountByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("sekret1")))
}

func TestService_RegisterDuplicateEmailLeavesNoTrace(t *testing.T) {
	repo := newMockRepository()
	store := newMockChannelStore()
	svc := NewService(repo, &mockAuthenticator{}, store, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "sekret1", Channels: channels(chanA),
	})
	require.NoError(t, err)

	// Same email again, different channel.
	_, err = svc.Register(context.Background(), RegisterInput{
		Email: "ALICE@example.com", Password: "other-pass", Channels: channels(chanB),
	})
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	// The rejected registration created nothing.
	subs, _ := store.ListByAccount(context.Background(), "alice@example.com")
	assert.Len(t, subs, 1)
	count, _ := repo.CountAccounts(context.Background())
	assert.Equal(t, int64(1), count)
}

func TestService_RegisterPartialChannelFailure(t *testing.T) {
	repo := newMockRepository()
	store := newMockChannelStore()
	store.failFor[chanB] = errors.New("store unavailable")
	svc := NewService(repo, &mockAuthenticator{}, store, nil)

	result, err := svc.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "sekret1",
		Channels: channels(chanA, chanB, chanC),
	})

	// The saga keeps the account and the successful channels.
	require.NoError(t, err)
	assert.Len(t, result.Subscriptions, 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, chanB, result.Failures[0].ChannelURL)
	assert.Contains(t, result.Failures[0].Message, "store unavailable")
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(newMockRepository(), &mockAuthenticator{}, newMockChannelStore(), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{
			name:    "malformed email",
			input:   RegisterInput{Email: "not-an-email", Password: "sekret1", Channels: channels(chanA)},
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "short password",
			input:   RegisterInput{Email: "a@example.com", Password: "short", Channels: channels(chanA)},
			wantErr: ErrPasswordTooShort,
		},
		{
			name:    "no channels",
			input:   RegisterInput{Email: "a@example.com", Password: "sekret1"},
			wantErr: ErrNoChannels,
		},
		{
			name:    "non-youtube channel",
			input:   RegisterInput{Email: "a@example.com", Password: "sekret1", Channels: channels("https://vimeo.com/chan")},
			wantErr: ErrInvalidChannelURL,
		},
		{
			name: "off-grid notify time",
			input: RegisterInput{
				Email: "a@example.com", Password: "sekret1", NotifyAt: "09:15",
				Channels: channels(chanA),
			},
			wantErr: domain.ErrInvalidNotifyTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_LoginUniformCredentialError(t *testing.T) {
	repo := newMockRepository()
	store := newMockChannelStore()
	svc := NewService(repo, &mockAuthenticator{}, store, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "sekret1", Channels: channels(chanA),
	})
	require.NoError(t, err)

	// Unknown email and wrong password yield the identical sentinel.
	_, _, unknownErr := svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "sekret1"})
	_, _, wrongErr := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "wrong"})

	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestService_LoginMaterializesCurrentSubscriptions(t *testing.T) {
	repo := newMockRepository()
	store := newMockChannelStore()
	svc := NewService(repo, &mockAuthenticator{}, store, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "sekret1", Channels: channels(chanA),
	})
	require.NoError(t, err)

	// A channel added after registration shows up at the next login.
	_, err = store.Add(context.Background(), "alice@example.com", chanB, "")
	require.NoError(t, err)

	result, tokens, err := svc.Login(context.Background(), LoginInput{
		Email: "alice@example.com", Password: "sekret1",
	})
	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, 2, result.SubscriptionCount)
	assert.Len(t, result.Subscriptions, 2)
}

func TestService_UpdateAccount(t *testing.T) {
	repo := newMockRepository()
	store := newMockChannelStore()
	svc := NewService(repo, &mockAuthenticator{}, store, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "sekret1", Channels: channels(chanA),
	})
	require.NoError(t, err)

	name := "Alice Q."
	notifyAt := "18:30"
	updated, err := svc.UpdateAccount(context.Background(), "alice@example.com", UpdateAccountInput{
		DisplayName: &name,
		NotifyAt:    &notifyAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Q.", updated.DisplayName)
	assert.Equal(t, domain.NotifyTime("18:30"), updated.NotifyAt)

	bad := "07:17"
	_, err = svc.UpdateAccount(context.Background(), "alice@example.com", UpdateAccountInput{NotifyAt: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidNotifyTime)

	short := "abc"
	_, err = svc.UpdateAccount(context.Background(), "alice@example.com", UpdateAccountInput{Password: &short})
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestService_PasswordChangeRevokesRefreshTokens(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockAuthenticator{}, newMockChannelStore(), nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Email: "alice@example.com", Password: "sekret1", Channels: channels(chanA),
	})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{
		Email: "bob@example.com", Password: "sekret1", Channels: channels(chanB),
	})
	require.NoError(t, err)

	alice, err := repo.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	bob, err := repo.GetAccountByEmail(ctx, "bob@example.com")
	require.NoError(t, err)

	// Both accounts hold live sessions.
	require.NoError(t, repo.SaveRefreshToken(ctx, &domain.RefreshToken{Token: "alice-tok", AccountID: alice.ID}))
	require.NoError(t, repo.SaveRefreshToken(ctx, &domain.RefreshToken{Token: "bob-tok", AccountID: bob.ID}))

	newPassword := "n3wsekret"
	_, err = svc.UpdateAccount(ctx, "alice@example.com", UpdateAccountInput{Password: &newPassword})
	require.NoError(t, err)

	// Alice's outstanding sessions are gone; Bob's survive.
	_, err = repo.GetRefreshToken(ctx, "alice-tok")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = repo.GetRefreshToken(ctx, "bob-tok")
	assert.NoError(t, err)

	// A name-only update leaves sessions alone.
	require.NoError(t, repo.SaveRefreshToken(ctx, &domain.RefreshToken{Token: "alice-tok2", AccountID: alice.ID}))
	name := "Alice Q."
	_, err = svc.UpdateAccount(ctx, "alice@example.com", UpdateAccountInput{DisplayName: &name})
	require.NoError(t, err)
	_, err = repo.GetRefreshToken(ctx, "alice-tok2")
	assert.NoError(t, err)
}

func TestService_EnsureAdmin(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockAuthenticator{}, newMockChannelStore(), nil)
	ctx := context.Background()

	// Creates the account when missing.
	require.NoError(t, svc.EnsureAdmin(ctx, "root@example.com", "sekret1", "Root"))
	acc, err := repo.GetAccountByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, acc.Role)

	// Promotes an existing user account.
	_, err = svc.Register(ctx, RegisterInput{
		Email: "bob@example.com", Password: "sekret1", Channels: channels(chanA),
	})
	require.NoError(t, err)
	require.NoError(t, svc.EnsureAdmin(ctx, "bob@example.com", "ignored", "Bob"))
	acc, err = repo.GetAccountByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, acc.Role)

	// No-op without a configured admin email.
	require.NoError(t, svc.EnsureAdmin(ctx, "", "", ""))
}
