package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mberezin/tubedigest/internal/domain"
)

// mockRepository implements Repository in memory.
type mockRepository struct {
	mu     sync.Mutex
	subs   map[string]*domain.Subscription
	nextID int
}

func newMockRepository() *mockRepository {
	return &mockRepository{subs: make(map[string]*domain.Subscription)}
}

func (m *mockRepository) Create(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if domain.NormalizeEmail(existing.AccountEmail) == domain.NormalizeEmail(sub.AccountEmail) &&
			strings.EqualFold(existing.ChannelURL, sub.ChannelURL) {
			return ErrDuplicateChannel
		}
	}
	m.nextID++
	sub.ID = fmt.Sprintf("sub-%d", m.nextID)
	copied := *sub
	m.subs[sub.ID] = &copied
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (m *mockRepository) ListByAccount(_ context.Context, accountEmail string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range m.subs {
		if domain.NormalizeEmail(sub.AccountEmail) == domain.NormalizeEmail(accountEmail) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *mockRepository) ListAll(_ context.Context) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, *sub)
	}
	return out, nil
}

func (m *mockRepository) ListActive(_ context.Context) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range m.subs {
		if sub.IsActive {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *mockRepository) ListActiveDueAt(_ context.Context, _ domain.NotifyTime) ([]domain.Subscription, error) {
	return nil, nil
}

func (m *mockRepository) Update(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	copied := *sub
	m.subs[sub.ID] = &copied
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *mockRepository) Counts(_ context.Context) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, active int64
	for _, sub := range m.subs {
		total++
		if sub.IsActive {
			active++
		}
	}
	return total, active, nil
}

func (m *mockRepository) SetLastCheck(_ context.Context, _ string, _ time.Time) error {
	return nil
}

const testChannel = "https://www.youtube.com/channel/UCaaaaaaaaaaaaaaaaaaaaaa"

func TestService_Add(t *testing.T) {
	svc := NewService(newMockRepository())

	sub, err := svc.Add(context.Background(), "Alice@Example.com", testChannel, "Gophers")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", sub.AccountEmail)
	assert.Equal(t, "Gophers", sub.ChannelName)
	assert.True(t, sub.IsActive)
	assert.NotEmpty(t, sub.ID)
}

func TestService_AddRejectsNonYouTubeURL(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Add(context.Background(), "alice@example.com", "https://vimeo.com/chan", "")
	assert.ErrorIs(t, err, ErrInvalidChannelURL)
}

func TestService_AddRejectsDuplicateChannel(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Add(context.Background(), "alice@example.com", testChannel, "")
	require.NoError(t, err)

	_, err = svc.Add(context.Background(), "ALICE@example.com", testChannel, "")
	assert.ErrorIs(t, err, ErrDuplicateChannel)

	// Case variants of the URL are the same channel.
	_, err = svc.Add(context.Background(), "alice@example.com", strings.ToUpper(testChannel), "")
	assert.ErrorIs(t, err, ErrDuplicateChannel)
}

func TestService_UpdateOwnership(t *testing.T) {
	svc := NewService(newMockRepository())

	sub, err := svc.Add(context.Background(), "alice@example.com", testChannel, "")
	require.NoError(t, err)

	// The owner can deactivate.
	inactive := false
	updated, err := svc.Update(context.Background(), "alice@example.com", sub.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	// Another account cannot touch it and the row is unchanged.
	name := "hijacked"
	_, err = svc.Update(context.Background(), "mallory@example.com", sub.ID, UpdateInput{ChannelName: &name})
	assert.ErrorIs(t, err, ErrNotOwner)

	current, err := svc.ListByAccount(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.NotEqual(t, "hijacked", current[0].ChannelName)
}

func TestService_DeleteIsolation(t *testing.T) {
	svc := NewService(newMockRepository())

	first, err := svc.Add(context.Background(), "alice@example.com", testChannel, "")
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), "alice@example.com",
		"https://www.youtube.com/channel/UCbbbbbbbbbbbbbbbbbbbbbb", "")
	require.NoError(t, err)

	// Non-owner delete is rejected.
	err = svc.Delete(context.Background(), "mallory@example.com", first.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	// Owner delete removes only the targeted row.
	require.NoError(t, svc.Delete(context.Background(), "alice@example.com", first.ID))

	remaining, err := svc.ListByAccount(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	// Deleting again reports not found.
	err = svc.Delete(context.Background(), "alice@example.com", first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_AdminDeleteSkipsOwnership(t *testing.T) {
	svc := NewService(newMockRepository())

	sub, err := svc.Add(context.Background(), "alice@example.com", testChannel, "")
	require.NoError(t, err)

	require.NoError(t, svc.AdminDelete(context.Background(), sub.ID))

	err = svc.AdminDelete(context.Background(), "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
