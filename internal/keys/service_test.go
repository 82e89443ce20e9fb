package keys

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/model"
	"github.com/joenofro/revenue-api/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockStore) HasActiveKeyForEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	window := NewMemoryWindow(3, time.Hour, nil)
	return NewService(store, window, config.DefaultTiers(), zap.NewNop())
}

func TestMint(t *testing.T) {
	a, err := Mint()
	require.NoError(t, err)
	b, err := Mint()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, TokenPrefix))
	assert.Len(t, a, len(TokenPrefix)+43)
	assert.NotEqual(t, a, b)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk_abc...wxyz", Mask("sk_abcdefghijklmnopwxyz"))
	assert.Equal(t, "***", Mask("short"))
}

func TestRegisterInvalidEmailNeverTouchesStore(t *testing.T) {
	store := new(mockStore)
	svc := newTestService(t, store)

	for _, email := range []string{"", "plain", "a@b", "@example.com", "a b@example.com", "a@example.c"} {
		_, err := svc.Register(context.Background(), email, "10.0.0.1")
		assert.True(t, apperr.Is(err, apperr.InvalidInput), email)
	}
	store.AssertNotCalled(t, "HasActiveKeyForEmail", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "CreateAPIKey", mock.Anything, mock.Anything)

	// Rejected emails do not consume the source's registration budget.
	store.On("HasActiveKeyForEmail", mock.Anything, mock.Anything).Return(false, nil)
	store.On("CreateAPIKey", mock.Anything, mock.Anything).Return(nil)
	_, err := svc.Register(context.Background(), "ok@example.com", "10.0.0.1")
	assert.NoError(t, err)
}

func TestRegisterConflict(t *testing.T) {
	store := testutil.NewTestService(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Register(ctx, "dup@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "free", first.Tier)
	assert.Equal(t, 100, first.DailyLimit)
	assert.Equal(t, 3000, first.MonthlyLimit)

	_, err = svc.Register(ctx, "dup@example.com", "10.0.0.2")
	assert.True(t, apperr.Is(err, apperr.Conflict))

	key, err := store.FindActiveAPIKey(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, "dup@example.com", key.Email)
}

func TestRegisterRateLimitedPerSource(t *testing.T) {
	store := testutil.NewTestService(t)
	clock := &fixedClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, NewMemoryWindow(3, time.Hour, clock.Now), config.DefaultTiers(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Register(ctx, fmt.Sprintf("u%d@example.com", i), "1.2.3.4")
		require.NoError(t, err)
	}
	_, err := svc.Register(ctx, "u9@example.com", "1.2.3.4")
	assert.True(t, apperr.Is(err, apperr.RateLimited))

	_, err = svc.Register(ctx, "other@example.com", "5.6.7.8")
	assert.NoError(t, err)

	clock.t = clock.t.Add(time.Hour)
	_, err = svc.Register(ctx, "u9@example.com", "1.2.3.4")
	assert.NoError(t, err)
}

func TestIssue(t *testing.T) {
	store := testutil.NewTestService(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "ops@example.com", "pro", nil)
	require.NoError(t, err)
	assert.Equal(t, 10000, issued.DailyLimit)
	assert.Equal(t, 300000, issued.MonthlyLimit)

	override := 250
	issued, err = svc.Issue(ctx, "ops@example.com", "basic", &override)
	require.NoError(t, err)
	assert.Equal(t, 250, issued.DailyLimit)
	assert.Equal(t, 7500, issued.MonthlyLimit)

	_, err = svc.Issue(ctx, "ops@example.com", "platinum", nil)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	zero := 0
	_, err = svc.Issue(ctx, "ops@example.com", "basic", &zero)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestIssueWithRetryOnCollision(t *testing.T) {
	store := new(mockStore)
	svc := newTestService(t, store)

	store.On("CreateAPIKey", mock.Anything, mock.Anything).Return(fmt.Errorf("%w: unique", db.ErrDuplicate)).Once()
	store.On("CreateAPIKey", mock.Anything, mock.Anything).Return(nil).Once()

	issued, err := svc.IssueWithRetry(context.Background(), "buyer@example.com", "pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", issued.Tier)
	store.AssertNumberOfCalls(t, "CreateAPIKey", 2)
}

func TestIssueWithRetryGivesUpAfterSecondCollision(t *testing.T) {
	store := new(mockStore)
	svc := newTestService(t, store)

	store.On("CreateAPIKey", mock.Anything, mock.Anything).Return(fmt.Errorf("%w: unique", db.ErrDuplicate))

	_, err := svc.IssueWithRetry(context.Background(), "buyer@example.com", "basic")
	assert.True(t, apperr.Is(err, apperr.Internal))
	store.AssertNumberOfCalls(t, "CreateAPIKey", 2)
}
