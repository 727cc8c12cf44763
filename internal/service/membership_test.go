package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFlex(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	m, err := svc.SubscribeFlex(ctx, user.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, m.Status)
	assert.Equal(t, now.AddDate(0, 3, 0), m.ExpiresAt)

	active, err := svc.MembershipActive(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, active)

	// A second subscription while the first is valid is rejected.
	_, err = svc.SubscribeFlex(ctx, user.ID, 1)
	assert.True(t, errors.Is(err, store.ErrAlreadySubscribed))
}

func TestStoreRejectsSecondActiveMembership(t *testing.T) {
	_, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &models.FlexMembership{
		UserID:    user.ID,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 1, 0),
		Status:    models.MembershipActive,
	}
	require.NoError(t, st.CreateMembership(ctx, first))

	// A concurrent subscribe that slipped past the read-then-insert
	// check still cannot commit a second active row.
	second := &models.FlexMembership{
		UserID:    user.ID,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 2, 0),
		Status:    models.MembershipActive,
	}
	err := st.CreateMembership(ctx, second)
	assert.True(t, errors.Is(err, store.ErrAlreadySubscribed))

	// Non-active rows for the same user remain insertable.
	expired := &models.FlexMembership{
		UserID:    user.ID,
		StartsAt:  now.AddDate(0, -2, 0),
		ExpiresAt: now.AddDate(0, -1, 0),
		Status:    models.MembershipExpired,
	}
	require.NoError(t, st.CreateMembership(ctx, expired))
}

func TestMembershipWindowCheckedOnRead(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.SubscribeFlex(ctx, user.ID, 1)
	require.NoError(t, err)

	// Past the window the membership no longer counts, even though the
	// expiry sweep has not flipped the stored status yet.
	now = now.AddDate(0, 2, 0)
	active, err := svc.MembershipActive(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, active)

	// Re-subscribing expires the stale row and opens a fresh window.
	m, err := svc.SubscribeFlex(ctx, user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 1, 0), m.ExpiresAt)

	active, err = svc.MembershipActive(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestExpireDueMemberships(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, st, "alice@example.com")
	bob := createUser(t, st, "bob@example.com")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.SubscribeFlex(ctx, alice.ID, 1)
	require.NoError(t, err)
	_, err = svc.SubscribeFlex(ctx, bob.ID, 6)
	require.NoError(t, err)

	now = now.AddDate(0, 2, 0)
	expired, err := svc.ExpireDueMemberships(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	// The sweep is idempotent.
	expired, err = svc.ExpireDueMemberships(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	active, err := svc.MembershipActive(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestCancelMembership(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")

	_, err := svc.SubscribeFlex(ctx, user.ID, 3)
	require.NoError(t, err)

	require.NoError(t, svc.CancelMembership(ctx, user.ID))

	active, err := svc.MembershipActive(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, active)

	assert.Error(t, svc.CancelMembership(ctx, user.ID))
}
