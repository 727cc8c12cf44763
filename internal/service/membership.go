package service

import (
	"context"
	"fmt"

	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
)

// SubscribeFlex starts a flex membership running from now for the given
// number of months. A user with a currently valid membership is rejected
// with AlreadySubscribed.
func (s *Service) SubscribeFlex(ctx context.Context, userID int64, months int) (*models.FlexMembership, error) {
	if months <= 0 {
		return nil, fmt.Errorf("membership term must be positive, got %d", months)
	}
	var out *models.FlexMembership
	err := s.store.InTx(ctx, func(st store.Store) error {
		existing, err := st.ActiveMembership(ctx, userID)
		if err != nil {
			return err
		}
		now := s.now()
		if existing != nil {
			if existing.Covers(now) {
				return fmt.Errorf("user %d: %w", userID, store.ErrAlreadySubscribed)
			}
			// Stale active row past its window; the sweep has not caught it yet.
			existing.Status = models.MembershipExpired
			if err := st.UpdateMembership(ctx, existing); err != nil {
				return err
			}
		}
		out = &models.FlexMembership{
			UserID:    userID,
			StartsAt:  now,
			ExpiresAt: now.AddDate(0, months, 0),
			Status:    models.MembershipActive,
		}
		return st.CreateMembership(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("User %d subscribed to flex until %s", userID, out.ExpiresAt.Format("2006-01-02"))
	return out, nil
}

// MembershipActive reports whether the user holds a membership that is
// active and whose validity window contains now. The window is re-checked
// on every read rather than trusting the stored status, because the expiry
// sweep runs periodically.
func (s *Service) MembershipActive(ctx context.Context, userID int64) (bool, error) {
	return s.membershipActive(ctx, s.store, userID)
}

func (s *Service) membershipActive(ctx context.Context, st store.Store, userID int64) (bool, error) {
	m, err := st.ActiveMembership(ctx, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Covers(s.now()), nil
}

// CancelMembership cancels the user's active membership.
func (s *Service) CancelMembership(ctx context.Context, userID int64) error {
	err := s.store.InTx(ctx, func(st store.Store) error {
		m, err := st.ActiveMembership(ctx, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("user %d has no active membership", userID)
		}
		m.Status = models.MembershipCancelled
		return st.UpdateMembership(ctx, m)
	})
	if err != nil {
		return err
	}
	s.log.Infof("User %d cancelled flex membership", userID)
	return nil
}

// ExpireDueMemberships flips active memberships whose validity window has
// ended to expired. Intended to run from the periodic sweep; each
// invocation is idempotent.
func (s *Service) ExpireDueMemberships(ctx context.Context) (int, error) {
	expired := 0
	err := s.store.InTx(ctx, func(st store.Store) error {
		due, err := st.MembershipsPastWindow(ctx, s.now())
		if err != nil {
			return err
		}
		for i := range due {
			due[i].Status = models.MembershipExpired
			if err := st.UpdateMembership(ctx, &due[i]); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Infof("Expired %d flex membership(s)", expired)
	}
	return expired, nil
}
