package models

import "time"

// MembershipStatus of a flex membership.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipExpired   MembershipStatus = "expired"
	MembershipCancelled MembershipStatus = "cancelled"
)

// FlexMembership entitles the holder to waived delay fees and interest.
// At most one membership per user may be active at any instant.
type FlexMembership struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	StartsAt  time.Time        `json:"starts_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// Covers reports whether the validity window contains the given instant.
// Callers check this in addition to the stored status because the expiry
// sweep runs periodically, not on the read path.
func (m *FlexMembership) Covers(now time.Time) bool {
	return !now.Before(m.StartsAt) && now.Before(m.ExpiresAt)
}
