package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/credana/lending-service/internal/config"
	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Notifier delivers user-facing notifications after lifecycle transitions.
// Delivery failures are logged and never fail the triggering operation.
type Notifier interface {
	PaymentStatusChanged(to, username string, intent *models.PaymentIntent) error
	SendPaymentReminder(to, username string, dueDate time.Time, amount, penalty decimal.Decimal, isOverdue bool) error
}

// RateSource supplies the benchmark annual rate used to price loan
// applications that carry no explicit rate.
type RateSource interface {
	BaseRate() (decimal.Decimal, error)
}

// Service handles business logic
type Service struct {
	store    store.Store
	log      *logrus.Logger
	cfg      *config.Config
	notifier Notifier
	rates    RateSource
	now      func() time.Time
}

// NewService initializes a new service. notifier and rates may be nil.
func NewService(st store.Store, log *logrus.Logger, cfg *config.Config, notifier Notifier, rates RateSource) *Service {
	return &Service{
		store:    st,
		log:      log,
		cfg:      cfg,
		notifier: notifier,
		rates:    rates,
		now:      time.Now,
	}
}

// OwnerID extracts the authenticated user id set by the auth middleware.
func OwnerID(ctx context.Context) (int64, error) {
	userIDStr, ok := ctx.Value("userID").(string)
	if !ok || userIDStr == "" {
		return 0, fmt.Errorf("user ID not found in context")
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %w", err)
	}
	return userID, nil
}

// notifyPayment sends a lifecycle notification, fire-and-forget.
func (s *Service) notifyPayment(ctx context.Context, intent *models.PaymentIntent) {
	if s.notifier == nil {
		return
	}
	user, err := s.store.UserByID(ctx, intent.UserID)
	if err != nil {
		s.log.Warnf("Failed to resolve user %d for notification: %v", intent.UserID, err)
		return
	}
	if err := s.notifier.PaymentStatusChanged(user.Email, user.Username, intent); err != nil {
		s.log.Warnf("Failed to notify %s about payment %s: %v", user.Email, intent.Reference, err)
	}
}
