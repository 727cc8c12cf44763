package service

import (
	"context"
	"io"
	"testing"

	"github.com/credana/lending-service/internal/config"
	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:          "test-secret",
		HMACSecret:         "test-hmac-secret",
		CollectionVPA:      "credana@upi",
		DefaultCreditLimit: dec("1000"),
		ProcessingFeeRate:  dec("0.02"),
		DailyInterestRate:  dec("0.0005"),
		DefaultAnnualRate:  decimal.Zero,
		Fees:               config.DefaultFeeTables(),
	}
}

func newTestService(t *testing.T) (*Service, *store.Memstore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := store.NewMemstore()
	return NewService(st, log, testConfig(), nil, nil), st
}

func createUser(t *testing.T, st *store.Memstore, email string) *models.User {
	t.Helper()
	user := &models.User{Username: email, Email: email, PasswordHash: "x"}
	require.NoError(t, st.CreateUser(context.Background(), user))
	return user
}

func TestOwnerID(t *testing.T) {
	ctx := context.WithValue(context.Background(), "userID", "42")
	id, err := OwnerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = OwnerID(context.Background())
	assert.Error(t, err)

	ctx = context.WithValue(context.Background(), "userID", "not-a-number")
	_, err = OwnerID(ctx)
	assert.Error(t, err)
}
