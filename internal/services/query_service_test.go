package services

import (
	"context"
	"testing"

	"github.com/somexchange/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, ClampLenient)
	l.deposit(t, admin, "10000")
	a1 := l.trade(t, alice, models.OperationPurchase, "USD", "90", "10")
	l.trade(t, alice, models.OperationSale, "USD", "95", "2")
	b1 := l.trade(t, bob, models.OperationPurchase, "EUR", "100", "5")

	t.Run("tellers cannot widen their scope", func(t *testing.T) {
		entries, err := l.query.ListEntries(ctx, alice, models.EntryFilter{Username: "bob"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.Equal(t, "alice", e.Username)
		}
	})

	t.Run("admins see and filter everything", func(t *testing.T) {
		entries, err := l.query.ListEntries(ctx, admin, models.EntryFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 4)

		entries, err = l.query.ListEntries(ctx, admin, models.EntryFilter{Username: "bob"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, b1.ID, entries[0].ID)
	})

	t.Run("filters", func(t *testing.T) {
		entries, err := l.query.ListEntries(ctx, admin, models.EntryFilter{OperationType: models.OperationSale})
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		entries, err = l.query.ListEntries(ctx, admin, models.EntryFilter{NewestFirst: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, b1.ID, entries[0].ID)

		_, err = l.query.ListEntries(ctx, admin, models.EntryFilter{OperationType: "Refund"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("empty result is an empty slice", func(t *testing.T) {
		entries, err := l.query.ListEntries(ctx, admin, models.EntryFilter{CurrencyCode: "GBP"})
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("get entry", func(t *testing.T) {
		got, err := l.query.GetEntry(ctx, alice, a1.ID)
		require.NoError(t, err)
		assert.True(t, got.Total.Equal(dec("900")))

		_, err = l.query.GetEntry(ctx, bob, a1.ID)
		assert.ErrorIs(t, err, ErrEntryNotFound)
		_, err = l.query.GetEntry(ctx, admin, "missing")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("currency codes", func(t *testing.T) {
		codes, err := l.query.CurrencyCodes(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []string{"USD"}, codes)

		codes, err = l.query.CurrencyCodes(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, []string{"EUR", "SOM", "USD"}, codes)
	})

	t.Run("operation types", func(t *testing.T) {
		types, err := l.query.OperationTypes(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, []models.OperationType{models.OperationPurchase}, types)

		types, err = l.query.OperationTypes(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, []models.OperationType{models.OperationPurchase, models.OperationSale, models.OperationDeposit}, types)
	})
}
