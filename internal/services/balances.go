package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
)

// deltas maps an account code to a signed balance change.
type deltas map[string]decimal.Decimal

func (d deltas) add(code string, amount decimal.Decimal) {
	d[code] = d[code].Add(amount)
}

// merge folds o into d. Changes to the same account are summed, so every
// account is read and written once per transaction.
func (d deltas) merge(o deltas) deltas {
	for code, amount := range o {
		d.add(code, amount)
	}
	return d
}

// codes returns the accounts with a non-zero change, sorted. Locking in this
// order keeps concurrent transactions from deadlocking.
func (d deltas) codes() []string {
	codes := make([]string, 0, len(d))
	for code, amount := range d {
		if !amount.IsZero() {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// effectOf returns the balance changes e applies when recorded.
func effectOf(e *models.LedgerEntry, base string) deltas {
	d := deltas{}
	switch e.OperationType {
	case models.OperationPurchase:
		d.add(base, e.Total.Neg())
		d.add(e.CurrencyCode, e.Quantity)
	case models.OperationSale:
		d.add(base, e.Total)
		d.add(e.CurrencyCode, e.Quantity.Neg())
	case models.OperationDeposit:
		d.add(base, e.Quantity)
	}
	return d
}

// reversalOf undoes effectOf(e).
func reversalOf(e *models.LedgerEntry, base string) deltas {
	d := effectOf(e, base)
	for code, amount := range d {
		d[code] = amount.Neg()
	}
	return d
}

type ClampMode string

const (
	// ClampLenient floors a negative result at zero.
	ClampLenient ClampMode = "lenient"
	// ClampStrict rejects the change with ErrInsufficientFunds.
	ClampStrict ClampMode = "strict"
)

func ParseClampMode(s string) (ClampMode, error) {
	switch ClampMode(s) {
	case ClampLenient, ClampStrict:
		return ClampMode(s), nil
	case "":
		return ClampLenient, nil
	}
	return "", fmt.Errorf("unknown clamp mode %q", s)
}

// applyDeltas reads every touched account inside tx, in code order, and writes
// the adjusted balances. A missing account is created when its change is
// positive; a missing foreign account with a negative change is
// ErrCurrencyNotFound, a missing base account counts as a zero balance.
func applyDeltas(ctx context.Context, tx store.Tx, d deltas, base string, mode ClampMode, now time.Time) error {
	for _, code := range d.codes() {
		delta := d[code]

		account, err := tx.GetAccount(ctx, code)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if delta.IsNegative() && code != base {
				return fmt.Errorf("%w: %s", ErrCurrencyNotFound, code)
			}
			account = &models.Account{Code: code}
		case err != nil:
			return err
		}

		next := account.Quantity.Add(delta)
		if next.IsNegative() {
			if mode != ClampLenient {
				return insufficient(code, account.Quantity, delta.Neg())
			}
			log.Printf("[LEDGER] Clamping %s balance to zero (computed %s)", code, next)
			next = decimal.Zero
		}

		account.Quantity = next
		account.UpdatedAt = now
		if err := tx.PutAccount(ctx, account); err != nil {
			return err
		}
	}
	return nil
}
