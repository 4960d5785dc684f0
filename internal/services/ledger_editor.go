package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/audit"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
)

// EditRequest holds the replacement fields of an entry. For a Deposit the
// currency is forced to the base currency and the rate to 1.
type EditRequest struct {
	CurrencyCode  string               `json:"currency_code" validate:"required,alpha,min=2,max=10"`
	OperationType models.OperationType `json:"operation_type" validate:"required,oneof=Purchase Sale Deposit"`
	Rate          decimal.Decimal      `json:"rate" validate:"gt=0"`
	Quantity      decimal.Decimal      `json:"quantity" validate:"gt=0"`
}

// LedgerEditor rewrites or removes recorded entries. The balance effect of the
// stored entry is reversed and the replacement's effect applied in the same
// transaction that rewrites the entry.
type LedgerEditor struct {
	store        store.Store
	baseCurrency string
	clamp        ClampMode
	validator    *ValidationHelper
	audit        *audit.Logger
}

func NewLedgerEditor(st store.Store, cfg config.LedgerConfig, auditLogger *audit.Logger) (*LedgerEditor, error) {
	mode, err := ParseClampMode(cfg.ClampMode)
	if err != nil {
		return nil, err
	}
	return &LedgerEditor{
		store:        st,
		baseCurrency: cfg.BaseCurrency,
		clamp:        mode,
		validator:    NewValidationHelper(),
		audit:        auditLogger,
	}, nil
}

// EditEntry replaces entry id with req. On error nothing was applied.
func (e *LedgerEditor) EditEntry(ctx context.Context, actor models.Identity, id string, req EditRequest) (*models.LedgerEntry, error) {
	updated, err := e.editEntry(ctx, actor, id, req)
	observe("edit", err)
	if err != nil {
		log.Printf("[LEDGER] Edit of %s by %s failed: %v", id, actor.Username, err)
		e.audit.LogError("EDIT", actor, id, err)
		return nil, err
	}

	e.audit.LogEntry("EDIT", actor, updated, nil)
	return updated, nil
}

func (e *LedgerEditor) editEntry(ctx context.Context, actor models.Identity, id string, req EditRequest) (*models.LedgerEntry, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	if err := e.normalize(&req); err != nil {
		return nil, err
	}

	var updated models.LedgerEntry
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		old, err := e.loadOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		next := *old
		next.CurrencyCode = req.CurrencyCode
		next.OperationType = req.OperationType
		next.Rate = req.Rate
		next.Quantity = req.Quantity
		next.Total = req.Rate.Mul(req.Quantity)
		next.UpdatedAt = &now

		if !old.BalanceFieldsEqual(next) {
			d := reversalOf(old, e.baseCurrency).merge(effectOf(&next, e.baseCurrency))
			if err := applyDeltas(ctx, tx, d, e.baseCurrency, e.clamp, now); err != nil {
				return err
			}
		}

		if err := tx.UpdateEntry(ctx, &next); err != nil {
			return entryErr(id, err)
		}
		updated = next
		return tx.BumpGeneration(ctx)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

// DeleteEntry reverses the effect of entry id and removes it.
func (e *LedgerEditor) DeleteEntry(ctx context.Context, actor models.Identity, id string) error {
	removed, err := e.deleteEntry(ctx, actor, id)
	observe("delete", err)
	if err != nil {
		log.Printf("[LEDGER] Delete of %s by %s failed: %v", id, actor.Username, err)
		e.audit.LogError("DELETE", actor, id, err)
		return err
	}

	e.audit.LogEntry("DELETE", actor, removed, nil)
	return nil
}

func (e *LedgerEditor) deleteEntry(ctx context.Context, actor models.Identity, id string) (*models.LedgerEntry, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}

	var removed *models.LedgerEntry
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		old, err := e.loadOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		if err := applyDeltas(ctx, tx, reversalOf(old, e.baseCurrency), e.baseCurrency, e.clamp, now); err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, id); err != nil {
			return entryErr(id, err)
		}
		removed = old
		return tx.BumpGeneration(ctx)
	})
	if err != nil {
		return nil, translate(err)
	}
	return removed, nil
}

// loadOwned reads the stored entry inside tx. Entries of other users are
// reported as missing to non-admin callers.
func (e *LedgerEditor) loadOwned(ctx context.Context, tx store.Tx, actor models.Identity, id string) (*models.LedgerEntry, error) {
	entry, err := tx.GetEntry(ctx, id)
	if err != nil {
		return nil, entryErr(id, err)
	}
	if scope := actor.OwnerScope(); scope != "" && entry.Username != scope {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return entry, nil
}

func (e *LedgerEditor) normalize(req *EditRequest) error {
	req.CurrencyCode = strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if req.OperationType == models.OperationDeposit {
		req.CurrencyCode = e.baseCurrency
		req.Rate = decimal.NewFromInt(1)
	}
	if err := e.validator.Validate(req); err != nil {
		return err
	}
	if req.OperationType != models.OperationDeposit && req.CurrencyCode == e.baseCurrency {
		return invalid("CurrencyCode", "cannot exchange the base currency %s against itself", e.baseCurrency)
	}
	return nil
}

func entryErr(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return err
}
