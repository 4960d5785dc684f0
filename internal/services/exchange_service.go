package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/audit"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
)

// ExchangeRequest records a purchase or sale of CurrencyCode against the base
// currency. Username defaults to the caller; only admins may record for
// someone else.
type ExchangeRequest struct {
	CurrencyCode  string               `json:"currency_code" validate:"required,alpha,min=2,max=10"`
	OperationType models.OperationType `json:"operation_type" validate:"required,oneof=Purchase Sale"`
	Rate          decimal.Decimal      `json:"rate" validate:"gt=0"`
	Quantity      decimal.Decimal      `json:"quantity" validate:"gt=0"`
	Username      string               `json:"username,omitempty"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// ExchangeService appends new ledger entries and moves the two affected
// balances in the same transaction.
type ExchangeService struct {
	store        store.Store
	baseCurrency string
	validator    *ValidationHelper
	clock        *Clock
	audit        *audit.Logger
}

func NewExchangeService(st store.Store, cfg config.LedgerConfig, auditLogger *audit.Logger) *ExchangeService {
	return &ExchangeService{
		store:        st,
		baseCurrency: cfg.BaseCurrency,
		validator:    NewValidationHelper(),
		clock:        NewClock(),
		audit:        auditLogger,
	}
}

func (s *ExchangeService) PerformExchange(ctx context.Context, actor models.Identity, req ExchangeRequest) (*models.LedgerEntry, error) {
	entry, err := s.performExchange(ctx, actor, req)
	observe("exchange", err)
	if err != nil {
		log.Printf("[EXCHANGE] %s %s by %s failed: %v", req.OperationType, req.CurrencyCode, actor.Username, err)
		s.audit.LogError("EXCHANGE", actor, "", err)
		return nil, err
	}

	log.Printf("[EXCHANGE] %s %s %s @ %s recorded as %s", entry.OperationType, entry.Quantity, entry.CurrencyCode, entry.Rate, entry.ID)
	s.audit.LogEntry("EXCHANGE", actor, entry, nil)
	return entry, nil
}

func (s *ExchangeService) performExchange(ctx context.Context, actor models.Identity, req ExchangeRequest) (*models.LedgerEntry, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	req.CurrencyCode = strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}
	if req.CurrencyCode == s.baseCurrency {
		return nil, invalid("CurrencyCode", "cannot exchange the base currency %s against itself", s.baseCurrency)
	}

	owner, err := stampOwner(actor, req.Username)
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		CurrencyCode:  req.CurrencyCode,
		OperationType: req.OperationType,
		Rate:          req.Rate,
		Quantity:      req.Quantity,
		Total:         req.Rate.Mul(req.Quantity),
		Username:      owner,
	}
	if err := s.record(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Deposit tops up the base currency balance.
func (s *ExchangeService) Deposit(ctx context.Context, actor models.Identity, req DepositRequest) (*models.LedgerEntry, error) {
	entry, err := s.deposit(ctx, actor, req)
	observe("deposit", err)
	if err != nil {
		log.Printf("[EXCHANGE] Deposit by %s failed: %v", actor.Username, err)
		s.audit.LogError("DEPOSIT", actor, "", err)
		return nil, err
	}

	log.Printf("[EXCHANGE] Deposit of %s %s recorded as %s", entry.Quantity, s.baseCurrency, entry.ID)
	s.audit.LogEntry("DEPOSIT", actor, entry, nil)
	return entry, nil
}

func (s *ExchangeService) deposit(ctx context.Context, actor models.Identity, req DepositRequest) (*models.LedgerEntry, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		CurrencyCode:  s.baseCurrency,
		OperationType: models.OperationDeposit,
		Rate:          decimal.NewFromInt(1),
		Quantity:      req.Amount,
		Total:         req.Amount,
		Username:      actor.Username,
	}
	if err := s.record(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// record applies entry's effect and appends it in one transaction.
func (s *ExchangeService) record(ctx context.Context, entry *models.LedgerEntry) error {
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		// a retried attempt starts from a clean entry
		entry.ID = ""
		entry.CreatedAt = s.clock.Now()

		if err := applyDeltas(ctx, tx, effectOf(entry, s.baseCurrency), s.baseCurrency, ClampStrict, entry.CreatedAt); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		return tx.BumpGeneration(ctx)
	})
	return translate(err)
}

func requireIdentity(actor models.Identity) error {
	if actor.Username == "" {
		return fmt.Errorf("%w: no caller identity", ErrForbidden)
	}
	return nil
}

// stampOwner resolves the username an entry is recorded under.
func stampOwner(actor models.Identity, requested string) (string, error) {
	if requested == "" || requested == actor.Username {
		return actor.Username, nil
	}
	if !actor.IsAdmin() {
		return "", fmt.Errorf("%w: cannot record entries for %s", ErrForbidden, requested)
	}
	return requested, nil
}
