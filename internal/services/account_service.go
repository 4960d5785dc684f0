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

type ProvisionRequest struct {
	DefaultBuyRate  decimal.Decimal `json:"default_buy_rate" validate:"gte=0"`
	DefaultSellRate decimal.Decimal `json:"default_sell_rate" validate:"gte=0"`
}

type AccountService struct {
	store        store.Store
	baseCurrency string
	validator    *ValidationHelper
	audit        *audit.Logger
}

func NewAccountService(st store.Store, cfg config.LedgerConfig, auditLogger *audit.Logger) *AccountService {
	return &AccountService{
		store:        st,
		baseCurrency: cfg.BaseCurrency,
		validator:    NewValidationHelper(),
		audit:        auditLogger,
	}
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	return accounts, nil
}

func (s *AccountService) GetAccount(ctx context.Context, code string) (*models.Account, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	account, err := s.store.GetAccount(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyNotFound, code)
	}
	return account, err
}

// ProvisionAccount creates a zero-balance account for code, or updates the
// advisory rates of an existing one. The balance is never touched.
func (s *AccountService) ProvisionAccount(ctx context.Context, actor models.Identity, code string, req ProvisionRequest) (*models.Account, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: provisioning accounts requires admin", ErrForbidden)
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > 10 {
		return nil, invalid("code", "must be 1 to 10 characters")
	}
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	var account *models.Account
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccount(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			a = &models.Account{Code: code}
		} else if err != nil {
			return err
		}
		a.DefaultBuyRate = req.DefaultBuyRate
		a.DefaultSellRate = req.DefaultSellRate
		a.UpdatedAt = time.Now().UTC()
		if err := tx.PutAccount(ctx, a); err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.LogOperation("PROVISION", actor, map[string]string{"code": code})
	return account, nil
}

// EnsureBaseAccount creates the base currency account when it is missing.
func (s *AccountService) EnsureBaseAccount(ctx context.Context) error {
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetAccount(ctx, s.baseCurrency)
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		one := decimal.NewFromInt(1)
		return tx.PutAccount(ctx, &models.Account{Code: s.baseCurrency, DefaultBuyRate: one, DefaultSellRate: one})
	})
	// another instance created it first
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ensure base account %s: %w", s.baseCurrency, err)
	}
	log.Printf("[LEDGER] Base currency account %s ready", s.baseCurrency)
	return nil
}
