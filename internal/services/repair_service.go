package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/audit"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
)

// RepairService recomputes balances from the ledger. The base balance is
// ΣDeposit.quantity − ΣPurchase.total + ΣSale.total; a foreign balance is
// ΣPurchase.quantity − ΣSale.quantity.
type RepairService struct {
	store        store.Store
	baseCurrency string
	audit        *audit.Logger
}

func NewRepairService(st store.Store, cfg config.LedgerConfig, auditLogger *audit.Logger) *RepairService {
	return &RepairService{store: st, baseCurrency: cfg.BaseCurrency, audit: auditLogger}
}

// RepairBalances reports every account whose stored balance differs from the
// replay, and overwrites it unless dryRun is set.
func (s *RepairService) RepairBalances(ctx context.Context, actor models.Identity, dryRun bool) (*models.RepairReport, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: balance repair requires admin", ErrForbidden)
	}

	var report *models.RepairReport
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		report = &models.RepairReport{DryRun: dryRun, Accounts: []models.AccountDrift{}}

		entries, err := tx.ListEntries(ctx, models.EntryFilter{})
		if err != nil {
			return err
		}
		accounts, err := tx.ListAccounts(ctx)
		if err != nil {
			return err
		}
		report.Entries = len(entries)

		computed := deltas{}
		for i := range entries {
			computed.merge(effectOf(&entries[i], s.baseCurrency))
		}

		stored := make(map[string]*models.Account, len(accounts))
		for i := range accounts {
			stored[accounts[i].Code] = &accounts[i]
			if _, ok := computed[accounts[i].Code]; !ok {
				computed[accounts[i].Code] = decimal.Zero
			}
		}

		codes := make([]string, 0, len(computed))
		for code := range computed {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		now := time.Now().UTC()
		for _, code := range codes {
			account, ok := stored[code]
			if !ok {
				account = &models.Account{Code: code}
			}
			want := computed[code]
			if account.Quantity.Equal(want) {
				continue
			}
			report.Accounts = append(report.Accounts, models.AccountDrift{
				Code:     code,
				Stored:   account.Quantity,
				Computed: want,
				Drift:    want.Sub(account.Quantity),
			})
			if dryRun {
				continue
			}
			account.Quantity = want
			account.UpdatedAt = now
			if err := tx.PutAccount(ctx, account); err != nil {
				return err
			}
			report.Repaired++
		}
		if report.Repaired > 0 {
			return tx.BumpGeneration(ctx)
		}
		return nil
	})
	if err != nil {
		err = translate(err)
		observe("repair", err)
		s.audit.LogError("REPAIR", actor, "", err)
		return nil, err
	}

	observe("repair", nil)
	log.Printf("[LEDGER] Repair over %d entries: %d drifting accounts, %d repaired (dry run: %t)",
		report.Entries, len(report.Accounts), report.Repaired, dryRun)
	s.audit.LogOperation("REPAIR", actor, report)
	return report, nil
}
