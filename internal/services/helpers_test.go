package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/audit"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
	"github.com/stretchr/testify/require"
)

var (
	admin = models.Identity{Username: "admin", Role: models.RoleAdmin}
	alice = models.Identity{Username: "alice", Role: models.RoleTeller}
	bob   = models.Identity{Username: "bob", Role: models.RoleTeller}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ledger wires every service over a fresh bbolt file.
type ledger struct {
	store     *store.BoltStore
	cfg       config.LedgerConfig
	exchange  *ExchangeService
	editor    *LedgerEditor
	analytics *AnalyticsService
	query     *QueryService
	accounts  *AccountService
	repair    *RepairService

	mu     sync.Mutex
	audits []string
}

func newLedger(t *testing.T, mode ClampMode) *ledger {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	l := &ledger{
		store: st,
		cfg:   config.LedgerConfig{BaseCurrency: "SOM", ClampMode: string(mode), MaxTxRetries: 3, Timezone: "UTC"},
	}
	auditLogger := audit.NewLoggerWithSink(func(line string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.audits = append(l.audits, line)
	})

	l.exchange = NewExchangeService(st, l.cfg, auditLogger)
	l.editor, err = NewLedgerEditor(st, l.cfg, auditLogger)
	require.NoError(t, err)
	l.analytics = NewAnalyticsService(st, l.cfg, nil)
	l.query = NewQueryService(st)
	l.accounts = NewAccountService(st, l.cfg, auditLogger)
	l.repair = NewRepairService(st, l.cfg, auditLogger)

	require.NoError(t, l.accounts.EnsureBaseAccount(context.Background()))
	return l
}

func (l *ledger) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	a, err := l.store.GetAccount(context.Background(), code)
	if err == store.ErrNotFound {
		return decimal.Zero
	}
	require.NoError(t, err)
	return a.Quantity
}

func (l *ledger) balances(t *testing.T) map[string]string {
	t.Helper()
	accounts, err := l.store.ListAccounts(context.Background())
	require.NoError(t, err)
	out := make(map[string]string, len(accounts))
	for _, a := range accounts {
		out[a.Code] = a.Quantity.String()
	}
	return out
}

func (l *ledger) deposit(t *testing.T, actor models.Identity, amount string) *models.LedgerEntry {
	t.Helper()
	e, err := l.exchange.Deposit(context.Background(), actor, DepositRequest{Amount: dec(amount)})
	require.NoError(t, err)
	return e
}

func (l *ledger) trade(t *testing.T, actor models.Identity, op models.OperationType, code, rate, qty string) *models.LedgerEntry {
	t.Helper()
	e, err := l.exchange.PerformExchange(context.Background(), actor, ExchangeRequest{
		CurrencyCode:  code,
		OperationType: op,
		Rate:          dec(rate),
		Quantity:      dec(qty),
	})
	require.NoError(t, err)
	return e
}

func (l *ledger) auditLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.audits...)
}

func (l *ledger) generation(t *testing.T) int64 {
	t.Helper()
	gen, err := l.store.Generation(context.Background())
	require.NoError(t, err)
	return gen
}

func (l *ledger) entryCount(t *testing.T) int {
	t.Helper()
	entries, err := l.store.ListEntries(context.Background(), models.EntryFilter{})
	require.NoError(t, err)
	return len(entries)
}
