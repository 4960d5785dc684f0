package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
)

// QueryService answers read requests, scoped to the caller's own entries
// unless the caller is an admin.
type QueryService struct {
	store store.Reader
}

func NewQueryService(st store.Reader) *QueryService {
	return &QueryService{store: st}
}

// ListEntries applies filter. For non-admins filter.Username is replaced by
// the caller's username.
func (s *QueryService) ListEntries(ctx context.Context, actor models.Identity, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	if scope := actor.OwnerScope(); scope != "" {
		filter.Username = scope
	}
	if filter.OperationType != "" && !filter.OperationType.Valid() {
		return nil, invalid("operation", "unknown operation type %q", filter.OperationType)
	}
	if filter.Limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}

	entries, err := s.store.ListEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}

func (s *QueryService) GetEntry(ctx context.Context, actor models.Identity, id string) (*models.LedgerEntry, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, entryErr(id, err)
	}
	if scope := actor.OwnerScope(); scope != "" && entry.Username != scope {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return entry, nil
}

// CurrencyCodes lists the distinct currencies in the caller's entries. Admins
// also see every provisioned account.
func (s *QueryService) CurrencyCodes(ctx context.Context, actor models.Identity) ([]string, error) {
	entries, err := s.store.ListEntries(ctx, models.EntryFilter{Username: actor.OwnerScope()})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.CurrencyCode] = true
	}
	if actor.IsAdmin() {
		accounts, err := s.store.ListAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		for _, a := range accounts {
			seen[a.Code] = true
		}
	}

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// OperationTypes lists the operation types present in the caller's entries,
// in Purchase, Sale, Deposit order.
func (s *QueryService) OperationTypes(ctx context.Context, actor models.Identity) ([]models.OperationType, error) {
	entries, err := s.store.ListEntries(ctx, models.EntryFilter{Username: actor.OwnerScope()})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	seen := make(map[models.OperationType]bool)
	for _, e := range entries {
		seen[e.OperationType] = true
	}
	types := []models.OperationType{}
	for _, op := range []models.OperationType{models.OperationPurchase, models.OperationSale, models.OperationDeposit} {
		if seen[op] {
			types = append(types, op)
		}
	}
	return types, nil
}
