// Package store persists accounts, ledger entries and users behind a small
// transactional interface implemented by postgres and bbolt backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/database"
	"github.com/somexchange/backend/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a concurrent writer got there first. The
	// whole transaction may be retried.
	ErrConflict = errors.New("write conflict")
)

// Reader is the read side shared by Store and Tx. Inside a Tx, reads on the
// postgres backend lock the rows they return until commit.
type Reader interface {
	GetAccount(ctx context.Context, code string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
	// Generation counts committed ledger mutations. It only grows.
	Generation(ctx context.Context) (int64, error)
}

type Tx interface {
	Reader

	// PutAccount inserts the account when Version is 0, otherwise updates it
	// if the stored version still equals Version. Version is advanced on success.
	PutAccount(ctx context.Context, account *models.Account) error
	// InsertEntry assigns an id when entry.ID is empty.
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error
	DeleteEntry(ctx context.Context, id string) error
	// BumpGeneration advances Generation when the transaction commits.
	BumpGeneration(ctx context.Context) error
}

type Store interface {
	Reader

	// RunInTx runs fn atomically: every write made through tx commits, or
	// none does. fn may be invoked more than once on conflict.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, username string) (*models.User, error)
	PutUser(ctx context.Context, user *models.User) error

	Close() error
}

// Open builds the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "bolt":
		return NewBoltStore(cfg.Store.BoltPath)
	case "postgres":
		db, err := database.InitDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		s := NewPostgresStore(db, cfg.Ledger.MaxTxRetries)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

func newEntryID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate entry id: %w", err)
	}
	return id.String(), nil
}

// sortEntries orders by (created_at, id): entries sharing a timestamp are
// ordered by id, which for v7 ids follows insertion order.
func sortEntries(entries []models.LedgerEntry, newestFirst bool) {
	less := func(a, b models.LedgerEntry) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
	sort.Slice(entries, func(i, j int) bool {
		if newestFirst {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}
