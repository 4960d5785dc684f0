package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/somexchange/backend/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Bucket names.
const (
	bucketAccounts = "accounts"
	bucketEntries  = "ledger_entries"
	bucketUsers    = "users"
	bucketMeta     = "meta"
)

var generationKey = []byte("generation")

// BoltStore keeps the ledger in a single bbolt file. bbolt serializes
// writers, so RunInTx never sees a conflict.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{bucketAccounts, bucketEntries, bucketUsers, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&boltTx{boltReader{tx: btx}})
	})
}

func (s *BoltStore) view(fn func(r boltReader) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(boltReader{tx: btx})
	})
}

func (s *BoltStore) GetAccount(ctx context.Context, code string) (*models.Account, error) {
	var a *models.Account
	err := s.view(func(r boltReader) error {
		var err error
		a, err = r.GetAccount(ctx, code)
		return err
	})
	return a, err
}

func (s *BoltStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := s.view(func(r boltReader) error {
		var err error
		accounts, err = r.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

func (s *BoltStore) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	var e *models.LedgerEntry
	err := s.view(func(r boltReader) error {
		var err error
		e, err = r.GetEntry(ctx, id)
		return err
	})
	return e, err
}

func (s *BoltStore) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.view(func(r boltReader) error {
		var err error
		entries, err = r.ListEntries(ctx, filter)
		return err
	})
	return entries, err
}

func (s *BoltStore) Generation(ctx context.Context) (int64, error) {
	var gen int64
	err := s.view(func(r boltReader) error {
		var err error
		gen, err = r.Generation(ctx)
		return err
	})
	return gen, err
}

func (s *BoltStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	var su storedUser
	err := s.view(func(r boltReader) error {
		return r.get(bucketUsers, username, &su)
	})
	if err != nil {
		return nil, err
	}
	u := su.User
	u.PasswordHash = su.PasswordHash
	return &u, nil
}

func (s *BoltStore) PutUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return put(btx, bucketUsers, u.Username, storedUser{User: *u, PasswordHash: u.PasswordHash})
	})
}

// storedUser keeps the hash, which models.User hides from JSON.
type storedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

type boltReader struct {
	tx *bolt.Tx
}

func (r boltReader) get(bucket, key string, v any) error {
	data := r.tx.Bucket([]byte(bucket)).Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return nil
}

func put(tx *bolt.Tx, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
}

func (r boltReader) GetAccount(_ context.Context, code string) (*models.Account, error) {
	var a models.Account
	if err := r.get(bucketAccounts, code, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns accounts ordered by code; bbolt iterates keys in byte order.
func (r boltReader) ListAccounts(_ context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.tx.Bucket([]byte(bucketAccounts)).ForEach(func(k, v []byte) error {
		var a models.Account
		if err := json.Unmarshal(v, &a); err != nil {
			return fmt.Errorf("decode account %s: %w", k, err)
		}
		accounts = append(accounts, a)
		return nil
	})
	return accounts, err
}

func (r boltReader) GetEntry(_ context.Context, id string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := r.get(bucketEntries, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r boltReader) ListEntries(_ context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.tx.Bucket([]byte(bucketEntries)).ForEach(func(k, v []byte) error {
		var e models.LedgerEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("decode entry %s: %w", k, err)
		}
		if filter.Matches(&e) {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortEntries(entries, filter.NewestFirst)
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (r boltReader) Generation(_ context.Context) (int64, error) {
	data := r.tx.Bucket([]byte(bucketMeta)).Get(generationKey)
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("decode generation: %d bytes", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

type boltTx struct {
	boltReader
}

func (t *boltTx) PutAccount(ctx context.Context, a *models.Account) error {
	existing, err := t.GetAccount(ctx, a.Code)
	switch {
	case errors.Is(err, ErrNotFound):
		if a.Version != 0 {
			return fmt.Errorf("%w: account %s vanished", ErrConflict, a.Code)
		}
	case err != nil:
		return err
	case existing.Version != a.Version:
		return fmt.Errorf("%w: optimistic lock failed for account %s", ErrConflict, a.Code)
	}

	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	a.Version++
	if err := put(t.tx, bucketAccounts, a.Code, a); err != nil {
		a.Version--
		return err
	}
	return nil
}

func (t *boltTx) InsertEntry(_ context.Context, e *models.LedgerEntry) error {
	if e.ID == "" {
		id, err := newEntryID()
		if err != nil {
			return err
		}
		e.ID = id
	}
	if t.tx.Bucket([]byte(bucketEntries)).Get([]byte(e.ID)) != nil {
		return fmt.Errorf("%w: entry %s already exists", ErrConflict, e.ID)
	}
	return put(t.tx, bucketEntries, e.ID, e)
}

func (t *boltTx) UpdateEntry(_ context.Context, e *models.LedgerEntry) error {
	if t.tx.Bucket([]byte(bucketEntries)).Get([]byte(e.ID)) == nil {
		return fmt.Errorf("entry %s: %w", e.ID, ErrNotFound)
	}
	return put(t.tx, bucketEntries, e.ID, e)
}

func (t *boltTx) DeleteEntry(_ context.Context, id string) error {
	b := t.tx.Bucket([]byte(bucketEntries))
	if b.Get([]byte(id)) == nil {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return b.Delete([]byte(id))
}

func (t *boltTx) BumpGeneration(ctx context.Context) error {
	gen, err := t.Generation(ctx)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(gen+1))
	return t.tx.Bucket([]byte(bucketMeta)).Put(generationKey, buf)
}
