package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/somexchange/backend/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db          *sql.DB
	maxAttempts int
	pgReader
}

func NewPostgresStore(db *sql.DB, maxAttempts int) *PostgresStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PostgresStore{
		db:          db,
		maxAttempts: maxAttempts,
		pgReader:    pgReader{q: db},
	}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrConflict) || ctx.Err() != nil {
			return err
		}
		log.Printf("[STORE] Transaction conflict on attempt %d/%d: %v", attempt, s.maxAttempts, err)
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", classify(err))
	}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&pgTx{pgReader{q: sqlTx, lock: true}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.Printf("[STORE] Rollback failed: %v", rbErr)
		}
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("tx commit failed: %w", classify(err))
	}
	return nil
}

// classify turns serialization failures, deadlocks and unique violations
// into ErrConflict so the transaction is retried.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s (%s)", ErrConflict, pqErr.Message, pqErr.Code)
		}
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT username, password_hash, role, created_at FROM users WHERE username = $1",
		username,
	).Scan(&u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (s *PostgresStore) PutUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role`,
		u.Username, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

type pgReader struct {
	q    querier
	lock bool
}

const accountColumns = "code, quantity, default_buy_rate, default_sell_rate, version, updated_at"

const entryColumns = "id, currency_code, operation_type, rate, quantity, total, username, created_at, updated_at"

func (r pgReader) GetAccount(ctx context.Context, code string) (*models.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE code = $1"
	if r.lock {
		query += " FOR UPDATE"
	}

	var a models.Account
	err := r.q.QueryRowContext(ctx, query, code).Scan(
		&a.Code, &a.Quantity, &a.DefaultBuyRate, &a.DefaultSellRate, &a.Version, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", code, err)
	}
	return &a, nil
}

func (r pgReader) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.Code, &a.Quantity, &a.DefaultBuyRate, &a.DefaultSellRate, &a.Version, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var op string
	var updatedAt sql.NullTime
	err := row.Scan(&e.ID, &e.CurrencyCode, &op, &e.Rate, &e.Quantity, &e.Total, &e.Username, &e.CreatedAt, &updatedAt)
	if err != nil {
		return e, err
	}
	e.OperationType = models.OperationType(op)
	if updatedAt.Valid {
		t := updatedAt.Time
		e.UpdatedAt = &t
	}
	return e, nil
}

func (r pgReader) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE id = $1"
	if r.lock {
		query += " FOR UPDATE"
	}

	e, err := scanEntry(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return &e, nil
}

// entryQuery renders filter as a parameterised SELECT.
func entryQuery(filter models.EntryFilter) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.CurrencyCode != "" {
		add("currency_code = $%d", filter.CurrencyCode)
	}
	if filter.OperationType != "" {
		add("operation_type = $%d", string(filter.OperationType))
	}
	if filter.Username != "" {
		add("username = $%d", filter.Username)
	}
	if !filter.Range.From.IsZero() {
		add("created_at >= $%d", filter.Range.From)
	}
	if !filter.Range.To.IsZero() {
		add("created_at < $%d", filter.Range.To)
	}

	var b strings.Builder
	b.WriteString("SELECT " + entryColumns + " FROM ledger_entries")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if filter.NewestFirst {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY created_at, id")
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (r pgReader) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	query, args := entryQuery(filter)
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r pgReader) Generation(ctx context.Context) (int64, error) {
	var gen int64
	err := r.q.QueryRowContext(ctx, "SELECT value FROM ledger_meta WHERE key = 'generation'").Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}
	return gen, nil
}

type pgTx struct {
	pgReader
}

// BumpGeneration serializes ledger writers on the meta row; a concurrent bump
// fails the repeatable read transaction and is retried.
func (t *pgTx) BumpGeneration(ctx context.Context) error {
	_, err := t.q.ExecContext(ctx, "UPDATE ledger_meta SET value = value + 1 WHERE key = 'generation'")
	if err != nil {
		return fmt.Errorf("bump generation: %w", classify(err))
	}
	return nil
}

func (t *pgTx) PutAccount(ctx context.Context, a *models.Account) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	if a.Version == 0 {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO accounts (code, quantity, default_buy_rate, default_sell_rate, version, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5)`,
			a.Code, a.Quantity, a.DefaultBuyRate, a.DefaultSellRate, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert account %s: %w", a.Code, classify(err))
		}
		a.Version = 1
		return nil
	}

	result, err := t.q.ExecContext(ctx, `
		UPDATE accounts
		SET quantity = $1, default_buy_rate = $2, default_sell_rate = $3, version = version + 1, updated_at = $4
		WHERE code = $5 AND version = $6`,
		a.Quantity, a.DefaultBuyRate, a.DefaultSellRate, a.UpdatedAt, a.Code, a.Version)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.Code, classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: optimistic lock failed for account %s", ErrConflict, a.Code)
	}
	a.Version++
	return nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	if e.ID == "" {
		id, err := newEntryID()
		if err != nil {
			return err
		}
		e.ID = id
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, currency_code, operation_type, rate, quantity, total, username, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.CurrencyCode, string(e.OperationType), e.Rate, e.Quantity, e.Total, e.Username, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert entry: %w", classify(err))
	}
	return nil
}

func (t *pgTx) UpdateEntry(ctx context.Context, e *models.LedgerEntry) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE ledger_entries
		SET currency_code = $1, operation_type = $2, rate = $3, quantity = $4, total = $5,
		    username = $6, created_at = $7, updated_at = $8
		WHERE id = $9`,
		e.CurrencyCode, string(e.OperationType), e.Rate, e.Quantity, e.Total,
		e.Username, e.CreatedAt, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update entry %s: %w", e.ID, classify(err))
	}
	return requireRow(result, e.ID)
}

func (t *pgTx) DeleteEntry(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, "DELETE FROM ledger_entries WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, classify(err))
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return nil
}
