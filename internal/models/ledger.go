package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OperationType string

const (
	OperationPurchase OperationType = "Purchase"
	OperationSale     OperationType = "Sale"
	OperationDeposit  OperationType = "Deposit"
)

func (o OperationType) Valid() bool {
	switch o {
	case OperationPurchase, OperationSale, OperationDeposit:
		return true
	}
	return false
}

// Account holds the running balance of one currency.
type Account struct {
	Code            string          `json:"code" db:"code"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	DefaultBuyRate  decimal.Decimal `json:"default_buy_rate" db:"default_buy_rate"`
	DefaultSellRate decimal.Decimal `json:"default_sell_rate" db:"default_sell_rate"`
	Version         int             `json:"version" db:"version"` // for optimistic locking, 0 = not stored yet
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is one recorded purchase, sale or deposit. Total is always
// Rate * Quantity, expressed in the base currency.
type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	CurrencyCode  string          `json:"currency_code" db:"currency_code"`
	OperationType OperationType   `json:"operation_type" db:"operation_type"`
	Rate          decimal.Decimal `json:"rate" db:"rate"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	Total         decimal.Decimal `json:"total" db:"total"`
	Username      string          `json:"username" db:"username"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty" db:"updated_at"`
}

// BalanceFieldsEqual reports whether e and o move balances identically.
func (e LedgerEntry) BalanceFieldsEqual(o LedgerEntry) bool {
	return e.OperationType == o.OperationType &&
		e.CurrencyCode == o.CurrencyCode &&
		e.Quantity.Equal(o.Quantity) &&
		e.Total.Equal(o.Total)
}

// DateRange is a half-open [From, To) interval on created_at. A zero bound is open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// EntryFilter selects ledger entries. Empty fields do not filter.
type EntryFilter struct {
	CurrencyCode  string
	OperationType OperationType
	Username      string
	Range         DateRange
	NewestFirst   bool
	Limit         int
}

func (f EntryFilter) Matches(e *LedgerEntry) bool {
	if f.CurrencyCode != "" && e.CurrencyCode != f.CurrencyCode {
		return false
	}
	if f.OperationType != "" && e.OperationType != f.OperationType {
		return false
	}
	if f.Username != "" && e.Username != f.Username {
		return false
	}
	return f.Range.Contains(e.CreatedAt)
}
