package models

import "github.com/shopspring/decimal"

// CurrencyStat aggregates the ledger for one non-base currency.
type CurrencyStat struct {
	Currency            string          `json:"currency"`
	TotalPurchased      decimal.Decimal `json:"total_purchased"`
	TotalPurchaseAmount decimal.Decimal `json:"total_purchase_amount"`
	TotalSold           decimal.Decimal `json:"total_sold"`
	TotalSaleAmount     decimal.Decimal `json:"total_sale_amount"`
	AvgPurchaseRate     decimal.Decimal `json:"avg_purchase_rate"`
	AvgSaleRate         decimal.Decimal `json:"avg_sale_rate"`
	CurrentQuantity     decimal.Decimal `json:"current_quantity"`
	Profit              decimal.Decimal `json:"profit"`
}

type StatsResult struct {
	BaseCurrency  string          `json:"base_currency"`
	BaseBalance   decimal.Decimal `json:"base_balance"`
	TotalDeposits decimal.Decimal `json:"total_deposits"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	Currencies    []CurrencyStat  `json:"currencies"`
}

// DayRecord aggregates one calendar day of the ledger. Amounts are in the
// base currency.
type DayRecord struct {
	Day       string          `json:"day"`
	Purchases decimal.Decimal `json:"purchases"`
	Sales     decimal.Decimal `json:"sales"`
	Deposits  decimal.Decimal `json:"deposits"`
	Profit    decimal.Decimal `json:"profit"`
	Entries   int             `json:"entries"`
}

// AccountDrift is the difference between a stored balance and the balance
// recomputed from the ledger.
type AccountDrift struct {
	Code     string          `json:"code"`
	Stored   decimal.Decimal `json:"stored"`
	Computed decimal.Decimal `json:"computed"`
	Drift    decimal.Decimal `json:"drift"`
}

type RepairReport struct {
	DryRun   bool           `json:"dry_run"`
	Entries  int            `json:"entries"`
	Accounts []AccountDrift `json:"accounts"`
	Repaired int            `json:"repaired"`
}
