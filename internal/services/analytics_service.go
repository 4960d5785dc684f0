package services

import (
	"context"
	"fmt"
	"iter"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
)

// AnalyticsService replays the ledger into per-currency aggregates. It only reads.
type AnalyticsService struct {
	store        store.Reader
	baseCurrency string
	location     *time.Location
	cache        StatsCache
}

func NewAnalyticsService(st store.Reader, cfg config.LedgerConfig, cache StatsCache) *AnalyticsService {
	return &AnalyticsService{
		store:        st,
		baseCurrency: cfg.BaseCurrency,
		location:     cfg.Location(),
		cache:        cache,
	}
}

// ComputeStats aggregates the entries visible to actor inside r. Balances come
// from the account store, not from the replay.
func (s *AnalyticsService) ComputeStats(ctx context.Context, actor models.Identity, r models.DateRange) (*models.StatsResult, error) {
	scope := statsScope(actor, r)

	var gen int64
	cached := s.cache != nil
	if cached {
		var err error
		if gen, err = s.store.Generation(ctx); err != nil {
			log.Printf("[STATS] Ledger generation unavailable, computing directly: %v", err)
			cached = false
		}
	}
	if cached {
		if result, err := s.cache.Get(ctx, gen, scope); err != nil {
			log.Printf("[STATS] Cache read failed: %v", err)
		} else if result != nil {
			return result, nil
		}
	}

	result, err := s.computeStats(ctx, actor, r)
	if err != nil {
		return nil, err
	}

	if cached {
		if err := s.cache.Set(ctx, gen, scope, result); err != nil {
			log.Printf("[STATS] Cache write failed: %v", err)
		}
	}
	return result, nil
}

type currencyTotals struct {
	purchased, purchaseAmount decimal.Decimal
	sold, saleAmount          decimal.Decimal
}

func (s *AnalyticsService) computeStats(ctx context.Context, actor models.Identity, r models.DateRange) (*models.StatsResult, error) {
	entries, err := s.store.ListEntries(ctx, models.EntryFilter{Username: actor.OwnerScope(), Range: r})
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	result := &models.StatsResult{BaseCurrency: s.baseCurrency}
	totals := make(map[string]*currencyTotals)
	balances := make(map[string]decimal.Decimal)

	for _, a := range accounts {
		if a.Code == s.baseCurrency {
			result.BaseBalance = a.Quantity
			continue
		}
		balances[a.Code] = a.Quantity
		totals[a.Code] = &currencyTotals{}
	}

	for _, e := range entries {
		if e.OperationType == models.OperationDeposit {
			result.TotalDeposits = result.TotalDeposits.Add(e.Quantity)
			continue
		}
		if e.CurrencyCode == s.baseCurrency {
			continue
		}
		t, ok := totals[e.CurrencyCode]
		if !ok {
			t = &currencyTotals{}
			totals[e.CurrencyCode] = t
		}
		switch e.OperationType {
		case models.OperationPurchase:
			t.purchased = t.purchased.Add(e.Quantity)
			t.purchaseAmount = t.purchaseAmount.Add(e.Total)
		case models.OperationSale:
			t.sold = t.sold.Add(e.Quantity)
			t.saleAmount = t.saleAmount.Add(e.Total)
		}
	}

	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		t := totals[code]
		stat := models.CurrencyStat{
			Currency:            code,
			TotalPurchased:      t.purchased,
			TotalPurchaseAmount: t.purchaseAmount,
			TotalSold:           t.sold,
			TotalSaleAmount:     t.saleAmount,
			AvgPurchaseRate:     average(t.purchaseAmount, t.purchased),
			AvgSaleRate:         average(t.saleAmount, t.sold),
			CurrentQuantity:     balances[code],
		}
		stat.Profit = profit(t)
		result.TotalProfit = result.TotalProfit.Add(stat.Profit)
		result.Currencies = append(result.Currencies, stat)
	}
	return result, nil
}

// profit values the sold quantity at the average purchase rate. Dividing once
// keeps whole results exact where the two averages would not.
func profit(t *currencyTotals) decimal.Decimal {
	if t.sold.IsZero() {
		return decimal.Zero
	}
	if t.purchased.IsZero() {
		return t.saleAmount
	}
	return t.saleAmount.Sub(t.purchaseAmount.Mul(t.sold).Div(t.purchased))
}

// DailySeries returns one record per calendar day in r that has entries,
// ascending. Day profit values each sale at the cumulative average purchase
// rate of its currency up to and including that day, purchases before r
// included. The sequence can be ranged over any number of times.
func (s *AnalyticsService) DailySeries(ctx context.Context, actor models.Identity, r models.DateRange, currencyCode string) (iter.Seq[models.DayRecord], error) {
	entries, err := s.store.ListEntries(ctx, models.EntryFilter{
		Username:     actor.OwnerScope(),
		CurrencyCode: currencyCode,
		Range:        models.DateRange{To: r.To},
	})
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	return func(yield func(models.DayRecord) bool) {
		type purchases struct{ quantity, amount decimal.Decimal }
		cumulative := make(map[string]*purchases)

		for start := 0; start < len(entries); {
			day := s.dayOf(entries[start].CreatedAt)
			end := start
			for end < len(entries) && s.dayOf(entries[end].CreatedAt) == day {
				end++
			}
			group := entries[start:end]
			start = end

			for _, e := range group {
				if e.OperationType != models.OperationPurchase {
					continue
				}
				p, ok := cumulative[e.CurrencyCode]
				if !ok {
					p = &purchases{}
					cumulative[e.CurrencyCode] = p
				}
				p.quantity = p.quantity.Add(e.Quantity)
				p.amount = p.amount.Add(e.Total)
			}

			rec := models.DayRecord{Day: day}
			for _, e := range group {
				if !r.Contains(e.CreatedAt) {
					continue
				}
				rec.Entries++
				switch e.OperationType {
				case models.OperationPurchase:
					rec.Purchases = rec.Purchases.Add(e.Total)
				case models.OperationDeposit:
					rec.Deposits = rec.Deposits.Add(e.Quantity)
				case models.OperationSale:
					rec.Sales = rec.Sales.Add(e.Total)
					avg := decimal.Zero
					if p, ok := cumulative[e.CurrencyCode]; ok {
						avg = average(p.amount, p.quantity)
					}
					rec.Profit = rec.Profit.Add(e.Total.Sub(avg.Mul(e.Quantity)))
				}
			}
			if rec.Entries == 0 {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}, nil
}

func (s *AnalyticsService) dayOf(t time.Time) string {
	return t.In(s.location).Format(time.DateOnly)
}

func average(amount, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	return amount.Div(quantity)
}

func statsScope(actor models.Identity, r models.DateRange) string {
	bound := func(t time.Time) int64 {
		if t.IsZero() {
			return 0
		}
		return t.UnixMicro()
	}
	owner := actor.OwnerScope()
	if owner == "" {
		owner = "*"
	}
	return fmt.Sprintf("%s:%d:%d", owner, bound(r.From), bound(r.To))
}
