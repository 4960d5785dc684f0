package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ledgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "exchange_ledger_operations_total",
	Help: "Ledger mutations by operation and outcome",
}, []string{"operation", "result"})

func observe(operation string, err error) {
	ledgerOps.WithLabelValues(operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrCurrencyNotFound):
		return "currency_not_found"
	case errors.Is(err, ErrEntryNotFound):
		return "entry_not_found"
	case errors.Is(err, ErrTransactionConflict):
		return "conflict"
	}
	return "error"
}
