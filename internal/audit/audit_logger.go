// Package audit writes one JSON line per ledger mutation.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/models"
)

type Event struct {
	Timestamp time.Time        `json:"timestamp"`
	EventType string           `json:"event_type"`
	EntryID   string           `json:"entry_id,omitempty"`
	Currency  string           `json:"currency,omitempty"`
	Username  string           `json:"username"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Status    string           `json:"status"`
	Details   any              `json:"details,omitempty"`
}

// Sink receives encoded events and may be called concurrently. The default
// sink is the standard logger.
type Sink func(line string)

type Logger struct {
	sink Sink
}

func NewLogger() *Logger {
	return &Logger{sink: func(line string) { log.Printf("AUDIT: %s", line) }}
}

// NewLoggerWithSink is used by tests to capture events.
func NewLoggerWithSink(sink Sink) *Logger {
	return &Logger{sink: sink}
}

// LogEntry records a committed mutation of entry. eventType is EXCHANGE,
// DEPOSIT, EDIT or DELETE.
func (a *Logger) LogEntry(eventType string, actor models.Identity, entry *models.LedgerEntry, details any) {
	total := entry.Total
	a.log(Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		EntryID:   entry.ID,
		Currency:  entry.CurrencyCode,
		Username:  actor.Username,
		Amount:    &total,
		Status:    "SUCCESS",
		Details:   details,
	})
}

func (a *Logger) LogError(eventType string, actor models.Identity, entryID string, err error) {
	a.log(Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		EntryID:   entryID,
		Username:  actor.Username,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) LogOperation(eventType string, actor models.Identity, details any) {
	a.log(Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Username:  actor.Username,
		Status:    "SUCCESS",
		Details:   details,
	})
}

func (a *Logger) log(event Event) {
	if a == nil {
		return
	}
	data, _ := json.Marshal(event)
	a.sink(string(data))
}
