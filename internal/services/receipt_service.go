package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/somexchange/backend/internal/models"
)

const defaultReceiptSize = 256

// ReceiptPayload is what a receipt QR code encodes.
type ReceiptPayload struct {
	ID            string               `json:"id"`
	OperationType models.OperationType `json:"type"`
	Currency      string               `json:"currency"`
	Rate          string               `json:"rate"`
	Quantity      string               `json:"quantity"`
	Total         string               `json:"total"`
	CreatedAt     string               `json:"created_at"`
}

type ReceiptService struct {
	query *QueryService
}

func NewReceiptService(query *QueryService) *ReceiptService {
	return &ReceiptService{query: query}
}

// Receipt renders entry id as a PNG QR code of size pixels. The same
// visibility rules as GetEntry apply.
func (s *ReceiptService) Receipt(ctx context.Context, actor models.Identity, id string, size int) ([]byte, error) {
	entry, err := s.query.GetEntry(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultReceiptSize
	}
	if size < 64 || size > 1024 {
		return nil, invalid("size", "must be between 64 and 1024")
	}

	payload, err := json.Marshal(receiptPayload(entry))
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	return png, nil
}

func receiptPayload(e *models.LedgerEntry) ReceiptPayload {
	return ReceiptPayload{
		ID:            e.ID,
		OperationType: e.OperationType,
		Currency:      e.CurrencyCode,
		Rate:          e.Rate.String(),
		Quantity:      e.Quantity.String(),
		Total:         e.Total.String(),
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
