package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrMissingWebhookID = errors.New("missing_webhook_id")
)

// Discrepancy describes a line item that could not be applied cleanly.
// Discrepancies never fail the delivery; they are surfaced for review.
type Discrepancy struct {
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

type HandleResult struct {
	Status        string        `json:"status"`
	Duplicate     bool          `json:"duplicate"`
	UnitsSold     int           `json:"units_sold"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
}

type Service interface {
	HandleOrderCreate(ctx context.Context, webhookID string, payload []byte) (*HandleResult, error)
}
