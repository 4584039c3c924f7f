package domain

import (
	"context"
	"errors"
	"time"

	"github.com/spokeworks/chainline/pkg/db/pagination"
	"github.com/spokeworks/chainline/pkg/money"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrInvalidSupplier    = errors.New("invalid_supplier")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidLine        = errors.New("invalid_line")
	ErrDuplicateReference = errors.New("duplicate_reference")
	ErrNotPending         = errors.New("invoice_not_pending")
	ErrNoLines            = errors.New("invoice_has_no_lines")
	ErrUnmatchedLines     = errors.New("invoice_has_unmatched_lines")
	ErrLineNotFound       = errors.New("line_not_found")
)

// ParsedLine is one row of a parsed supplier document, as produced by
// the out-of-process document parser.
type ParsedLine struct {
	Description string      `json:"description"`
	Quantity    int         `json:"quantity"`
	UnitCost    money.Cents `json:"unit_cost"`
	TotalCost   money.Cents `json:"total_cost"`
	BrandHint   string      `json:"brand_hint,omitempty"`
	ModelHint   string      `json:"model_hint,omitempty"`
	ColorHint   string      `json:"color_hint,omitempty"`
	SizeHint    string      `json:"size_hint,omitempty"`
	SKUHint     string      `json:"sku_hint,omitempty"`
}

type CreateInvoiceRequest struct {
	Reference    string       `json:"reference"`
	Supplier     string       `json:"supplier"`
	InvoiceDate  *time.Time   `json:"invoice_date,omitempty"`
	ShippingCost money.Cents  `json:"shipping_cost"`
	Discount     money.Cents  `json:"discount"`
	CardFees     money.Cents  `json:"card_fees"`
	Tax          money.Cents  `json:"tax"`
	OtherFees    money.Cents  `json:"other_fees"`
	Lines        []ParsedLine `json:"lines"`
	RawPayload   []byte       `json:"-"`

	// Overwrite replaces an existing pending invoice with the same
	// reference instead of failing the create. Approved and rejected
	// invoices are never replaced.
	Overwrite bool `json:"overwrite"`
}

type UpdateChargesRequest struct {
	ID           string
	ShippingCost *money.Cents
	Discount     *money.Cents
	CardFees     *money.Cents
	Tax          *money.Cents
	OtherFees    *money.Cents
}

type MatchLineRequest struct {
	InvoiceID  string
	LineItemID string
	// ProductID empty clears the match.
	ProductID string
}

type ListInvoiceRequest struct {
	PageToken string
	PageSize  int32
	Status    string
	Supplier  string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// InvoiceDetail carries the invoice with its lines and derived totals.
type InvoiceDetail struct {
	Invoice  Invoice     `json:"invoice"`
	Lines    []LineItem  `json:"lines"`
	Subtotal money.Cents `json:"subtotal"`
	Total    money.Cents `json:"total"`
}

// PlannedUnit is one row of an approval preview.
type PlannedUnit struct {
	LineItemID  string      `json:"line_item_id"`
	Description string      `json:"description"`
	ProductID   string      `json:"product_id,omitempty"`
	Serial      string      `json:"serial"`
	UnitCost    money.Cents `json:"unit_cost"`
}

type Preview struct {
	Units    []PlannedUnit `json:"units"`
	Subtotal money.Cents   `json:"subtotal"`
	Extras   money.Cents   `json:"extras"`
	Total    money.Cents   `json:"total"`
}

type ApproveRequest struct {
	ID         string
	ApprovedBy string
}

type ApproveResult struct {
	Invoice      Invoice  `json:"invoice"`
	UnitsCreated int      `json:"units_created"`
	Serials      []string `json:"serials"`
	SyncQueued   bool     `json:"sync_queued"`
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (InvoiceDetail, error)
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (InvoiceDetail, error)
	UpdateCharges(context.Context, UpdateChargesRequest) (InvoiceDetail, error)
	MatchLine(context.Context, MatchLineRequest) (LineItem, error)
	Preview(ctx context.Context, id string) (Preview, error)
	Approve(context.Context, ApproveRequest) (ApproveResult, error)
	Reject(ctx context.Context, id string) (Invoice, error)
}
