package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/pkg/db/pagination"
	"github.com/spokeworks/chainline/pkg/money"
)

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidSerial     = errors.New("invalid_serial")
	ErrInvalidProduct    = errors.New("invalid_product")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrDuplicateSerial   = errors.New("duplicate_serial")
	ErrAlreadySold       = errors.New("unit_already_sold")
	ErrDeleteSold        = errors.New("cannot_delete_sold_unit")
)

// Sync operations queued against the Shopify catalog.
type SyncOp string

const (
	OpPush    SyncOp = "push"
	OpArchive SyncOp = "archive"
)

type SyncTask struct {
	UnitID snowflake.ID
	Op     SyncOp
}

// SyncQueue accepts catalog work without blocking the caller. Failures
// surface on the unit's sync_status, never on the enqueuing operation.
type SyncQueue interface {
	Enqueue(tasks ...SyncTask)
}

// CatalogSyncer performs synchronous, targeted catalog calls.
type CatalogSyncer interface {
	DeleteVariant(ctx context.Context, unit InventoryUnit) error
}

type CreateUnitRequest struct {
	ProductID  string
	Serial     string
	ActualCost money.Cents
	Status     string
}

type ListUnitRequest struct {
	PageToken string
	PageSize  int32
	ProductID string
	Status    string
	InvoiceID string
}

type ListUnitResponse struct {
	pagination.PageInfo
	Units []InventoryUnit `json:"units"`
}

type MarkSoldRequest struct {
	Serial    string
	OrderID   string
	SalePrice money.Cents
}

// MarkSoldResult reports the transition that happened, so callers can
// flag units that sold out of an unexpected status.
type MarkSoldResult struct {
	Unit       InventoryUnit
	FromStatus string
}

type Service interface {
	Create(context.Context, CreateUnitRequest) (InventoryUnit, error)
	List(context.Context, ListUnitRequest) (ListUnitResponse, error)
	GetByID(ctx context.Context, id string) (InventoryUnit, error)
	GetBySerial(ctx context.Context, serial string) (InventoryUnit, error)
	MarkReceived(ctx context.Context, id string) (InventoryUnit, error)
	MarkSoldBySerial(context.Context, MarkSoldRequest) (MarkSoldResult, error)
	SetStatus(ctx context.Context, id, status string) (InventoryUnit, error)
	Delete(ctx context.Context, id string) error
	RetrySync(ctx context.Context, id string) (InventoryUnit, error)
}
