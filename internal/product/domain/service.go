package domain

import (
	"context"
	"errors"

	"github.com/spokeworks/chainline/pkg/db/pagination"
	"github.com/spokeworks/chainline/pkg/money"
	"gorm.io/gorm"
)

var (
	ErrInvalidBrand = errors.New("invalid_brand")
	ErrInvalidModel = errors.New("invalid_model")
	ErrInvalidID    = errors.New("invalid_id")
	ErrDuplicateSKU = errors.New("duplicate_sku")
	ErrNotFound     = errors.New("not_found")
	ErrHasSoldUnits = errors.New("product_has_sold_units")
)

type CreateProductRequest struct {
	Brand     string
	Model     string
	SKU       string
	Category  string
	Color     string
	Size      string
	ListPrice money.Cents
}

type UpdateProductRequest struct {
	ID        string
	Category  *string
	Color     *string
	Size      *string
	ListPrice *money.Cents
}

type ListProductRequest struct {
	PageToken string
	PageSize  int32
	Brand     string
	Category  string
	SKU       string
}

type ListProductFilter struct {
	Brand    string
	Category string
	SKU      string
}

type ListProductResponse struct {
	pagination.PageInfo
	Products []Product `json:"products"`
}

type GetProductRequest struct {
	ID string
}

type DeleteProductRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateProductRequest) (Product, error)
	Update(context.Context, UpdateProductRequest) (Product, error)
	List(context.Context, ListProductRequest) (ListProductResponse, error)
	GetByID(context.Context, GetProductRequest) (Product, error)
	GetBySKU(context.Context, string) (Product, error)
	Delete(context.Context, DeleteProductRequest) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindBySKU(ctx context.Context, db *gorm.DB, sku string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListProductFilter, page pagination.Pagination) ([]*Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error
	Delete(ctx context.Context, db *gorm.DB, id int64) error
}
