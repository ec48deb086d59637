package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no product exists for the given SKU.
	ErrNotFound = errors.New("product not found")
	// ErrSKUExists is returned by Create when the SKU is already registered.
	ErrSKUExists = errors.New("product already registered")
)

// Product is a single catalog record keyed by SKU. The SKU is immutable once
// the record exists; updates and re-imports only touch the other fields.
type Product struct {
	SKU         string    `gorm:"primaryKey;column:sku" json:"sku"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update carries a partial product mutation. Nil fields are left unchanged.
type Update struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// ListOptions controls pagination and server-side filtering of List.
// Query is matched against sku, name and description across the whole
// catalog, not just the requested page.
type ListOptions struct {
	Limit  int
	Offset int
	Query  string
}

// Store is the durable keyed storage for products. Upsert must serialize
// concurrent writes to the same SKU (last writer wins per key).
type Store interface {
	Get(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context, opts ListOptions) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, sku string, upd Update) (*Product, error)
	Upsert(ctx context.Context, p Product) (created bool, err error)
	Delete(ctx context.Context, sku string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// NormalizeSKU canonicalizes a SKU for identity comparison. Imports treat
// SKUs as case-insensitive, so "ABC-1" and "abc-1" address the same record.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}
