package inventory

import (
	"context"
)

// Repository is the durable catalog store.
type Repository interface {
	Get(ctx context.Context, productID string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Insert(ctx context.Context, product *Product) error
	// Update persists name, category and prices. The Stock of the argument is ignored.
	Update(ctx context.Context, product *Product) (*Product, error)
	// Mutate performs an atomic read-modify-write of one product. Changes made by fn
	// are persisted only when it returns nil.
	Mutate(ctx context.Context, productID string, fn func(*Product) error) (*Product, error)
}

// ApplyMetadata copies the fields an Update may change from src onto p.
func (p *Product) ApplyMetadata(src *Product) {
	p.Name = src.Name
	p.Category = src.Category
	p.Classification = src.Classification
	p.CostPrice = src.CostPrice
	p.SellingPrice = src.SellingPrice
	p.DiscountRate = src.DiscountRate
	p.touch()
}
