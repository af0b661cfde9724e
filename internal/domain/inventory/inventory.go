package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("inventory: product not found")
	ErrConflict           = errors.New("inventory: product already exists")
	ErrInvalidQuantity    = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidProduct     = errors.New("inventory: invalid product")
	ErrInsufficientStock  = errors.New("inventory: insufficient stock")
	ErrReservationExpired = errors.New("inventory: reservation expired")
)

var hundred = decimal.NewFromInt(100)

// InsufficientStockError names the product that could not be reserved and what was left.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Product is the catalog entry whose Stock is owned by the inventory ledger.
type Product struct {
	ID             string
	Name           string
	Category       string
	Classification string
	CostPrice      decimal.Decimal
	SellingPrice   decimal.Decimal
	// DiscountRate is a percentage in [0, 100].
	DiscountRate decimal.Decimal
	Stock        int
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewProduct(id, name string, costPrice, sellingPrice, discountRate decimal.Decimal, stock int) (*Product, error) {
	now := time.Now().UTC()
	p := &Product{
		ID:           strings.TrimSpace(id),
		Name:         strings.TrimSpace(name),
		CostPrice:    costPrice,
		SellingPrice: sellingPrice,
		DiscountRate: discountRate,
		Stock:        stock,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks price and stock bounds.
func (p *Product) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidProduct)
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.CostPrice.IsNegative():
		return fmt.Errorf("%w: cost price must be zero or greater", ErrInvalidProduct)
	case p.SellingPrice.IsNegative():
		return fmt.Errorf("%w: selling price must be zero or greater", ErrInvalidProduct)
	case p.DiscountRate.IsNegative() || p.DiscountRate.GreaterThan(hundred):
		return fmt.Errorf("%w: discount rate must be within 0..100", ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must be zero or greater", ErrInvalidProduct)
	}
	return nil
}

// UnitPrice is the selling price after discount, rounded to cents.
func (p *Product) UnitPrice() decimal.Decimal {
	factor := hundred.Sub(p.DiscountRate).Div(hundred)
	return p.SellingPrice.Mul(factor).Round(2)
}

// Decrement removes quantity units of stock.
func (p *Product) Decrement(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Stock {
		return &InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	p.touch()
	return nil
}

// Increment returns quantity units to stock.
func (p *Product) Increment(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += quantity
	p.touch()
	return nil
}

// SetStock overwrites stock with an absolute count.
func (p *Product) SetStock(stock int) error {
	if stock < 0 {
		return &InsufficientStockError{ProductID: p.ID, Requested: p.Stock - stock, Available: p.Stock}
	}
	p.Stock = stock
	p.touch()
	return nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Product) touch() {
	p.Version++
	p.UpdatedAt = time.Now().UTC()
}
