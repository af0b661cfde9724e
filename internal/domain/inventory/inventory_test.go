package inventory

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductValidation(t *testing.T) {
	tests := []struct {
		name     string
		discount string
		selling  string
		stock    int
		wantErr  bool
	}{
		{name: "valid", discount: "10", selling: "100", stock: 5},
		{name: "discount above hundred", discount: "101", selling: "100", stock: 5, wantErr: true},
		{name: "negative discount", discount: "-1", selling: "100", stock: 5, wantErr: true},
		{name: "negative price", discount: "0", selling: "-3", stock: 5, wantErr: true},
		{name: "negative stock", discount: "0", selling: "100", stock: -1, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewProduct("p-1", "Lamp", decimal.NewFromInt(40),
				decimal.RequireFromString(tc.selling), decimal.RequireFromString(tc.discount), tc.stock)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProduct)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUnitPriceAppliesDiscount(t *testing.T) {
	p, err := NewProduct("p-1", "Lamp", decimal.NewFromInt(40), decimal.RequireFromString("199.99"), decimal.NewFromInt(15), 1)
	require.NoError(t, err)

	assert.Equal(t, "169.99", p.UnitPrice().StringFixed(2))
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	p, err := NewProduct("p-1", "Lamp", decimal.Zero, decimal.NewFromInt(10), decimal.Zero, 2)
	require.NoError(t, err)

	err = p.Decrement(3)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Available)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, p.Stock)

	require.NoError(t, p.Decrement(2))
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, int64(2), p.Version)
}
