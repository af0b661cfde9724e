package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinv "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
)

func newService() (*Service, *appinv.Ledger) {
	repo := memory.NewProductRepository()
	ledger := appinv.NewLedger(repo, nil)
	return NewService(repo, ledger, nil), ledger
}

func TestCreateAndUpdateKeepStockOwnership(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	p, err := svc.Create(ctx, ProductInput{
		ID:           "p-1",
		Name:         "Kettle",
		Category:     "kitchen",
		CostPrice:    decimal.NewFromInt(10),
		SellingPrice: decimal.NewFromInt(30),
		DiscountRate: decimal.NewFromInt(10),
		Stock:        7,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)

	updated, err := svc.Update(ctx, "p-1", ProductInput{
		Name:         "Electric Kettle",
		CostPrice:    decimal.NewFromInt(10),
		SellingPrice: decimal.NewFromInt(40),
		Stock:        999,
	})
	require.NoError(t, err)
	assert.Equal(t, "Electric Kettle", updated.Name)
	assert.Equal(t, 7, updated.Stock)
	assert.Equal(t, "40.00", updated.UnitPrice().StringFixed(2))

	_, err = svc.Create(ctx, ProductInput{ID: "p-1", Name: "Again", SellingPrice: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), ProductInput{Name: "Bad", SellingPrice: decimal.NewFromInt(1), DiscountRate: decimal.NewFromInt(120)})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = svc.Update(context.Background(), "missing", ProductInput{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditStockGoesThroughLedger(t *testing.T) {
	svc, ledger := newService()
	ctx := context.Background()
	_, err := svc.Create(ctx, ProductInput{ID: "p-1", Name: "Kettle", SellingPrice: decimal.NewFromInt(5), Stock: 4})
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, "p-1", 3, "c-1")
	require.NoError(t, err)

	minusTwo := -2
	_, err = svc.EditStock(ctx, "p-1", StockEdit{Delta: &minusTwo})
	assert.ErrorIs(t, err, dominv.ErrInsufficientStock)

	ten := 10
	p, err := svc.EditStock(ctx, "p-1", StockEdit{Stock: &ten})
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)

	view, err := svc.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 7, view.Availability.Available)

	_, err = svc.EditStock(ctx, "p-1", StockEdit{})
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestSeedSkipsExisting(t *testing.T) {
	svc, _ := newService()
	seed := `[
		{"id":"p-1","name":"Lamp","selling_price":"19.90","discount_rate":"0","stock":3},
		{"id":"p-1","name":"Lamp dup","selling_price":"1","stock":1},
		{"id":"p-2","name":"Desk","selling_price":"120","discount_rate":"15","stock":1}
	]`
	n, err := svc.Seed(context.Background(), strings.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Lamp", all[0].Name)
}
