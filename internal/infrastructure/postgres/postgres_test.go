package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
)

func sampleOrder(t *testing.T) *domorder.Order {
	t.Helper()
	o, err := domorder.New(domorder.Params{
		ID:     uuid.NewString(),
		UserID: "u-1",
		Lines: []domorder.Line{
			{ProductID: "p-1", Name: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("100")},
		},
		Shipping: domorder.Address{
			FullName: "A. Buyer", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		PaymentMethod: domorder.PaymentCOD,
		TaxRate:       decimal.RequireFromString("0.18"),
		Actor:         "u-1",
	})
	require.NoError(t, err)
	return o
}

func TestOrderJSONColumnsRoundTrip(t *testing.T) {
	o := sampleOrder(t)
	lines, shipping, transitions, err := encodeOrder(o)
	require.NoError(t, err)

	var got domorder.Order
	require.NoError(t, decodeOrderJSON(&got, lines, shipping, transitions))

	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].LineTotal.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, o.Shipping, got.Shipping)
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, domorder.StateCreated, got.Transitions[0].To)
}

func TestDecodeOrderJSONRejectsBadNumeric(t *testing.T) {
	var got domorder.Order
	err := decodeOrderJSON(&got, []byte(`[{"unit_price":"abc","line_total":"1"}]`), []byte(`{}`), []byte(`[]`))
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: uniqueViolation}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, isUniqueViolation(errors.New("other")))
}

// The tests below run against a real database when POSTGRES_TEST_DSN is set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestProductRepositoryMutate(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewProductRepository(pool)

	p, err := dominv.NewProduct(uuid.NewString(), "Mug", decimal.NewFromInt(5), decimal.NewFromInt(10), decimal.Zero, 3)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, p))
	assert.ErrorIs(t, repo.Insert(ctx, p), dominv.ErrConflict)

	_, err = repo.Mutate(ctx, p.ID, func(p *dominv.Product) error { return p.Decrement(5) })
	assert.ErrorIs(t, err, dominv.ErrInsufficientStock)

	got, err := repo.Mutate(ctx, p.ID, func(p *dominv.Product) error { return p.Decrement(2) })
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	stored, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stock)
	assert.True(t, stored.SellingPrice.Equal(decimal.NewFromInt(10)))

	_, err = repo.Get(ctx, "missing-"+p.ID)
	assert.ErrorIs(t, err, dominv.ErrNotFound)
}

func TestOrderRepositoryLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewOrderRepository(pool)

	o := sampleOrder(t)
	require.NoError(t, repo.Insert(ctx, o))
	stale := o.Clone()
	require.NoError(t, o.TransitionTo(domorder.StateProcessing, "admin", ""))
	require.NoError(t, repo.Update(ctx, o))
	assert.Equal(t, int64(2), o.Version)

	require.NoError(t, stale.TransitionTo(domorder.StateCancelled, "admin", ""))
	assert.ErrorIs(t, repo.Update(ctx, stale), domorder.ErrStale)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domorder.StateProcessing, got.State)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.Transitions, 2)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(236)))

	list, err := repo.List(ctx, domorder.ListFilter{UserID: "u-1", State: domorder.StateProcessing})
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func TestSaleRepositoryLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	p, err := dominv.NewProduct(uuid.NewString(), "Pen", decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.Zero, 10)
	require.NoError(t, err)
	require.NoError(t, NewProductRepository(pool).Insert(ctx, p))

	repo := NewSaleRepository(pool)
	s, err := domsale.New(uuid.NewString(), p.ID, 2, decimal.NewFromInt(2))
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, s))
	stale := s.Clone()
	require.NoError(t, s.Complete())
	require.NoError(t, repo.Update(ctx, s))

	require.NoError(t, stale.Cancel())
	assert.ErrorIs(t, repo.Update(ctx, stale), domsale.ErrStale)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domsale.StatusCompleted, got.Status)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(4)))
}
