package reporting

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
)

func TestProjectionFoldsOrderLifecycle(t *testing.T) {
	p := NewProjection(nil)
	ctx := context.Background()
	total := decimal.RequireFromString("236")

	require.NoError(t, p.Apply(ctx, domorder.PlacedEvent{
		OrderID:       "o-1",
		State:         domorder.StatePaid,
		PaymentStatus: domorder.PaymentPaid,
		Total:         total,
		Items:         []domorder.LineItem{{ProductID: "p-1", Quantity: 2}},
	}))
	require.NoError(t, p.Apply(ctx, domorder.PlacedEvent{
		OrderID:       "o-2",
		State:         domorder.StateCreated,
		PaymentMethod: domorder.PaymentCOD,
		PaymentStatus: domorder.PaymentPending,
		Total:         decimal.NewFromInt(50),
		Items:         []domorder.LineItem{{ProductID: "p-2", Quantity: 1}},
	}))

	d := p.Snapshot()
	assert.Equal(t, 2, d.OrdersByStatus[domorder.StatusPending])
	assert.Equal(t, 3, d.UnitsSold)
	assert.Equal(t, "236.00", d.PaidRevenue.StringFixed(2))

	require.NoError(t, p.Apply(ctx, domorder.StatusChangedEvent{
		OrderID: "o-2", From: domorder.StateShipped, To: domorder.StateDelivered,
		FromPayment: domorder.PaymentPending, PaymentStatus: domorder.PaymentPaid,
		Total: decimal.NewFromInt(50), Units: 1,
	}))
	require.NoError(t, p.Apply(ctx, domorder.StatusChangedEvent{
		OrderID: "o-1", From: domorder.StatePaid, To: domorder.StateCancelled,
		FromPayment: domorder.PaymentPaid, PaymentStatus: domorder.PaymentRefunded,
		Total: total, Units: 2,
	}))

	d = p.Snapshot()
	assert.Equal(t, "50.00", d.PaidRevenue.StringFixed(2))
	assert.Equal(t, 1, d.UnitsSold)
	assert.Equal(t, 1, d.OrdersByStatus[domorder.StatusCancelled])
	assert.Equal(t, 1, d.OrdersByStatus[domorder.StatusDelivered])
}

func TestProjectionLateRefundKeepsUnits(t *testing.T) {
	p := NewProjection(nil)
	ctx := context.Background()
	total := decimal.NewFromInt(100)

	require.NoError(t, p.Apply(ctx, domorder.PlacedEvent{
		OrderID: "o-1", State: domorder.StatePaid, PaymentStatus: domorder.PaymentPaid,
		Total: total, Items: []domorder.LineItem{{ProductID: "p-1", Quantity: 2}},
	}))
	require.NoError(t, p.Apply(ctx, domorder.StatusChangedEvent{
		OrderID: "o-1", From: domorder.StatePaid, To: domorder.StateCancelled,
		FromPayment: domorder.PaymentPaid, PaymentStatus: domorder.PaymentPaid,
		Total: total, Units: 2,
	}))
	require.NoError(t, p.Apply(ctx, domorder.StatusChangedEvent{
		OrderID: "o-1", From: domorder.StateCancelled, To: domorder.StateCancelled,
		FromPayment: domorder.PaymentPaid, PaymentStatus: domorder.PaymentRefunded,
		Total: total, Units: 2,
	}))

	d := p.Snapshot()
	assert.Equal(t, 0, d.UnitsSold)
	assert.True(t, d.PaidRevenue.IsZero())
	assert.Equal(t, 1, d.OrdersByStatus[domorder.StatusCancelled])
}

func TestProjectionFoldsSales(t *testing.T) {
	p := NewProjection(nil)
	ctx := context.Background()

	require.NoError(t, p.Apply(ctx, domsale.RecordedEvent{SaleID: "s-1", Quantity: 3, TotalAmount: decimal.NewFromInt(30)}))
	require.NoError(t, p.Apply(ctx, domsale.StatusChangedEvent{
		SaleID: "s-1", From: domsale.StatusPending, To: domsale.StatusCancelled,
		Quantity: 3, TotalAmount: decimal.NewFromInt(30),
	}))

	d := p.Snapshot()
	assert.Equal(t, 0, d.UnitsSold)
	assert.True(t, d.SalesRevenue.IsZero())
	assert.Equal(t, 1, d.SalesByStatus[domsale.StatusCancelled])
}

func TestSnapshotIsACopy(t *testing.T) {
	p := NewProjection(nil)
	s := p.Snapshot()
	s.OrdersByStatus[domorder.StatusPending] = 42

	assert.Zero(t, p.Snapshot().OrdersByStatus[domorder.StatusPending])
	assert.Len(t, p.Events(), 4)
}
