package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress() Address {
	return Address{FullName: "Ada Lovelace", Line1: "1 Analytical St", City: "London", Country: "GB"}
}

func newTestOrder(t *testing.T, method PaymentMethod) *Order {
	t.Helper()
	o, err := New(Params{
		ID:     "o-1",
		UserID: "u-1",
		Lines: []Line{
			{ProductID: "p-1", Name: "Lamp", Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
		},
		Shipping:      testAddress(),
		PaymentMethod: method,
		TaxRate:       decimal.RequireFromString("0.18"),
		Actor:         "u-1",
	})
	require.NoError(t, err)
	return o
}

func TestNewComputesTotalsOnce(t *testing.T) {
	o := newTestOrder(t, PaymentCard)

	assert.Equal(t, "200.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "36.00", o.Tax.StringFixed(2))
	assert.Equal(t, "236.00", o.Total.StringFixed(2))
	assert.True(t, o.Total.Equal(o.Subtotal.Add(o.Tax)))
	assert.Equal(t, StateCreated, o.State)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	require.Len(t, o.Transitions, 1)
	assert.Equal(t, StateCreated, o.Transitions[0].To)
}

func TestNewRejectsInvalidInput(t *testing.T) {
	base := Params{
		ID:            "o-1",
		Lines:         []Line{{ProductID: "p-1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
		Shipping:      testAddress(),
		PaymentMethod: PaymentCard,
	}

	noLines := base
	noLines.Lines = nil
	_, err := New(noLines)
	assert.ErrorIs(t, err, ErrNoLines)

	badQty := base
	badQty.Lines = []Line{{ProductID: "p-1", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}}
	_, err = New(badQty)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	badShipping := base
	badShipping.Shipping = Address{}
	_, err = New(badShipping)
	assert.ErrorIs(t, err, ErrInvalidShipping)

	badMethod := base
	badMethod.PaymentMethod = "bitcoin"
	_, err = New(badMethod)
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestStateMachineEdges(t *testing.T) {
	tests := []struct {
		name   string
		method PaymentMethod
		path   []State
		target State
		ok     bool
	}{
		{name: "paid to processing", method: PaymentCard, path: []State{StatePaid}, target: StateProcessing, ok: true},
		{name: "card created cannot skip payment", method: PaymentCard, target: StateProcessing, ok: false},
		{name: "cod created to processing", method: PaymentCOD, target: StateProcessing, ok: true},
		{name: "processing to shipped", method: PaymentCard, path: []State{StatePaid, StateProcessing}, target: StateShipped, ok: true},
		{name: "shipped to delivered", method: PaymentCard, path: []State{StatePaid, StateProcessing, StateShipped}, target: StateDelivered, ok: true},
		{name: "shipped cannot go back", method: PaymentCard, path: []State{StatePaid, StateProcessing, StateShipped}, target: StateProcessing, ok: false},
		{name: "shipped cannot cancel", method: PaymentCard, path: []State{StatePaid, StateProcessing, StateShipped}, target: StateCancelled, ok: false},
		{name: "created cancels", method: PaymentCOD, target: StateCancelled, ok: true},
		{name: "paid cancels", method: PaymentCard, path: []State{StatePaid}, target: StateCancelled, ok: true},
		{name: "processing cancels", method: PaymentCOD, path: []State{StateProcessing}, target: StateCancelled, ok: true},
		{name: "delivered is final", method: PaymentCard, path: []State{StatePaid, StateProcessing, StateShipped, StateDelivered}, target: StateCancelled, ok: false},
		{name: "paid is not an admin target", method: PaymentCOD, target: StatePaid, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newTestOrder(t, tc.method)
			for _, s := range tc.path {
				if s == StatePaid {
					require.NoError(t, o.MarkPaid("pi_1", "system"))
					continue
				}
				require.NoError(t, o.TransitionTo(s, "admin", ""))
			}
			before := len(o.Transitions)

			err := o.TransitionTo(tc.target, "admin", "test")
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Len(t, o.Transitions, before)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.target, o.State)
			require.Len(t, o.Transitions, before+1)
			last := o.Transitions[before]
			assert.Equal(t, tc.target, last.To)
			assert.Equal(t, "admin", last.Actor)
			assert.Equal(t, "UTC", last.At.Location().String())
		})
	}
}

func TestCashOnDeliveryBecomesPaidOnDelivery(t *testing.T) {
	o := newTestOrder(t, PaymentCOD)

	require.NoError(t, o.TransitionTo(StateProcessing, "admin", ""))
	require.NoError(t, o.TransitionTo(StateShipped, "admin", ""))
	assert.Equal(t, PaymentPending, o.PaymentStatus)

	require.NoError(t, o.TransitionTo(StateDelivered, "admin", ""))
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, StatusDelivered, o.Status())
}

func TestCashOnDeliveryCannotBeMarkedPaid(t *testing.T) {
	o := newTestOrder(t, PaymentCOD)

	assert.ErrorIs(t, o.MarkPaid("pi_1", "system"), ErrInvalidTransition)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestPaymentFailedIsTerminal(t *testing.T) {
	o := newTestOrder(t, PaymentCard)

	require.NoError(t, o.MarkPaymentFailed("card_declined", "system"))
	assert.Equal(t, PaymentFailed, o.PaymentStatus)
	assert.Equal(t, StatusCancelled, o.Status())
	assert.False(t, o.CanTransition(StateCancelled))
	assert.ErrorIs(t, o.MarkPaid("pi_1", "system"), ErrInvalidTransition)
}

func TestCloneIsDeep(t *testing.T) {
	o := newTestOrder(t, PaymentCard)

	c := o.Clone()
	c.Lines[0].Quantity = 99
	c.Transitions[0].Actor = "someone"

	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Equal(t, "u-1", o.Transitions[0].Actor)
}
