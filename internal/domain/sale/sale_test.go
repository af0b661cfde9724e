package sale

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaleLifecycle(t *testing.T) {
	s, err := New("s-1", "p-1", 3, decimal.RequireFromString("9.99"))
	require.NoError(t, err)
	assert.Equal(t, "29.97", s.TotalAmount.StringFixed(2))
	assert.Equal(t, StatusPending, s.Status)

	require.NoError(t, s.Complete())
	assert.ErrorIs(t, s.Complete(), ErrInvalidTransition)

	require.NoError(t, s.Cancel())
	assert.Equal(t, StatusCancelled, s.Status)
	assert.ErrorIs(t, s.Cancel(), ErrInvalidTransition)
}

func TestNewRejectsZeroQuantity(t *testing.T) {
	_, err := New("s-1", "p-1", 0, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
