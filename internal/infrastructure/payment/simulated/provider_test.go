package simulated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

func TestDeterministicTokens(t *testing.T) {
	ctx := context.Background()
	p := New(0)

	id, err := p.CreateIntent(ctx, dompay.IntentRequest{Amount: 100, Currency: "usd"})
	require.NoError(t, err)
	status, err := p.Confirm(ctx, id, dompay.Details{Token: TokenDecline}, "k1")
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusDeclined, status)

	id, err = p.CreateIntent(ctx, dompay.IntentRequest{Amount: 100, Currency: "usd"})
	require.NoError(t, err)
	status, err = p.Confirm(ctx, id, dompay.Details{Token: TokenSucceed}, "k2")
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusSucceeded, status)

	require.NoError(t, p.Refund(ctx, id, "test", "k2:refund"))
	assert.True(t, p.Refunded(id))
}

func TestFlakyTokenFailsOnceThenSucceeds(t *testing.T) {
	ctx := context.Background()
	p := New(1)

	id, err := p.CreateIntent(ctx, dompay.IntentRequest{Amount: 100, Currency: "usd"})
	require.NoError(t, err)

	_, err = p.Confirm(ctx, id, dompay.Details{Token: TokenFlaky}, "k")
	assert.ErrorIs(t, err, dompay.ErrProviderError)

	status, err := p.Confirm(ctx, id, dompay.Details{Token: TokenFlaky}, "k")
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusSucceeded, status)
}

func TestConfirmReplaysByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	p := New(0)

	id, err := p.CreateIntent(ctx, dompay.IntentRequest{Amount: 100, Currency: "usd"})
	require.NoError(t, err)
	first, err := p.Confirm(ctx, id, dompay.Details{Token: TokenSucceed}, "same")
	require.NoError(t, err)
	second, err := p.Confirm(ctx, id, dompay.Details{Token: TokenDecline}, "same")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSuccessRateBounds(t *testing.T) {
	assert.Equal(t, DefaultSuccessRate, New(1.5).SuccessRate())
	assert.Equal(t, 0.25, New(0.25).SuccessRate())
}
