package staticauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/auth"
)

func TestParseAndAuthenticate(t *testing.T) {
	a, err := Parse(" alice-token:alice:customer, ops-token:ops:admin ,")
	require.NoError(t, err)

	p, err := a.Authenticate(context.Background(), "ops-token")
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: "ops", Role: auth.RoleAdmin}, p)
	assert.True(t, p.IsAdmin())

	p, err = a.Authenticate(context.Background(), "alice-token")
	require.NoError(t, err)
	assert.False(t, p.IsAdmin())

	_, err = a.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestParseRejectsMalformedEntries(t *testing.T) {
	for _, raw := range []string{"tok:user", "tok:user:root", ":user:admin", "tok::admin"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}
