package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		status    ProviderStatus
		want      Outcome
		transient bool
	}{
		{status: StatusSucceeded, want: OutcomeSucceeded},
		{status: StatusRequiresPaymentMethod, want: OutcomeDeclined},
		{status: StatusDeclined, want: OutcomeDeclined},
		{status: StatusCanceled, want: OutcomeDeclined},
		{status: StatusProcessing, transient: true},
		{status: StatusRequiresAction, transient: true},
		{status: "mystery", transient: true},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			got, err := Resolve(tc.status)
			if tc.transient {
				assert.ErrorIs(t, err, ErrProviderError)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
