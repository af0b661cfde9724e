package httpprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

func TestCreateIntentSendsAuthAndIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var body createIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(23600), body.Amount)
		assert.Equal(t, "usd", body.Currency)

		_ = json.NewEncoder(w).Encode(intentResponse{ID: "pi_123", Status: "requires_confirmation"})
	}))
	defer srv.Close()

	p := New(srv.URL, "sk_test")
	id, err := p.CreateIntent(context.Background(), dompay.IntentRequest{Amount: 23600, Currency: "usd", IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", id)
}

func TestConfirmMapsResponses(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       string
		wantStatus dompay.ProviderStatus
		wantErr    error
	}{
		{name: "succeeded", code: http.StatusOK, body: `{"id":"pi_1","status":"succeeded"}`, wantStatus: dompay.StatusSucceeded},
		{name: "requires payment method", code: http.StatusOK, body: `{"id":"pi_1","status":"requires_payment_method"}`, wantStatus: dompay.StatusRequiresPaymentMethod},
		{name: "card error", code: http.StatusPaymentRequired, body: `{"error":{"type":"card_error","code":"card_declined"}}`, wantStatus: dompay.StatusDeclined},
		{name: "server error", code: http.StatusBadGateway, body: `oops`, wantErr: dompay.ErrProviderError},
		{name: "rate limited", code: http.StatusTooManyRequests, body: ``, wantErr: dompay.ErrProviderError},
		{name: "bad key", code: http.StatusUnauthorized, body: `{"error":{"message":"invalid api key"}}`, wantErr: ErrRejected},
		{name: "garbled", code: http.StatusOK, body: `{`, wantErr: dompay.ErrProviderError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/payment_intents/pi_1/confirm", r.URL.Path)
				assert.Equal(t, "k:confirm", r.Header.Get("Idempotency-Key"))
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			status, err := New(srv.URL, "sk").Confirm(context.Background(), "pi_1", dompay.Details{Token: "tok_visa"}, "k:confirm")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(url, "").Refund(context.Background(), "pi_1", "reason", "k")
	assert.ErrorIs(t, err, dompay.ErrProviderError)
}
