package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type fakeProvider struct {
	mu            sync.Mutex
	createErrs    []error
	confirmErrs   []error
	confirmStatus dompay.ProviderStatus
	refundErr     error

	createCalls  int
	confirmCalls int
	refundCalls  int
	confirmKeys  []string
}

func (f *fakeProvider) CreateIntent(_ context.Context, req dompay.IntentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("pi_%d", req.Amount), nil
}

func (f *fakeProvider) Confirm(_ context.Context, _ string, _ dompay.Details, key string) (dompay.ProviderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	f.confirmKeys = append(f.confirmKeys, key)
	if len(f.confirmErrs) > 0 {
		err := f.confirmErrs[0]
		f.confirmErrs = f.confirmErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.confirmStatus, nil
}

func (f *fakeProvider) Refund(context.Context, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	return f.refundErr
}

func testConfig() Config {
	return Config{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		CallTimeout:     time.Second,
	}
}

var errFlaky = fmt.Errorf("%w: 502 bad gateway", dompay.ErrProviderError)

func TestCreateIntentRetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{createErrs: []error{errFlaky, errFlaky}}
	c := NewCoordinator(provider, testConfig(), nil)

	handle, err := c.CreateIntent(context.Background(), 23600, "USD", map[string]string{"checkout_id": "c-1"})
	require.NoError(t, err)

	assert.Equal(t, 3, provider.createCalls)
	assert.Equal(t, "pi_23600", handle.ID)
	assert.Equal(t, "usd", handle.Currency)
	assert.NotEmpty(t, handle.IdempotencyKey)
}

func TestCreateIntentExhaustedIsUnavailable(t *testing.T) {
	provider := &fakeProvider{createErrs: []error{errFlaky, errFlaky, errFlaky, errFlaky}}
	c := NewCoordinator(provider, testConfig(), nil)

	_, err := c.CreateIntent(context.Background(), 100, "usd", nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 3, provider.createCalls)
}

func TestCreateIntentValidates(t *testing.T) {
	provider := &fakeProvider{}
	c := NewCoordinator(provider, testConfig(), nil)

	_, err := c.CreateIntent(context.Background(), 0, "usd", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = c.CreateIntent(context.Background(), 10, " ", nil)
	assert.ErrorIs(t, err, ErrInvalidCurrency)
	assert.Zero(t, provider.createCalls)
}

func TestConfirmSucceedsAfterRetryWithOneKey(t *testing.T) {
	provider := &fakeProvider{confirmErrs: []error{errFlaky}, confirmStatus: dompay.StatusSucceeded}
	c := NewCoordinator(provider, testConfig(), nil)
	handle := dompay.IntentHandle{ID: "pi_1", Amount: 100, Currency: "usd", IdempotencyKey: "k-1"}

	outcome, err := c.Confirm(context.Background(), handle, dompay.Details{Token: "tok_visa"})
	require.NoError(t, err)
	assert.Equal(t, dompay.OutcomeSucceeded, outcome)
	assert.Equal(t, 2, provider.confirmCalls)
	assert.Equal(t, []string{"k-1:confirm", "k-1:confirm"}, provider.confirmKeys)
}

func TestConfirmDeclineIsNotRetried(t *testing.T) {
	provider := &fakeProvider{confirmStatus: dompay.StatusRequiresPaymentMethod}
	c := NewCoordinator(provider, testConfig(), nil)

	outcome, err := c.Confirm(context.Background(), dompay.IntentHandle{ID: "pi_1"}, dompay.Details{})
	require.NoError(t, err)
	assert.Equal(t, dompay.OutcomeDeclined, outcome)
	assert.Equal(t, 1, provider.confirmCalls)
}

func TestConfirmExhaustedSurfacesProviderError(t *testing.T) {
	provider := &fakeProvider{confirmStatus: dompay.StatusProcessing}
	c := NewCoordinator(provider, testConfig(), nil)

	_, err := c.Confirm(context.Background(), dompay.IntentHandle{ID: "pi_1"}, dompay.Details{})
	assert.ErrorIs(t, err, ErrProviderError)
	assert.Equal(t, 3, provider.confirmCalls)
}

func TestConfirmPermanentErrorStopsImmediately(t *testing.T) {
	boom := errors.New("invalid api key")
	provider := &fakeProvider{confirmErrs: []error{boom}}
	c := NewCoordinator(provider, testConfig(), nil)

	_, err := c.Confirm(context.Background(), dompay.IntentHandle{ID: "pi_1"}, dompay.Details{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, provider.confirmCalls)
}

func TestConfirmHonorsCancelledContext(t *testing.T) {
	provider := &fakeProvider{confirmStatus: dompay.StatusProcessing}
	cfg := testConfig()
	cfg.MaxRetries = 100
	cfg.InitialInterval = 50 * time.Millisecond
	c := NewCoordinator(provider, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Confirm(ctx, dompay.IntentHandle{ID: "pi_1"}, dompay.Details{})
	assert.Error(t, err)
	assert.Less(t, provider.confirmCalls, 100)
}

func TestRefund(t *testing.T) {
	provider := &fakeProvider{}
	c := NewCoordinator(provider, testConfig(), nil)
	require.NoError(t, c.Refund(context.Background(), dompay.IntentHandle{ID: "pi_1"}, "stock_commit_failed"))

	provider.refundErr = errors.New("already refunded")
	err := c.Refund(context.Background(), dompay.IntentHandle{ID: "pi_1"}, "again")
	assert.ErrorIs(t, err, ErrRefundFailed)
}
