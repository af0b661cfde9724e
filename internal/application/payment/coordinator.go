package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService       = "payment-coordinator"
	useCaseCreateIntent  = "payment.create_intent"
	useCaseConfirm       = "payment.confirm"
	useCaseRefund        = "payment.refund"
	providerPeer         = "payment_provider"
	endpointCreateIntent = "create_intent"
	endpointConfirm      = "confirm"
	endpointRefund       = "refund"
)

var (
	ErrInvalidAmount       = dompay.ErrInvalidAmount
	ErrProviderError       = dompay.ErrProviderError
	ErrProviderUnavailable = dompay.ErrProviderUnavailable
	ErrRefundFailed        = dompay.ErrRefundFailed
	ErrInvalidCurrency     = errors.New("payment: currency is required")
)

// Config bounds the retry budget for provider calls.
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CallTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CallTimeout:     5 * time.Second,
	}
}

// Coordinator drives a payment provider through create, confirm and refund.
// It knows nothing about products or orders; callers pass amounts in minor units.
type Coordinator struct {
	provider dompay.Provider
	cfg      Config
	in       *application.Instrument
}

func NewCoordinator(provider dompay.Provider, cfg Config, tel observability.Observability) *Coordinator {
	def := DefaultConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &Coordinator{
		provider: provider,
		cfg:      cfg,
		in:       application.NewInstrument(tel, paymentService),
	}
}

// CreateIntent opens a provider transaction. No funds move until Confirm.
func (c *Coordinator) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (_ dompay.IntentHandle, err error) {
	ctx, run := c.in.Begin(ctx, useCaseCreateIntent, "CreateIntent",
		attribute.Int64("payment.amount", amount),
		attribute.String("payment.currency", currency),
	)
	defer func() { run.End(err) }()

	if amount <= 0 {
		run.Fail("AMOUNT_INVALID")
		return dompay.IntentHandle{}, ErrInvalidAmount
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		run.Fail("CURRENCY_INVALID")
		return dompay.IntentHandle{}, ErrInvalidCurrency
	}

	req := dompay.IntentRequest{
		Amount:         amount,
		Currency:       currency,
		Metadata:       metadata,
		IdempotencyKey: uuid.NewString(),
	}
	var intentID string
	attempts, err := c.retry(ctx, endpointCreateIntent, func(ctx context.Context) error {
		id, err := c.provider.CreateIntent(ctx, req)
		if err != nil {
			return err
		}
		intentID = id
		return nil
	})
	run.With(observability.F("attempts", attempts))
	if err != nil {
		run.Fail("PROVIDER_UNAVAILABLE")
		return dompay.IntentHandle{}, fmt.Errorf("%w: create intent after %d attempts: %w", ErrProviderUnavailable, attempts, err)
	}

	run.With(observability.F("intent_id", intentID))
	return dompay.IntentHandle{
		ID:             intentID,
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

// Confirm asks the provider to capture the intent. A decline is a business
// outcome and is never retried; transient errors are retried with backoff
// under one idempotency key, then surfaced as ErrProviderError.
func (c *Coordinator) Confirm(ctx context.Context, handle dompay.IntentHandle, details dompay.Details) (_ dompay.Outcome, err error) {
	ctx, run := c.in.Begin(ctx, useCaseConfirm, "Confirm",
		attribute.String("payment.intent_id", handle.ID),
		attribute.Int64("payment.amount", handle.Amount),
	)
	defer func() { run.End(err) }()

	key := handle.IdempotencyKey + ":confirm"
	var outcome dompay.Outcome
	attempts, err := c.retry(ctx, endpointConfirm, func(ctx context.Context) error {
		status, err := c.provider.Confirm(ctx, handle.ID, details, key)
		if err != nil {
			return err
		}
		outcome, err = dompay.Resolve(status)
		return err
	})
	run.With(observability.F("attempts", attempts), observability.F("intent_id", handle.ID))
	if err != nil {
		run.Fail("PROVIDER_ERROR")
		return "", fmt.Errorf("payment: confirm %s after %d attempts: %w", handle.ID, attempts, err)
	}

	run.Status(strings.ToUpper(string(outcome)))
	run.Span().SetAttributes(attribute.String("payment.outcome", string(outcome)))
	return outcome, nil
}

// Refund voids a succeeded intent, e.g. when stock could not be committed after payment.
func (c *Coordinator) Refund(ctx context.Context, handle dompay.IntentHandle, reason string) (err error) {
	ctx, run := c.in.Begin(ctx, useCaseRefund, "Refund",
		attribute.String("payment.intent_id", handle.ID),
		attribute.String("payment.refund_reason", reason),
	)
	defer func() { run.End(err) }()

	key := handle.IdempotencyKey + ":refund"
	attempts, err := c.retry(ctx, endpointRefund, func(ctx context.Context) error {
		return c.provider.Refund(ctx, handle.ID, reason, key)
	})
	run.With(observability.F("attempts", attempts), observability.F("intent_id", handle.ID))
	if err != nil {
		run.Fail("REFUND_FAILED")
		return fmt.Errorf("%w: %s: %w", ErrRefundFailed, handle.ID, err)
	}
	return nil
}

// retry runs op until it succeeds, fails permanently, or the retry budget is spent.
// Only errors wrapping ErrProviderError are retried.
func (c *Coordinator) retry(ctx context.Context, endpoint string, op func(context.Context) error) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		start := time.Now()
		err := op(callCtx)
		outcome := application.OutcomeSuccess
		if err != nil {
			outcome = application.OutcomeError
		}
		c.in.External(providerPeer, endpoint, outcome, start)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrProviderError):
			c.in.Logger().Warn("payment_provider_retry",
				observability.F("endpoint", endpoint),
				observability.F("attempt", attempts),
				observability.F("error", err.Error()),
			)
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy)
	return attempts, err
}
