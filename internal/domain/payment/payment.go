package payment

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount = errors.New("payment: amount must be greater than zero")
	// ErrProviderError marks a transient provider or network failure that may be retried.
	ErrProviderError = errors.New("payment: provider error")
	// ErrProviderUnavailable is returned once the retry budget for opening an intent is spent.
	ErrProviderUnavailable = errors.New("payment: provider unavailable")
	ErrRefundFailed        = errors.New("payment: refund failed")
)

// Outcome is the business result of confirming an intent.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDeclined  Outcome = "declined"
)

// ProviderStatus is the raw intent status reported by a provider.
type ProviderStatus string

const (
	StatusSucceeded             ProviderStatus = "succeeded"
	StatusRequiresPaymentMethod ProviderStatus = "requires_payment_method"
	StatusDeclined              ProviderStatus = "declined"
	StatusCanceled              ProviderStatus = "canceled"
	StatusProcessing            ProviderStatus = "processing"
	StatusRequiresAction        ProviderStatus = "requires_action"
)

// Resolve maps a provider status to an Outcome. Statuses that are neither final
// success nor a decline are reported as ErrProviderError so callers may retry.
func Resolve(s ProviderStatus) (Outcome, error) {
	switch s {
	case StatusSucceeded:
		return OutcomeSucceeded, nil
	case StatusRequiresPaymentMethod, StatusDeclined, StatusCanceled:
		return OutcomeDeclined, nil
	default:
		return "", fmt.Errorf("%w: intent status %q", ErrProviderError, s)
	}
}

// IntentHandle identifies an open provider transaction. No funds have moved yet.
type IntentHandle struct {
	ID             string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// Details carries the customer's payment credentials, typically a provider token.
type Details struct {
	Token string
}

type IntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Provider is the outbound port to a payment processor.
// Implementations wrap ErrProviderError for anything worth retrying.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (string, error)
	Confirm(ctx context.Context, intentID string, details Details, idempotencyKey string) (ProviderStatus, error)
	Refund(ctx context.Context, intentID, reason, idempotencyKey string) error
}
