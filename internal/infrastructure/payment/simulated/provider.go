package simulated

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

const (
	// TokenDecline is always declined.
	TokenDecline = "tok_decline"
	// TokenSucceed always succeeds.
	TokenSucceed = "tok_success"
	// TokenFlaky fails transiently once per intent before succeeding.
	TokenFlaky = "tok_flaky"

	DefaultSuccessRate = 0.7
)

type intent struct {
	amount   int64
	status   dompay.ProviderStatus
	refunded bool
	flaked   bool
}

// Provider simulates a payment processor in process. Other tokens succeed with successRate.
// Confirm and refund honor idempotency keys.
type Provider struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	intents     map[string]*intent
	confirmed   map[string]dompay.ProviderStatus
}

func New(successRate float64) *Provider {
	if successRate < 0 || successRate > 1 {
		successRate = DefaultSuccessRate
	}
	return &Provider{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
		intents:     make(map[string]*intent),
		confirmed:   make(map[string]dompay.ProviderStatus),
	}
}

func (p *Provider) CreateIntent(ctx context.Context, req dompay.IntentRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", dompay.ErrProviderError, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id := "pi_" + uuid.NewString()
	p.intents[id] = &intent{amount: req.Amount, status: dompay.StatusRequiresPaymentMethod}
	return id, nil
}

func (p *Provider) Confirm(ctx context.Context, intentID string, details dompay.Details, idempotencyKey string) (dompay.ProviderStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", dompay.ErrProviderError, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if status, ok := p.confirmed[idempotencyKey]; ok && idempotencyKey != "" {
		return status, nil
	}
	in, ok := p.intents[intentID]
	if !ok {
		return "", fmt.Errorf("simulated provider: unknown intent %s", intentID)
	}

	switch details.Token {
	case TokenDecline:
		in.status = dompay.StatusDeclined
	case TokenSucceed:
		in.status = dompay.StatusSucceeded
	case TokenFlaky:
		if !in.flaked {
			in.flaked = true
			return "", fmt.Errorf("%w: simulated timeout", dompay.ErrProviderError)
		}
		in.status = dompay.StatusSucceeded
	default:
		if p.random.Float64() <= p.successRate {
			in.status = dompay.StatusSucceeded
		} else {
			in.status = dompay.StatusRequiresPaymentMethod
		}
	}
	if idempotencyKey != "" {
		p.confirmed[idempotencyKey] = in.status
	}
	return in.status, nil
}

func (p *Provider) Refund(ctx context.Context, intentID, _, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", dompay.ErrProviderError, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	in, ok := p.intents[intentID]
	if !ok {
		return fmt.Errorf("simulated provider: unknown intent %s", intentID)
	}
	if in.status != dompay.StatusSucceeded {
		return fmt.Errorf("simulated provider: intent %s is %s, nothing to refund", intentID, in.status)
	}
	in.refunded = true
	return nil
}

// Refunded reports whether an intent was refunded.
func (p *Provider) Refunded(intentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.intents[intentID]
	return ok && in.refunded
}

func (p *Provider) SuccessRate() float64 { return p.successRate }
