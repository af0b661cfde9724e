package idempotency

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidKey = errors.New("idempotency: key is required")

const (
	// DefaultTTL is how long a completed result is replayed.
	DefaultTTL = 24 * time.Hour
	// DefaultClaimTTL bounds a pending claim whose owner never completed or abandoned it.
	DefaultClaimTTL = 15 * time.Minute
)

type State string

const (
	// StateClaimed means the caller now owns the key and must Complete or Abandon it.
	StateClaimed State = "claimed"
	// StateInFlight means another request holds the key.
	StateInFlight State = "in_flight"
	// StateCompleted means a result was stored; Claim.ResultID names it.
	StateCompleted State = "completed"
)

type Claim struct {
	State    State
	ResultID string
}

// Store remembers which request keys have been processed and what they produced.
type Store interface {
	// Claim holds key for ttl. Complete replaces the hold with the result and its own ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key, resultID string, ttl time.Duration) error
	Abandon(ctx context.Context, key string) error
}
