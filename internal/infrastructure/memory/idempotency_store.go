package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/idempotency"
)

type idemRecord struct {
	resultID  string
	done      bool
	expiresAt time.Time
}

// idemSweepEvery spaces out full scans for expired keys.
const idemSweepEvery = time.Minute

// IdempotencyStore keeps request keys in process memory. Claim evicts expired keys
// at most once per idemSweepEvery.
type IdempotencyStore struct {
	mu        sync.Mutex
	records   map[string]idemRecord
	now       func() time.Time
	nextSweep time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{records: make(map[string]idemRecord), now: time.Now}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (domain.Claim, error) {
	_ = ctx
	if key == "" {
		return domain.Claim{}, domain.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if rec, ok := s.records[key]; ok && now.Before(rec.expiresAt) {
		if rec.done {
			return domain.Claim{State: domain.StateCompleted, ResultID: rec.resultID}, nil
		}
		return domain.Claim{State: domain.StateInFlight}, nil
	}
	s.records[key] = idemRecord{expiresAt: now.Add(ttl)}
	return domain.Claim{State: domain.StateClaimed}, nil
}

// sweep drops expired records. Callers hold s.mu.
func (s *IdempotencyStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(idemSweepEvery)
	for key, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, key)
		}
	}
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, resultID string, ttl time.Duration) error {
	_ = ctx
	if key == "" {
		return domain.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = idemRecord{resultID: resultID, done: true, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *IdempotencyStore) Abandon(ctx context.Context, key string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}
