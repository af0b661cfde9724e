package redisx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/idempotency"
)

// KeyIdemCheckout maps a checkout request key to the order it produced:
// idem:checkout:{user_id}:{key} -> "pending" | "done:{order_id}"
const KeyIdemCheckout = "idem:checkout:%s"

const (
	valuePending = "pending"
	donePrefix   = "done:"
)

// IdempotencyStore keeps request keys in Redis so replays are detected across replicas.
type IdempotencyStore struct {
	rdb redis.UniversalClient
}

func NewIdempotencyStore(rdb redis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (domain.Claim, error) {
	if key == "" {
		return domain.Claim{}, domain.ErrInvalidKey
	}
	k := fmt.Sprintf(KeyIdemCheckout, key)

	// A key that expires between SETNX and GET is claimed on the second pass.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, k, valuePending, ttl).Result()
		if err != nil {
			return domain.Claim{}, fmt.Errorf("redisx: claim %s: %w", key, err)
		}
		if ok {
			return domain.Claim{State: domain.StateClaimed}, nil
		}

		v, err := s.rdb.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return domain.Claim{}, fmt.Errorf("redisx: read %s: %w", key, err)
		}
		return decodeClaim(v), nil
	}
	return domain.Claim{State: domain.StateInFlight}, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, resultID string, ttl time.Duration) error {
	if key == "" {
		return domain.ErrInvalidKey
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, key), donePrefix+resultID, ttl).Err(); err != nil {
		return fmt.Errorf("redisx: complete %s: %w", key, err)
	}
	return nil
}

func (s *IdempotencyStore) Abandon(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, key)).Err(); err != nil {
		return fmt.Errorf("redisx: abandon %s: %w", key, err)
	}
	return nil
}

func decodeClaim(v string) domain.Claim {
	if id, ok := strings.CutPrefix(v, donePrefix); ok {
		return domain.Claim{State: domain.StateCompleted, ResultID: id}
	}
	return domain.Claim{State: domain.StateInFlight}
}
