package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
)

const attemptIndexKey = "storefront:attempts"

var _ repository.AttemptStore = (*AttemptStore)(nil)

// AttemptStore mirrors purchase attempts as JSON, one key per plan.
type AttemptStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewAttemptStore(client RedisClient, ttl time.Duration) *AttemptStore {
	return &AttemptStore{client: client, ttl: ttl}
}

func (s *AttemptStore) attemptKey(planKey string) string {
	return fmt.Sprintf("storefront:attempt:%s", planKey)
}

func (s *AttemptStore) Save(ctx context.Context, a model.PurchaseAttempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.attemptKey(a.PlanKey), data, s.ttl); err != nil {
		return err
	}
	return s.client.SAdd(ctx, attemptIndexKey, a.PlanKey)
}

// List returns every mirrored attempt that has not expired, ordered by plan key.
func (s *AttemptStore) List(ctx context.Context) ([]model.PurchaseAttempt, error) {
	keys, err := s.client.SMembers(ctx, attemptIndexKey)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	out := make([]model.PurchaseAttempt, 0, len(keys))
	for _, k := range keys {
		raw, err := s.client.Get(ctx, s.attemptKey(k))
		if errors.Is(err, Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var a model.PurchaseAttempt
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode attempt %s: %w", k, err)
		}
		out = append(out, a)
	}
	return out, nil
}
