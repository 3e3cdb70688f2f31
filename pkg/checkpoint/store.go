// Package checkpoint persists pagination resume tokens in Redis. The
// stream engine itself owns no durable state; callers that want to
// survive a process restart save the stream's resume token here and
// hand it back on the next run.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var checkpointOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gmail_checkpoint_ops_total",
	Help: "Total checkpoint store operations by type",
}, []string{"operation"})

// ErrNotFound indicates no checkpoint exists under the requested name.
var ErrNotFound = errors.New("checkpoint not found")

const keyPrefix = "gmail:checkpoint:"

// Store persists named resume tokens in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a checkpoint store backed by Redis.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

// Save stores the resume token under name. An empty token is a valid
// checkpoint meaning "start from the beginning". ttl of zero keeps the
// checkpoint indefinitely.
func (s *Store) Save(ctx context.Context, name, token string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, keyPrefix+name, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	checkpointOpsTotal.WithLabelValues("save").Inc()
	return nil
}

// Load retrieves the resume token stored under name. Returns
// ErrNotFound if no checkpoint exists.
func (s *Store) Load(ctx context.Context, name string) (string, error) {
	token, err := s.redis.Get(ctx, keyPrefix+name).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	checkpointOpsTotal.WithLabelValues("load").Inc()
	return token, nil
}

// Delete removes the checkpoint stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.redis.Del(ctx, keyPrefix+name).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	checkpointOpsTotal.WithLabelValues("delete").Inc()
	return nil
}
