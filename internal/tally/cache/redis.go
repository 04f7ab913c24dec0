package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

// DefaultTTL bounds how long a summary survives a missed invalidation.
const DefaultTTL = 10 * time.Minute

// Redis stores summaries as JSON under tally:budget:<id>:summary and the
// budget's version under tally:budget:<id>:version.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client, opts.TTL), nil
}

// NewRedisWithClient wraps an existing client. A non-positive ttl uses
// DefaultTTL.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func summaryKey(budgetID string) string {
	return "tally:budget:" + budgetID + ":summary"
}

func versionKey(budgetID string) string {
	return "tally:budget:" + budgetID + ":version"
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, c getter, budgetID string) (int64, error) {
	v, err := c.Get(ctx, versionKey(budgetID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (r *Redis) Version(ctx context.Context, budgetID string) (int64, error) {
	return readVersion(ctx, r.client, budgetID)
}

func (r *Redis) Get(ctx context.Context, budgetID string) (domain.BudgetSummary, bool, error) {
	data, err := r.client.Get(ctx, summaryKey(budgetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BudgetSummary{}, false, nil
	}
	if err != nil {
		return domain.BudgetSummary{}, false, err
	}

	var s domain.BudgetSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.BudgetSummary{}, false, fmt.Errorf("decode summary %s: %w", budgetID, err)
	}
	return s, true, nil
}

func (r *Redis) Set(ctx context.Context, s domain.BudgetSummary, version int64) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, s.BudgetID)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, summaryKey(s.BudgetID), data, r.ttl)
			return nil
		})
		return err
	}, versionKey(s.BudgetID))
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

// Invalidate drops the summaries and bumps the versions of budgetIDs. A
// version outlives the summaries it guards by one TTL.
func (r *Redis) Invalidate(ctx context.Context, budgetIDs ...string) error {
	if len(budgetIDs) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range budgetIDs {
			p.Incr(ctx, versionKey(id))
			p.Expire(ctx, versionKey(id), 2*r.ttl)
			p.Del(ctx, summaryKey(id))
		}
		return nil
	})
	return err
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
