package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/agirails/actp-kernel-sub001/internal/feesink/models"
)

// RedisLedger keeps the withdrawal ledger in a Redis hash so multiple
// replicas of the sink operator surface share one daily counter. Execute
// uses WATCH so concurrent mutations retry instead of clobbering each
// other.
type RedisLedger struct {
	client *redis.Client
	key    string
}

func NewRedisLedger(client *redis.Client, key string) *RedisLedger {
	if key == "" {
		key = "feesink:ledger"
	}
	return &RedisLedger{client: client, key: key}
}

const (
	fieldReceived     = "cumulative_received"
	fieldSpent        = "cumulative_spent"
	fieldDayWithdrawn = "day_withdrawn"
	fieldDay          = "day"
)

func (s *RedisLedger) Get(ctx context.Context) (*models.WithdrawalLedger, error) {
	return s.load(ctx, s.client)
}

func (s *RedisLedger) Execute(ctx context.Context, fn func(ledger *models.WithdrawalLedger) error) error {
	// Optimistic transaction: WATCH the key, run fn on a snapshot, write
	// back inside MULTI/EXEC. A concurrent writer aborts EXEC and we retry.
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			ledger, err := s.load(ctx, tx)
			if err != nil {
				return err
			}
			if err := fn(ledger); err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, s.key,
					fieldReceived, ledger.CumulativeReceived,
					fieldSpent, ledger.CumulativeSpent,
					fieldDayWithdrawn, ledger.DayWithdrawn,
					fieldDay, ledger.Day,
				)
				return nil
			})
			return err
		}, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("ledger update contention: retries exhausted")
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (s *RedisLedger) load(ctx context.Context, c hashGetter) (*models.WithdrawalLedger, error) {
	values, err := c.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	ledger := &models.WithdrawalLedger{Day: values[fieldDay]}
	for field, dst := range map[string]*int64{
		fieldReceived:     &ledger.CumulativeReceived,
		fieldSpent:        &ledger.CumulativeSpent,
		fieldDayWithdrawn: &ledger.DayWithdrawn,
	} {
		raw := values[field]
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt ledger field %s: %w", field, err)
		}
		*dst = v
	}
	return ledger, nil
}
