package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// OrderLockKey builds redis keys for purchase order critical sections.
func OrderLockKey(orderID int64) string {
	return fmt.Sprintf("purchase:order:%d:lock", orderID)
}

// ErrOrderLocked indicates another transition holds the order lock.
var ErrOrderLocked = errors.New("order is being modified by another request")

// OrderLocker serialises status transitions per order across processes.
type OrderLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

// NewOrderLocker constructs an OrderLocker on top of a redis client.
func NewOrderLocker(client *redis.Client, ttl time.Duration) *OrderLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &OrderLocker{locker: redislock.New(client), ttl: ttl}
}

// Acquire obtains the per-order lock and returns a release func. A nil
// locker degrades to a no-op so unit tests can skip redis entirely.
func (l *OrderLocker) Acquire(ctx context.Context, orderID int64) (func(), error) {
	if l == nil || l.locker == nil {
		return func() {}, nil
	}
	lock, err := l.locker.Obtain(ctx, OrderLockKey(orderID), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrOrderLocked
	}
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
