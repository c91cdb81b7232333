package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger remembers payment references whose confirmation has been applied,
// so redelivered webhooks can be acknowledged without touching the orders.
type Ledger interface {
	// MarkProcessed returns true if reference was newly recorded.
	MarkProcessed(ctx context.Context, reference string) (bool, error)
	IsProcessed(ctx context.Context, reference string) (bool, error)
}

const defaultKeyPrefix = "tabletap:payment:processed:"

// RedisLedger shares processed references between instances.
type RedisLedger struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, keyPrefix: defaultKeyPrefix, ttl: ttl}
}

func (l *RedisLedger) MarkProcessed(ctx context.Context, reference string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.keyPrefix+reference, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark payment %s processed: %w", reference, err)
	}
	return ok, nil
}

func (l *RedisLedger) IsProcessed(ctx context.Context, reference string) (bool, error) {
	n, err := l.client.Exists(ctx, l.keyPrefix+reference).Result()
	if err != nil {
		return false, fmt.Errorf("check payment %s: %w", reference, err)
	}
	return n > 0, nil
}

// MemoryLedger is the single-instance Ledger.
type MemoryLedger struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLedger) MarkProcessed(_ context.Context, reference string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict()
	if _, ok := l.seen[reference]; ok {
		return false, nil
	}
	l.seen[reference] = l.now()
	return true, nil
}

func (l *MemoryLedger) IsProcessed(_ context.Context, reference string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict()
	_, ok := l.seen[reference]
	return ok, nil
}

func (l *MemoryLedger) evict() {
	if l.ttl <= 0 {
		return
	}
	cutoff := l.now().Add(-l.ttl)
	for ref, at := range l.seen {
		if at.Before(cutoff) {
			delete(l.seen, ref)
		}
	}
}

var (
	_ Ledger  = (*RedisLedger)(nil)
	_ Ledger  = (*MemoryLedger)(nil)
	_ Gateway = (*ManualGateway)(nil)
	_ Gateway = (*HTTPGateway)(nil)
)
