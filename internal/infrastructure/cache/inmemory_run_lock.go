package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/crmsync/internal/domain/integration"
)

// InMemoryRunLock implements RunLock with an in-process map.
// This is suitable for single-instance deployments and testing.
type InMemoryRunLock struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewInMemoryRunLock creates an empty lock table
func NewInMemoryRunLock() *InMemoryRunLock {
	return &InMemoryRunLock{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

// TryAcquire takes key for ttl. It returns false when the key is held and
// not yet expired. A non-positive ttl never expires.
func (l *InMemoryRunLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiresAt, held := l.locks[key]; held && (expiresAt.IsZero() || now.Before(expiresAt)) {
		return false, nil
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	l.locks[key] = expiresAt
	return true, nil
}

// Release frees key. Releasing a free key is a no-op.
func (l *InMemoryRunLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return nil
}

// Close implements io.Closer
func (l *InMemoryRunLock) Close() error {
	return nil
}

var _ integration.RunLock = (*InMemoryRunLock)(nil)
