package dedupe

import (
	"context"
	"time"
)

// SendRecorder is the storage-backend operation SQLStore relies on.
type SendRecorder interface {
	TryAcquireSend(ctx context.Context, key string, at time.Time) (bool, error)
}

// SQLStore persists idempotency keys in the main database so restarts within
// the same hour do not double-send. This is the default production store.
type SQLStore struct {
	backend SendRecorder
}

// NewSQLStore wraps a storage backend's send-record table.
func NewSQLStore(backend SendRecorder) *SQLStore {
	return &SQLStore{backend: backend}
}

func (s *SQLStore) Acquire(ctx context.Context, key string, at time.Time) (bool, error) {
	return s.backend.TryAcquireSend(ctx, key, at)
}
