// Package dedupe guarantees at-most-one notification per user, type, and
// calendar hour, regardless of how many trigger paths race on the send.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

// Store persists idempotency keys with atomic check-and-set semantics:
// under concurrent callers racing on one key, exactly one Acquire returns
// true.
type Store interface {
	Acquire(ctx context.Context, key string, at time.Time) (bool, error)
}

// Deduplicator gates outbound notifications on an hourly idempotency key.
type Deduplicator struct {
	store  Store
	loc    *time.Location
	now    func() time.Time
	bypass bool
}

// New creates a deduplicator bucketing hours in the given timezone.
// A nil location defaults to UTC.
func New(store Store, loc *time.Location) *Deduplicator {
	if loc == nil {
		loc = time.UTC
	}
	return &Deduplicator{store: store, loc: loc, now: time.Now}
}

// Bypass returns a deduplicator that always grants without consulting or
// mutating the store. It exists for manual test sends only; scheduled paths
// must never use it.
func Bypass() *Deduplicator {
	return &Deduplicator{loc: time.UTC, now: time.Now, bypass: true}
}

// Key builds the idempotency key for a notification: user, type, date, and
// hour in the deduplicator's timezone.
func (d *Deduplicator) Key(userID string, typ model.NotificationType, at time.Time) string {
	local := at.In(d.loc)
	return fmt.Sprintf("%s|%s|%s|%02d", userID, typ, local.Format("2006-01-02"), local.Hour())
}

// TryAcquire reports whether the caller may send this notification class for
// the user in the current hour bucket. The first caller per bucket gets
// true; everyone else gets false until the hour rolls over.
func (d *Deduplicator) TryAcquire(ctx context.Context, userID string, typ model.NotificationType) (bool, error) {
	if d.bypass {
		return true, nil
	}
	return d.TryAcquireAt(ctx, userID, typ, d.now())
}

// TryAcquireAt is TryAcquire at an explicit instant.
func (d *Deduplicator) TryAcquireAt(ctx context.Context, userID string, typ model.NotificationType, at time.Time) (bool, error) {
	if d.bypass {
		return true, nil
	}
	ok, err := d.store.Acquire(ctx, d.Key(userID, typ, at), at.UTC())
	if err != nil {
		return false, fmt.Errorf("acquire notification slot: %w", err)
	}
	return ok, nil
}
