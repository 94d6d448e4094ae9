package dedupe_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komi-kou/meta-ads-dashboard/pkg/dedupe"
	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

var tokyo = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		panic(err)
	}
	return loc
}()

func TestDeduplicator_Key(t *testing.T) {
	d := dedupe.New(dedupe.NewMemoryStore(), tokyo)

	// 00:30 UTC on June 2 is 09:30 JST the same day.
	at := time.Date(2025, 6, 2, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, "user-1|daily|2025-06-02|09", d.Key("user-1", model.NotificationDaily, at))

	// 23:30 UTC crosses midnight in JST: date and hour both roll.
	at = time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "user-1|alert|2025-06-03|08", d.Key("user-1", model.NotificationAlert, at))
}

func TestDeduplicator_SameHourBlocks(t *testing.T) {
	d := dedupe.New(dedupe.NewMemoryStore(), tokyo)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 5, 0, 0, tokyo)

	ok, err := d.TryAcquireAt(ctx, "user-1", model.NotificationDaily, at)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same user, type, and hour: blocked even at a different minute.
	ok, err = d.TryAcquireAt(ctx, "user-1", model.NotificationDaily, at.Add(40*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// Next hour bucket opens a fresh slot.
	ok, err = d.TryAcquireAt(ctx, "user-1", model.NotificationDaily, at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeduplicator_IndependentKeys(t *testing.T) {
	d := dedupe.New(dedupe.NewMemoryStore(), tokyo)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo)

	ok, err := d.TryAcquireAt(ctx, "user-1", model.NotificationDaily, at)
	require.NoError(t, err)
	require.True(t, ok)

	// A different type for the same user is a separate slot.
	ok, err = d.TryAcquireAt(ctx, "user-1", model.NotificationAlert, at)
	require.NoError(t, err)
	assert.True(t, ok)

	// A different user for the same type is a separate slot.
	ok, err = d.TryAcquireAt(ctx, "user-2", model.NotificationDaily, at)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeduplicator_ConcurrentSingleWinner(t *testing.T) {
	d := dedupe.New(dedupe.NewMemoryStore(), tokyo)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 12, 0, 0, 0, tokyo)

	const workers = 32
	var wg sync.WaitGroup
	granted := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := d.TryAcquireAt(ctx, "user-1", model.NotificationUpdate, at)
			assert.NoError(t, err)
			granted <- ok
		}()
	}
	wg.Wait()
	close(granted)

	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestBypass_AlwaysGrantsWithoutRecording(t *testing.T) {
	ctx := context.Background()
	store := dedupe.NewMemoryStore()
	normal := dedupe.New(store, tokyo)
	bypass := dedupe.Bypass()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo)

	for i := 0; i < 3; i++ {
		ok, err := bypass.TryAcquireAt(ctx, "user-1", model.NotificationDaily, at)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	// Bypass sends leave no trace: the scheduled path still gets its slot.
	ok, err := normal.TryAcquireAt(ctx, "user-1", model.NotificationDaily, at)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_Prune(t *testing.T) {
	store := dedupe.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Acquire(ctx, "old", now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = store.Acquire(ctx, "new", now)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Prune(now.Add(-24*time.Hour)))

	ok, err := store.Acquire(ctx, "old", now)
	require.NoError(t, err)
	assert.True(t, ok, "pruned key is acquirable again")
}

type failingStore struct{}

func (failingStore) Acquire(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("backend down")
}

func TestDeduplicator_StoreErrorDeniesSend(t *testing.T) {
	d := dedupe.New(failingStore{}, tokyo)

	ok, err := d.TryAcquireAt(context.Background(), "user-1", model.NotificationDaily, time.Now())
	assert.Error(t, err)
	assert.False(t, ok, "a store failure must not grant the send")
}

func TestSQLStore_DelegatesToBackend(t *testing.T) {
	backend := &recordingBackend{granted: true}
	store := dedupe.NewSQLStore(backend)

	ok, err := store.Acquire(context.Background(), "k", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "k", backend.lastKey)
}

type recordingBackend struct {
	granted bool
	lastKey string
}

func (r *recordingBackend) TryAcquireSend(_ context.Context, key string, _ time.Time) (bool, error) {
	r.lastKey = key
	return r.granted, nil
}
