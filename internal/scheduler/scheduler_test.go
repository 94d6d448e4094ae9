package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komi-kou/meta-ads-dashboard/internal/scheduler"
)

var tokyo = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		panic(err)
	}
	return loc
}()

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextTick(t *testing.T) {
	s := scheduler.New(tokyo, discardLogger())

	// Mid-hour rolls to the next hour boundary.
	now := time.Date(2025, 6, 2, 8, 30, 15, 0, tokyo)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo), s.NextTick(now))

	// Exactly on the boundary still advances: the current tick already ran.
	now = time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, tokyo), s.NextTick(now))

	// Late evening crosses the day boundary.
	now = time.Date(2025, 6, 2, 23, 45, 0, 0, tokyo)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, tokyo), s.NextTick(now))

	// A UTC instant is bucketed by its local hour.
	now = time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC) // 08:30 JST next day
	assert.Equal(t, time.Date(2025, 6, 3, 9, 0, 0, 0, tokyo), s.NextTick(now).In(tokyo))
}

func TestDue(t *testing.T) {
	s := scheduler.New(tokyo, discardLogger())
	noop := func(context.Context) error { return nil }
	s.Add(scheduler.Job{Name: "daily", Hours: []int{9}, Run: noop})
	s.Add(scheduler.Job{Name: "update", Hours: []int{12, 15, 17, 19}, Run: noop})
	s.Add(scheduler.Job{Name: "alert", Hours: []int{9, 12, 15, 17, 19}, Run: noop})

	names := func(jobs []scheduler.Job) []string {
		out := make([]string, len(jobs))
		for i, j := range jobs {
			out[i] = j.Name
		}
		return out
	}

	assert.Equal(t, []string{"daily", "alert"}, names(s.Due(9)))
	assert.Equal(t, []string{"update", "alert"}, names(s.Due(12)))
	assert.Empty(t, s.Due(10))
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := scheduler.New(tokyo, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
