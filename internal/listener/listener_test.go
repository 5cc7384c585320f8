package listener

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/albapepper/burrito-league/internal/cache"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateDashboard() int {
	c.calls++
	return 1
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandleInvalidatesOnInsert(t *testing.T) {
	inv := &countingInvalidator{}
	Handle(`{"poll_run_id":"b3c1","source":"scheduled","inserted":4,"ts":1768910400}`, inv, discard())
	assert.Equal(t, 1, inv.calls)
}

func TestHandleKeepsCacheWhenNothingAdmitted(t *testing.T) {
	inv := &countingInvalidator{}
	Handle(`{"poll_run_id":"b3c1","source":"scheduled","inserted":0,"ts":1768910400}`, inv, discard())
	assert.Zero(t, inv.calls)
}

func TestHandleMalformedPayloadInvalidates(t *testing.T) {
	inv := &countingInvalidator{}
	Handle(`not json`, inv, discard())
	assert.Equal(t, 1, inv.calls)
}

type cacheInvalidator struct{ c *cache.Cache }

func (ci cacheInvalidator) InvalidateDashboard() int { return ci.c.DeletePrefix(cache.PrefixDashboard) }

func TestHandleDropsDashboardKeys(t *testing.T) {
	c := cache.New(true)
	defer c.Close()

	c.Set(cache.PrefixDashboard+"chapters", []byte(`[]`), cache.TTLDashboard)
	c.Set("coordinates", []byte(`[]`), cache.TTLCoordinates)

	Handle(`{"poll_run_id":"b3c1","source":"manual","inserted":2}`, cacheInvalidator{c}, discard())

	_, _, ok := c.Get(cache.PrefixDashboard + "chapters")
	assert.False(t, ok)
	_, _, ok = c.Get("coordinates")
	assert.True(t, ok)
}

func TestReconnectBackoffResetsAfterConnect(t *testing.T) {
	var waits []time.Duration
	rc := reconnector{
		initial: 5 * time.Second,
		max:     30 * time.Second,
		after: func(d time.Duration) <-chan time.Time {
			waits = append(waits, d)
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
		logger: discard(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := 0
	dropped := errors.New("connection reset")
	rc.run(ctx, func(_ context.Context, connected func()) error {
		sessions++
		switch sessions {
		case 3:
			connected()
		case 5:
			cancel()
		}
		return dropped
	})

	assert.Equal(t, 5, sessions)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 5 * time.Second, 10 * time.Second}, waits)
}

func TestReconnectBackoffIsCapped(t *testing.T) {
	var waits []time.Duration
	rc := reconnector{
		initial: 5 * time.Second,
		max:     30 * time.Second,
		after: func(d time.Duration) <-chan time.Time {
			waits = append(waits, d)
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
		logger: discard(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := 0
	rc.run(ctx, func(context.Context, func()) error {
		sessions++
		if sessions == 6 {
			cancel()
		}
		return errors.New("connect: refused")
	})

	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}, waits)
}
