// Package listener provides a Postgres LISTEN/NOTIFY consumer that keeps
// the API cache in step with poll runs. It holds a dedicated pgx connection
// (not from the pool) listening on the poll_completed channel, so a run
// triggered from the CLI or another instance still invalidates this
// process's dashboard payloads.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/burrito-league/internal/poll"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// PollCompletedEvent is the JSON payload from pg_notify('poll_completed', ...).
type PollCompletedEvent struct {
	PollRunID string `json:"poll_run_id"`
	Source    string `json:"source"`
	Inserted  int    `json:"inserted"`
	Timestamp int64  `json:"ts"`
}

// Invalidator drops cached payloads derived from the snapshot log.
type Invalidator interface {
	InvalidateDashboard() int
}

// Start opens a dedicated connection and listens on the poll_completed
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, inv Invalidator, logger *slog.Logger) {
	rc := reconnector{initial: reconnectBackoff, max: maxReconnect, after: time.After, logger: logger}
	rc.run(ctx, func(ctx context.Context, connected func()) error {
		return listenLoop(ctx, dbURL, inv, logger, connected)
	})
}

// reconnector reruns a session with exponential backoff. The backoff
// returns to initial once a session reports it connected.
type reconnector struct {
	initial, max time.Duration
	after        func(time.Duration) <-chan time.Time
	logger       *slog.Logger
}

func (rc reconnector) run(ctx context.Context, session func(ctx context.Context, connected func()) error) {
	backoff := rc.initial
	for {
		err := session(ctx, func() { backoff = rc.initial })
		if ctx.Err() != nil {
			rc.logger.Info("Poll listener stopped (context cancelled)")
			return
		}

		rc.logger.Error("Poll listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-rc.after(backoff):
			backoff = min(backoff*2, rc.max)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, inv Invalidator, logger *slog.Logger, connected func()) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+poll.NotifyChannel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", poll.NotifyChannel, err)
	}
	connected()
	logger.Info("Poll listener connected", "channel", poll.NotifyChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		Handle(notification.Payload, inv, logger)
	}
}

// Handle processes one notification payload. A payload that does not parse
// still invalidates; the channel itself says a run finished.
func Handle(payload string, inv Invalidator, logger *slog.Logger) {
	var event PollCompletedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		logger.Warn("Failed to parse poll event", "payload", payload, "error", err)
	}

	if event.PollRunID != "" && event.Inserted == 0 {
		logger.Debug("Poll run admitted nothing, cache kept", "poll_run_id", event.PollRunID)
		return
	}

	n := inv.InvalidateDashboard()
	logger.Info("Poll event received",
		"poll_run_id", event.PollRunID,
		"source", event.Source,
		"inserted", event.Inserted,
		"invalidated", n)
}
