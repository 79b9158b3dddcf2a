package api

import (
	"context"
	"log/slog"
)

// WatchUpdates logs each status transition and each inbox import batch until ctx ends.
// inbox may be nil when no inbox directory is configured.
func WatchUpdates(ctx context.Context, logger *slog.Logger, monitor *StatusMonitor, inbox *InboxManager, photoCount func() int) {
	var inboxUpdated <-chan bool
	if inbox != nil {
		inboxUpdated = inbox.Updated
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-monitor.Updated:
			latest := monitor.Latest(ctx)
			logger.Info("remote status changed", "status", latest.Status, "driver", latest.Driver)
		case <-inboxUpdated:
			logger.Info("inbox imported photos", "photos", photoCount())
		}
	}
}
