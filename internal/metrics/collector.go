package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Store is the subset of the database used for gauge refreshes
type Store interface {
	CountActiveUsers() (int, error)
	CountActivities() (int, error)
	CountActivitiesNeedingZones() (int, error)
	CountActivitiesNeedingSegments() (int, error)
	CountTrophies() (int, error)
}

// StartStoreStatsCollector starts a background goroutine that periodically
// refreshes the store gauges from the database
func StartStoreStatsCollector(ctx context.Context, store Store, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	collectStoreStats(store, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("store stats collector stopping")
			return
		case <-ticker.C:
			collectStoreStats(store, logger)
		}
	}
}

func collectStoreStats(store Store, logger *slog.Logger) {
	if n, err := store.CountActiveUsers(); err != nil {
		logger.Error("failed to count active users", "error", err)
	} else {
		StoreActiveUsers.Set(float64(n))
	}

	if n, err := store.CountActivities(); err != nil {
		logger.Error("failed to count activities", "error", err)
	} else {
		StoreActivities.Set(float64(n))
	}

	if n, err := store.CountActivitiesNeedingZones(); err != nil {
		logger.Error("failed to count activities awaiting zones", "error", err)
	} else {
		StoreActivitiesAwaitingZones.Set(float64(n))
	}

	if n, err := store.CountActivitiesNeedingSegments(); err != nil {
		logger.Error("failed to count activities awaiting segments", "error", err)
	} else {
		StoreActivitiesAwaitingSegments.Set(float64(n))
	}

	if n, err := store.CountTrophies(); err != nil {
		logger.Error("failed to count trophies", "error", err)
	} else {
		StoreTrophies.Set(float64(n))
	}
}
