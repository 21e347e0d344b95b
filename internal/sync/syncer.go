package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strava-club-sync/internal/database"
	"strava-club-sync/internal/metrics"
	"strava-club-sync/internal/strava"
)

// Syncer pulls activities from Strava into the local store and runs the
// enrichment flows for each user
type Syncer struct {
	db     *database.DB
	client *strava.Client
	tokens *TokenManager
	logger *slog.Logger
}

// SyncStats summarizes one full sync cycle
type SyncStats struct {
	TotalUsers    int
	Successful    int
	Failed        int
	NewActivities int
	Errors        []string
}

// NewSyncer creates a syncer
func NewSyncer(db *database.DB, client *strava.Client) *Syncer {
	return &Syncer{
		db:     db,
		client: client,
		tokens: NewTokenManager(db, client),
		logger: slog.Default(),
	}
}

// SyncUser syncs a single user: ensures a valid token, fetches activities
// past the stored watermark, saves them, and runs the enrichment flows.
// Returns the number of new activities stored. The sync outcome is recorded
// on the user row either way.
func (s *Syncer) SyncUser(ctx context.Context, userID int64) (int, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, fmt.Errorf("user %d not found", userID)
	}
	if !user.IsActive {
		return 0, fmt.Errorf("user %d is not active", userID)
	}

	newCount, err := s.syncUserActivities(ctx, user)

	now := time.Now().Unix()
	if err != nil {
		msg := err.Error()
		if stateErr := s.db.UpdateUserSyncState(user.ID, now, &msg); stateErr != nil {
			s.logger.Error("failed to record sync error", "user_id", user.ID, "error", stateErr)
		}
		metrics.SyncUsersTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return newCount, err
	}

	if stateErr := s.db.UpdateUserSyncState(user.ID, now, nil); stateErr != nil {
		s.logger.Error("failed to record sync state", "user_id", user.ID, "error", stateErr)
	}
	metrics.SyncUsersTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return newCount, nil
}

func (s *Syncer) syncUserActivities(ctx context.Context, user *database.User) (int, error) {
	token, err := s.tokens.AccessToken(ctx, user)
	if err != nil {
		return 0, err
	}

	watermark, err := s.db.LatestActivityStart(user.ID)
	if err != nil {
		return 0, err
	}

	summaries, err := s.client.FetchActivitiesSince(ctx, token, watermark)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch activities for user %d: %w", user.ID, err)
	}

	activities := make([]*database.Activity, 0, len(summaries))
	for _, summary := range summaries {
		a, err := toStoredActivity(summary)
		if err != nil {
			s.logger.Warn("skipping malformed activity", "user_id", user.ID, "activity_id", summary.ID, "error", err)
			continue
		}
		activities = append(activities, a)
	}

	newCount, err := s.db.SaveActivities(user.ID, activities)
	if err != nil {
		return 0, err
	}
	if newCount > 0 {
		metrics.NewActivitiesTotal.Add(float64(newCount))
	}

	s.logger.Info("synced activities",
		"user_id", user.ID,
		"fetched", len(summaries),
		"new", newCount)

	// Enrichment failures never fail the sync; a rate limit just stops the
	// remaining enrichment until the next cycle
	if err := s.syncEnrichment(ctx, user, token); err != nil {
		if strava.IsTooManyRequests(err) {
			s.logger.Warn("rate limited during enrichment, deferring to next cycle", "user_id", user.ID)
		} else {
			s.logger.Error("enrichment failed", "user_id", user.ID, "error", err)
		}
	}

	return newCount, nil
}

// SyncAll syncs every active user in sequence and records the run. A rate
// limit response aborts the remainder of the cycle; everything left over is
// picked up by the next scheduled run via the per-user watermarks.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncStats, error) {
	start := time.Now()

	runID, err := s.db.StartSyncRun(database.JobTypeActivitySync)
	if err != nil {
		return nil, err
	}

	users, err := s.db.ListActiveUsers()
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{TotalUsers: len(users)}
	rateLimited := false

	for _, user := range users {
		if ctx.Err() != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("cycle aborted: %v", ctx.Err()))
			break
		}

		newCount, err := s.SyncUser(ctx, user.ID)
		stats.NewActivities += newCount

		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("user %d: %v", user.ID, err))
			s.logger.Error("user sync failed", "user_id", user.ID, "error", err)

			if strava.IsTooManyRequests(err) {
				rateLimited = true
				s.logger.Warn("rate limited, aborting sync cycle", "users_remaining", stats.TotalUsers-stats.Successful-stats.Failed)
				break
			}
			continue
		}
		stats.Successful++
	}

	if err := s.db.FinishSyncRun(runID, &database.SyncRunStats{
		UsersTotal:     stats.TotalUsers,
		UsersSucceeded: stats.Successful,
		UsersFailed:    stats.Failed,
		NewActivities:  stats.NewActivities,
		Errors:         stats.Errors,
	}); err != nil {
		s.logger.Error("failed to record sync run", "run_id", runID, "error", err)
	}

	result := metrics.ResultSuccess
	if stats.Failed > 0 || rateLimited {
		result = metrics.ResultFailure
	}
	metrics.SyncRunsTotal.WithLabelValues(metrics.JobTypeActivitySync, result).Inc()
	metrics.SyncRunDuration.WithLabelValues(metrics.JobTypeActivitySync).Observe(time.Since(start).Seconds())

	s.logger.Info("sync cycle complete",
		"users_total", stats.TotalUsers,
		"succeeded", stats.Successful,
		"failed", stats.Failed,
		"new_activities", stats.NewActivities,
		"duration_ms", time.Since(start).Milliseconds())

	return stats, nil
}

// toStoredActivity converts an API summary into a storable activity
func toStoredActivity(summary *strava.ActivitySummary) (*database.Activity, error) {
	startTime, err := summary.StartTime()
	if err != nil {
		return nil, err
	}

	a := &database.Activity{
		ActivityID:         summary.ID,
		Name:               summary.Name,
		Type:               summary.Type,
		StartDate:          startTime.Unix(),
		Distance:           summary.Distance,
		MovingTime:         summary.MovingTime,
		ElapsedTime:        summary.ElapsedTime,
		TotalElevationGain: summary.TotalElevationGain,
		AverageSpeed:       summary.AverageSpeed,
		MaxSpeed:           summary.MaxSpeed,
		AverageHeartrate:   summary.AverageHeartrate,
		MaxHeartrate:       summary.MaxHeartrate,
		Calories:           summary.Calories,
		KudosCount:         summary.KudosCount,
		Visibility:         summary.Visibility,
	}
	if a.Visibility == "" {
		a.Visibility = database.VisibilityOnlyMe
	}
	if len(summary.StartLatLng) == 2 {
		lat, lng := summary.StartLatLng[0], summary.StartLatLng[1]
		a.StartLat = &lat
		a.StartLng = &lng
	}
	return a, nil
}
