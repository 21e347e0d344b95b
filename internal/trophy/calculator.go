package trophy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"strava-club-sync/internal/database"
	"strava-club-sync/internal/metrics"
)

// Calculator awards weekly distance trophies. Weeks run Monday 00:00 to
// Monday 00:00 in UTC; only complete weeks are evaluated, and a week that
// already has trophies is never recomputed.
type Calculator struct {
	db     *database.DB
	epoch  time.Time
	logger *slog.Logger
	now    func() time.Time
}

// Stats summarizes one calculation run
type Stats struct {
	WeeksProcessed  int
	WeeksSkipped    int
	TrophiesAwarded int
	Errors          []string
}

// NewCalculator creates a calculator. Weeks before epoch are never
// considered, regardless of how far back activity history reaches.
func NewCalculator(db *database.DB, epoch time.Time) *Calculator {
	return &Calculator{
		db:     db,
		epoch:  epoch,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// weekStartUTC returns the Monday 00:00 UTC boundary at or before t
func weekStartUTC(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-daysSinceMonday, 0, 0, 0, 0, time.UTC)
}

// Run evaluates every complete, unawarded week between the trophy epoch (or
// the earliest stored activity, whichever is later) and now. All awards from
// one run commit in a single transaction. Returns stats for the run.
func (c *Calculator) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()

	runID, err := c.db.StartSyncRun(database.JobTypeTrophyCalc)
	if err != nil {
		return nil, err
	}

	stats, err := c.run(ctx)
	if stats == nil {
		stats = &Stats{}
	}
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
	}

	if finishErr := c.db.FinishSyncRun(runID, &database.SyncRunStats{
		WeeksProcessed:  stats.WeeksProcessed,
		TrophiesAwarded: stats.TrophiesAwarded,
		Errors:          stats.Errors,
	}); finishErr != nil {
		c.logger.Error("failed to record trophy run", "run_id", runID, "error", finishErr)
	}

	result := metrics.ResultSuccess
	if err != nil || len(stats.Errors) > 0 {
		result = metrics.ResultFailure
	}
	metrics.SyncRunsTotal.WithLabelValues(metrics.JobTypeTrophyCalc, result).Inc()
	metrics.SyncRunDuration.WithLabelValues(metrics.JobTypeTrophyCalc).Observe(time.Since(start).Seconds())

	if err != nil {
		return stats, err
	}

	c.logger.Info("trophy calculation complete",
		"weeks_processed", stats.WeeksProcessed,
		"weeks_skipped", stats.WeeksSkipped,
		"trophies_awarded", stats.TrophiesAwarded,
		"duration_ms", time.Since(start).Milliseconds())

	return stats, nil
}

func (c *Calculator) run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	firstStart, err := c.db.FirstActivityStart()
	if err != nil {
		return stats, err
	}
	if firstStart == nil {
		c.logger.Info("no activities stored, nothing to calculate")
		return stats, nil
	}

	week := weekStartUTC(time.Unix(*firstStart, 0))
	if epochWeek := weekStartUTC(c.epoch); week.Before(epochWeek) {
		week = epochWeek
	}
	currentWeek := weekStartUTC(c.now())

	tx, err := c.db.Begin()
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// A failure in one week is logged and aggregated; the remaining weeks
	// still run
	for ; week.Before(currentWeek); week = week.AddDate(0, 0, 7) {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		weekStart := week.Unix()
		weekEnd := week.AddDate(0, 0, 7).Unix()

		awarded, err := database.WeekHasTrophies(tx, weekStart)
		if err != nil {
			c.logger.Error("failed to check week", "week_start", weekStart, "error", err)
			stats.Errors = append(stats.Errors, fmt.Sprintf("week %d: %v", weekStart, err))
			continue
		}
		if awarded {
			stats.WeeksSkipped++
			continue
		}

		if err := c.awardWeek(tx, weekStart, weekEnd, stats); err != nil {
			c.logger.Error("failed to award week", "week_start", weekStart, "error", err)
			stats.Errors = append(stats.Errors, fmt.Sprintf("week %d: %v", weekStart, err))
			continue
		}
		stats.WeeksProcessed++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit trophies: %w", err)
	}

	if stats.TrophiesAwarded > 0 {
		metrics.TrophiesAwardedTotal.Add(float64(stats.TrophiesAwarded))
	}
	return stats, nil
}

// awardWeek awards trophies for one week. Totals are rounded to whole
// meters before comparison so users whose rides sum to the same distance
// tie regardless of floating-point summation order; everyone matching the
// rounded maximum gets a trophy. An insert that fails for one winner is
// logged and aggregated; the remaining tied winners still get theirs.
func (c *Calculator) awardWeek(tx database.Queryer, weekStart, weekEnd int64, stats *Stats) error {
	totals, err := database.WeeklyDistanceTotals(tx, weekStart, weekEnd)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		return nil
	}

	maxMeters := math.Round(totals[0].TotalDistance)

	for _, t := range totals {
		if math.Round(t.TotalDistance) < maxMeters {
			break
		}
		if err := database.InsertWeeklyTrophy(tx, &database.WeeklyTrophy{
			UserID:        t.UserID,
			WeekStart:     weekStart,
			WeekEnd:       weekEnd,
			TotalDistance: t.TotalDistance,
			ActivityCount: t.ActivityCount,
		}); err != nil {
			c.logger.Error("failed to insert trophy",
				"user_id", t.UserID, "week_start", weekStart, "error", err)
			stats.Errors = append(stats.Errors, fmt.Sprintf("week %d user %d: %v", weekStart, t.UserID, err))
			continue
		}
		stats.TrophiesAwarded++

		c.logger.Info("trophy awarded",
			"user_id", t.UserID,
			"week_start", weekStart,
			"total_distance", t.TotalDistance,
			"activity_count", t.ActivityCount)
	}

	return nil
}
