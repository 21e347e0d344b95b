package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"strava-club-sync/internal/metrics"
)

// Activity visibility values as reported by Strava
const (
	VisibilityEveryone      = "everyone"
	VisibilityFollowersOnly = "followers_only"
	VisibilityOnlyMe        = "only_me"
)

// Activity represents a synced Strava activity
type Activity struct {
	ID                 int64
	UserID             int64
	ActivityID         int64
	Name               string
	Type               string
	StartDate          int64 // Unix timestamp
	Distance           float64
	MovingTime         int64
	ElapsedTime        int64
	TotalElevationGain float64
	AverageSpeed       float64
	MaxSpeed           float64
	AverageHeartrate   *float64
	MaxHeartrate       *float64
	Calories           *float64
	KudosCount         int
	Visibility         string
	StartLat           *float64
	StartLng           *float64
	SegmentsFetched    bool
}

const activityColumns = `id, user_id, activity_id, name, type, start_date, distance,
	       moving_time, elapsed_time, total_elevation_gain,
	       average_speed, max_speed, average_heartrate, max_heartrate, calories,
	       kudos_count, visibility, start_lat, start_lng, segments_fetched`

func scanActivity(row interface{ Scan(...any) error }) (*Activity, error) {
	var a Activity
	err := row.Scan(
		&a.ID, &a.UserID, &a.ActivityID, &a.Name, &a.Type, &a.StartDate, &a.Distance,
		&a.MovingTime, &a.ElapsedTime, &a.TotalElevationGain,
		&a.AverageSpeed, &a.MaxSpeed, &a.AverageHeartrate, &a.MaxHeartrate, &a.Calories,
		&a.KudosCount, &a.Visibility, &a.StartLat, &a.StartLng, &a.SegmentsFetched,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveActivities persists a batch of activities for a user and returns the
// number of genuinely new rows. Existing rows only have their mutable fields
// updated (kudos count, visibility, coordinates); core numeric and time
// fields are authoritative from first fetch and never change. Coordinates
// keep the stored value when the incoming record has none. Safe to call
// repeatedly with overlapping or duplicate input.
func (db *DB) SaveActivities(userID int64, activities []*Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}

	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSaveActivities))
	defer timer.ObserveDuration()

	tx, err := db.conn.Begin()
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSaveActivities).Inc()
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// A record that fails to write is skipped; the rest of the batch still
	// commits
	newCount := 0
	for _, a := range activities {
		result, err := tx.Exec(`
			INSERT OR IGNORE INTO activities (
				user_id, activity_id, name, type, start_date, distance,
				moving_time, elapsed_time, total_elevation_gain,
				average_speed, max_speed, average_heartrate, max_heartrate, calories,
				kudos_count, visibility, start_lat, start_lng
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, userID, a.ActivityID, a.Name, a.Type, a.StartDate, a.Distance,
			a.MovingTime, a.ElapsedTime, a.TotalElevationGain,
			a.AverageSpeed, a.MaxSpeed, a.AverageHeartrate, a.MaxHeartrate, a.Calories,
			a.KudosCount, a.Visibility, a.StartLat, a.StartLng)
		if err != nil {
			slog.Warn("skipping activity that failed to insert", "activity_id", a.ActivityID, "error", err)
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSaveActivities).Inc()
			continue
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rows > 0 {
			newCount++
			continue
		}

		// Already known: refresh only the fields that change post-creation
		_, err = tx.Exec(`
			UPDATE activities
			SET kudos_count = ?,
			    visibility = ?,
			    start_lat = COALESCE(?, start_lat),
			    start_lng = COALESCE(?, start_lng)
			WHERE user_id = ? AND activity_id = ?
		`, a.KudosCount, a.Visibility, a.StartLat, a.StartLng, userID, a.ActivityID)
		if err != nil {
			slog.Warn("skipping activity that failed to update", "activity_id", a.ActivityID, "error", err)
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSaveActivities).Inc()
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSaveActivities).Inc()
		return 0, fmt.Errorf("failed to commit activities: %w", err)
	}

	return newCount, nil
}

// GetActivity retrieves an activity by (user, external activity id)
func (db *DB) GetActivity(userID, activityID int64) (*Activity, error) {
	row := db.conn.QueryRow(`
		SELECT `+activityColumns+`
		FROM activities WHERE user_id = ? AND activity_id = ?
	`, userID, activityID)

	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// LatestActivityStart returns the most recent activity start timestamp for a
// user, or nil if the user has no stored activities. Used as the incremental
// sync watermark.
func (db *DB) LatestActivityStart(userID int64) (*int64, error) {
	var latest sql.NullInt64
	err := db.conn.QueryRow(`
		SELECT MAX(start_date) FROM activities WHERE user_id = ?
	`, userID).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest activity start: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Int64, nil
}

// FirstActivityStart returns the earliest activity start timestamp across
// all users, or nil if no activities are stored
func (db *DB) FirstActivityStart() (*int64, error) {
	var first sql.NullInt64
	err := db.conn.QueryRow(`SELECT MIN(start_date) FROM activities`).Scan(&first)
	if err != nil {
		return nil, fmt.Errorf("failed to get first activity start: %w", err)
	}
	if !first.Valid {
		return nil, nil
	}
	return &first.Int64, nil
}

// ListActivitiesNeedingZones returns activities that have heart-rate data
// but no zone record yet, most recent first
func (db *DB) ListActivitiesNeedingZones(userID int64, limit int) ([]*Activity, error) {
	rows, err := db.conn.Query(`
		SELECT a.id, a.user_id, a.activity_id, a.name, a.type, a.start_date, a.distance,
		       a.moving_time, a.elapsed_time, a.total_elevation_gain,
		       a.average_speed, a.max_speed, a.average_heartrate, a.max_heartrate, a.calories,
		       a.kudos_count, a.visibility, a.start_lat, a.start_lng, a.segments_fetched
		FROM activities a
		LEFT JOIN activity_hr_zones z ON a.user_id = z.user_id AND a.activity_id = z.activity_id
		WHERE a.user_id = ?
		  AND a.average_heartrate IS NOT NULL
		  AND z.id IS NULL
		ORDER BY a.start_date DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities needing zones: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

// ListActivitiesNeedingSegments returns activities whose segment efforts have
// not been processed yet, most recent first
func (db *DB) ListActivitiesNeedingSegments(userID int64, limit int) ([]*Activity, error) {
	rows, err := db.conn.Query(`
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ? AND segments_fetched = 0
		ORDER BY start_date DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities needing segments: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

func collectActivities(rows *sql.Rows) ([]*Activity, error) {
	var activities []*Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return activities, nil
}

// CountActivities returns the total number of stored activities
func (db *DB) CountActivities() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM activities`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return count, nil
}

// CountActivitiesNeedingZones returns how many activities still await a
// heart-rate zone fetch across all users
func (db *DB) CountActivitiesNeedingZones() (int, error) {
	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM activities a
		LEFT JOIN activity_hr_zones z ON a.user_id = z.user_id AND a.activity_id = z.activity_id
		WHERE a.average_heartrate IS NOT NULL AND z.id IS NULL
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activities needing zones: %w", err)
	}
	return count, nil
}

// CountActivitiesNeedingSegments returns how many activities still await
// segment processing across all users
func (db *DB) CountActivitiesNeedingSegments() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM activities WHERE segments_fetched = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activities needing segments: %w", err)
	}
	return count, nil
}
