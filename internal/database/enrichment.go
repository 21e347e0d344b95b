package database

import (
	"database/sql"
	"fmt"
	"time"
)

// HRZones holds the time-in-zone distribution for one activity. An all-zero
// row means the zone fetch succeeded but returned no heart-rate data; the
// row's existence is what stops the activity from being fetched again.
type HRZones struct {
	UserID     int64
	ActivityID int64
	Zone1      int64
	Zone2      int64
	Zone3      int64
	Zone4      int64
	Zone5      int64
}

// Segment is Strava master data shared across users
type Segment struct {
	StravaSegmentID int64
	Name            string
	Distance        float64
	AverageGrade    float64
	MaximumGrade    float64
	City            string
	State           string
	ClimbCategory   int
}

// SegmentEffort is one user's effort on a segment within an activity
type SegmentEffort struct {
	UserID           int64
	ActivityID       int64
	StravaSegmentID  int64
	StravaEffortID   int64
	ElapsedTime      int64
	MovingTime       int64
	StartDate        int64
	PRRank           *int
	KOMRank          *int
	AverageHeartrate *float64
	MaxHeartrate     *float64
}

// InsertHRZones records the zone distribution for an activity. A second
// insert for the same activity is a no-op.
func (db *DB) InsertHRZones(z *HRZones) error {
	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO activity_hr_zones (
			user_id, activity_id,
			zone_1_seconds, zone_2_seconds, zone_3_seconds, zone_4_seconds, zone_5_seconds,
			fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, z.UserID, z.ActivityID, z.Zone1, z.Zone2, z.Zone3, z.Zone4, z.Zone5, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to insert hr zones for activity %d: %w", z.ActivityID, err)
	}
	return nil
}

// GetHRZones retrieves the zone distribution for an activity, or nil if the
// activity has not been enriched yet
func (db *DB) GetHRZones(userID, activityID int64) (*HRZones, error) {
	var z HRZones
	err := db.conn.QueryRow(`
		SELECT user_id, activity_id,
		       zone_1_seconds, zone_2_seconds, zone_3_seconds, zone_4_seconds, zone_5_seconds
		FROM activity_hr_zones
		WHERE user_id = ? AND activity_id = ?
	`, userID, activityID).Scan(&z.UserID, &z.ActivityID, &z.Zone1, &z.Zone2, &z.Zone3, &z.Zone4, &z.Zone5)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hr zones: %w", err)
	}
	return &z, nil
}

// SaveSegmentEfforts stores the segments and efforts for one activity and
// marks the activity's segments as fetched, all in a single transaction. Call
// with empty slices for activities whose detail contained no efforts; the
// fetched flag is still set so the activity is never retried.
func (db *DB) SaveSegmentEfforts(userID, activityID int64, segments []*Segment, efforts []*SegmentEffort) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	for _, s := range segments {
		_, err := tx.Exec(`
			INSERT INTO segments (
				strava_segment_id, name, distance, average_grade, maximum_grade,
				city, state, climb_category
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(strava_segment_id) DO UPDATE SET
				name = excluded.name,
				distance = excluded.distance,
				average_grade = excluded.average_grade,
				maximum_grade = excluded.maximum_grade,
				city = excluded.city,
				state = excluded.state,
				climb_category = excluded.climb_category
		`, s.StravaSegmentID, s.Name, s.Distance, s.AverageGrade, s.MaximumGrade,
			s.City, s.State, s.ClimbCategory)
		if err != nil {
			return fmt.Errorf("failed to upsert segment %d: %w", s.StravaSegmentID, err)
		}
	}

	for _, e := range efforts {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO segment_efforts (
				user_id, activity_id, strava_segment_id, strava_effort_id,
				elapsed_time, moving_time, start_date,
				pr_rank, kom_rank, average_heartrate, max_heartrate, fetched_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.UserID, e.ActivityID, e.StravaSegmentID, e.StravaEffortID,
			e.ElapsedTime, e.MovingTime, e.StartDate,
			e.PRRank, e.KOMRank, e.AverageHeartrate, e.MaxHeartrate, now)
		if err != nil {
			return fmt.Errorf("failed to insert segment effort %d: %w", e.StravaEffortID, err)
		}
	}

	_, err = tx.Exec(`
		UPDATE activities SET segments_fetched = 1
		WHERE user_id = ? AND activity_id = ?
	`, userID, activityID)
	if err != nil {
		return fmt.Errorf("failed to mark segments fetched for activity %d: %w", activityID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit segment efforts: %w", err)
	}

	return nil
}

// CountSegmentEfforts returns the number of stored efforts for an activity
func (db *DB) CountSegmentEfforts(userID, activityID int64) (int, error) {
	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM segment_efforts WHERE user_id = ? AND activity_id = ?
	`, userID, activityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count segment efforts: %w", err)
	}
	return count, nil
}
