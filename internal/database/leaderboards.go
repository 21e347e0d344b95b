package database

import (
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"strava-club-sync/internal/metrics"
)

// TrophyLeaderboardRow is one user's trophy standing
type TrophyLeaderboardRow struct {
	UserID           int64   `json:"user_id"`
	Firstname        string  `json:"firstname"`
	Lastname         string  `json:"lastname"`
	ProfilePicture   string  `json:"profile_picture,omitempty"`
	TrophyCount      int     `json:"trophy_count"`
	TotalDistance    float64 `json:"total_distance"`
	FirstTrophyWeek  int64   `json:"first_trophy_week"`
	LatestTrophyWeek int64   `json:"latest_trophy_week"`
}

// TrophyWinnerRow is one awarded trophy with its winner
type TrophyWinnerRow struct {
	UserID        int64   `json:"user_id"`
	Firstname     string  `json:"firstname"`
	Lastname      string  `json:"lastname"`
	WeekStart     int64   `json:"week_start"`
	WeekEnd       int64   `json:"week_end"`
	TotalDistance float64 `json:"total_distance"`
	ActivityCount int     `json:"activity_count"`
}

// KudosLeaderboardRow is one user's kudos standing
type KudosLeaderboardRow struct {
	UserID        int64  `json:"user_id"`
	Firstname     string `json:"firstname"`
	Lastname      string `json:"lastname"`
	TotalKudos    int    `json:"total_kudos"`
	ActivityCount int    `json:"activity_count"`
}

// TopActivityRow is the single most-kudoed visible activity
type TopActivityRow struct {
	UserID     int64   `json:"user_id"`
	Firstname  string  `json:"firstname"`
	Lastname   string  `json:"lastname"`
	ActivityID int64   `json:"activity_id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	StartDate  int64   `json:"start_date"`
	Distance   float64 `json:"distance"`
	KudosCount int     `json:"kudos_count"`
}

// Leaderboards only show active users who have not opted out entirely.
// Trophy rows themselves are kept for hidden users; they are filtered at
// read time so a privacy change takes effect immediately.
const leaderboardUserFilter = `u.is_active = 1 AND u.privacy_level != 'private'`

// TrophyLeaderboard returns per-user trophy standings for weeks starting at
// or after since (pass 0 for all time), ordered by trophy count then total
// distance
func (db *DB) TrophyLeaderboard(since int64) ([]*TrophyLeaderboardRow, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpLeaderboardRead))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT u.id, u.firstname, u.lastname, u.profile_picture,
		       COUNT(*), SUM(t.total_distance), MIN(t.week_start), MAX(t.week_start)
		FROM weekly_trophies t
		JOIN users u ON u.id = t.user_id
		WHERE `+leaderboardUserFilter+`
		  AND t.week_start >= ?
		GROUP BY u.id
		ORDER BY COUNT(*) DESC, SUM(t.total_distance) DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query trophy leaderboard: %w", err)
	}
	defer rows.Close()

	var result []*TrophyLeaderboardRow
	for rows.Next() {
		var r TrophyLeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Firstname, &r.Lastname, &r.ProfilePicture,
			&r.TrophyCount, &r.TotalDistance, &r.FirstTrophyWeek, &r.LatestTrophyWeek); err != nil {
			return nil, fmt.Errorf("failed to scan trophy leaderboard row: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trophy leaderboard: %w", err)
	}
	return result, nil
}

// RecentTrophyWinners returns the most recently awarded trophies with their
// winners, newest week first
func (db *DB) RecentTrophyWinners(limit int) ([]*TrophyWinnerRow, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpLeaderboardRead))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT u.id, u.firstname, u.lastname,
		       t.week_start, t.week_end, t.total_distance, t.activity_count
		FROM weekly_trophies t
		JOIN users u ON u.id = t.user_id
		WHERE `+leaderboardUserFilter+`
		ORDER BY t.week_start DESC, t.total_distance DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trophy winners: %w", err)
	}
	defer rows.Close()

	var result []*TrophyWinnerRow
	for rows.Next() {
		var r TrophyWinnerRow
		if err := rows.Scan(&r.UserID, &r.Firstname, &r.Lastname,
			&r.WeekStart, &r.WeekEnd, &r.TotalDistance, &r.ActivityCount); err != nil {
			return nil, fmt.Errorf("failed to scan trophy winner row: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trophy winners: %w", err)
	}
	return result, nil
}

// WeeklyKudosLeaderboard returns per-user kudos totals over the half-open
// window [weekStart, weekEnd)
func (db *DB) WeeklyKudosLeaderboard(weekStart, weekEnd int64) ([]*KudosLeaderboardRow, error) {
	return db.kudosLeaderboard(`a.start_date >= ? AND a.start_date < ?`, weekStart, weekEnd)
}

// AllTimeKudosLeaderboard returns per-user kudos totals over all stored
// activities
func (db *DB) AllTimeKudosLeaderboard() ([]*KudosLeaderboardRow, error) {
	return db.kudosLeaderboard(`1 = 1`)
}

func (db *DB) kudosLeaderboard(window string, args ...any) ([]*KudosLeaderboardRow, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpLeaderboardRead))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT u.id, u.firstname, u.lastname, SUM(a.kudos_count), COUNT(*)
		FROM activities a
		JOIN users u ON u.id = a.user_id
		WHERE `+leaderboardUserFilter+`
		  AND a.visibility != 'only_me'
		  AND `+window+`
		GROUP BY u.id
		HAVING SUM(a.kudos_count) > 0
		ORDER BY SUM(a.kudos_count) DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query kudos leaderboard: %w", err)
	}
	defer rows.Close()

	var result []*KudosLeaderboardRow
	for rows.Next() {
		var r KudosLeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Firstname, &r.Lastname, &r.TotalKudos, &r.ActivityCount); err != nil {
			return nil, fmt.Errorf("failed to scan kudos leaderboard row: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kudos leaderboard: %w", err)
	}
	return result, nil
}

// TopKudosActivity returns the visible activity with the most kudos, or nil
// if there are no visible activities
func (db *DB) TopKudosActivity() (*TopActivityRow, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpLeaderboardRead))
	defer timer.ObserveDuration()

	var r TopActivityRow
	err := db.conn.QueryRow(`
		SELECT u.id, u.firstname, u.lastname,
		       a.activity_id, a.name, a.type, a.start_date, a.distance, a.kudos_count
		FROM activities a
		JOIN users u ON u.id = a.user_id
		WHERE `+leaderboardUserFilter+`
		  AND a.visibility != 'only_me'
		ORDER BY a.kudos_count DESC, a.start_date DESC
		LIMIT 1
	`).Scan(&r.UserID, &r.Firstname, &r.Lastname,
		&r.ActivityID, &r.Name, &r.Type, &r.StartDate, &r.Distance, &r.KudosCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query top kudos activity: %w", err)
	}
	return &r, nil
}
