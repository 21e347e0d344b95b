package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"strava-club-sync/internal/metrics"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx. Trophy calculation runs
// the whole pass in one transaction, and with a single-connection pool every
// read inside that pass must go through the transaction.
type Queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// WeeklyTrophy is a distance trophy for one user and one week. Rows are
// immutable once written.
type WeeklyTrophy struct {
	ID            int64
	UserID        int64
	WeekStart     int64
	WeekEnd       int64
	TotalDistance float64
	ActivityCount int
	CreatedAt     int64
}

// WeeklyTotal is one user's qualifying distance over a week
type WeeklyTotal struct {
	UserID        int64
	TotalDistance float64
	ActivityCount int
}

// Activity types that count toward weekly distance trophies
const qualifyingTypes = `('Walk', 'Hike', 'Run', 'Ride')`

// WeekHasTrophies reports whether any trophy has been awarded for the week
// starting at weekStart. Awarded weeks are never recomputed.
func WeekHasTrophies(q Queryer, weekStart int64) (bool, error) {
	var count int
	err := q.QueryRow(`
		SELECT COUNT(*) FROM weekly_trophies WHERE week_start = ?
	`, weekStart).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check week trophies: %w", err)
	}
	return count > 0, nil
}

// WeeklyDistanceTotals returns per-user qualifying distance for the half-open
// week [weekStart, weekEnd), largest total first. Activities marked only_me
// never contribute.
func WeeklyDistanceTotals(q Queryer, weekStart, weekEnd int64) ([]*WeeklyTotal, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpWeeklyTotals))
	defer timer.ObserveDuration()

	rows, err := q.Query(`
		SELECT user_id, SUM(distance), COUNT(*)
		FROM activities
		WHERE start_date >= ? AND start_date < ?
		  AND type IN `+qualifyingTypes+`
		  AND visibility != 'only_me'
		GROUP BY user_id
		HAVING SUM(distance) > 0
		ORDER BY SUM(distance) DESC
	`, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly totals: %w", err)
	}
	defer rows.Close()

	var totals []*WeeklyTotal
	for rows.Next() {
		var t WeeklyTotal
		if err := rows.Scan(&t.UserID, &t.TotalDistance, &t.ActivityCount); err != nil {
			return nil, fmt.Errorf("failed to scan weekly total: %w", err)
		}
		totals = append(totals, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weekly totals: %w", err)
	}
	return totals, nil
}

// InsertWeeklyTrophy records a trophy award
func InsertWeeklyTrophy(q Queryer, t *WeeklyTrophy) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpInsertTrophy))
	defer timer.ObserveDuration()

	_, err := q.Exec(`
		INSERT INTO weekly_trophies (
			user_id, week_start, week_end, total_distance, activity_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`, t.UserID, t.WeekStart, t.WeekEnd, t.TotalDistance, t.ActivityCount, time.Now().Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertTrophy).Inc()
		return fmt.Errorf("failed to insert weekly trophy: %w", err)
	}
	return nil
}

// ListTrophiesForWeek returns the trophies awarded for a given week start
func (db *DB) ListTrophiesForWeek(weekStart int64) ([]*WeeklyTrophy, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, week_start, week_end, total_distance, activity_count, created_at
		FROM weekly_trophies
		WHERE week_start = ?
		ORDER BY user_id ASC
	`, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list trophies for week: %w", err)
	}
	defer rows.Close()

	var trophies []*WeeklyTrophy
	for rows.Next() {
		var t WeeklyTrophy
		if err := rows.Scan(&t.ID, &t.UserID, &t.WeekStart, &t.WeekEnd,
			&t.TotalDistance, &t.ActivityCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trophy: %w", err)
		}
		trophies = append(trophies, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trophies: %w", err)
	}
	return trophies, nil
}

// CountTrophies returns the total number of awarded trophies
func (db *DB) CountTrophies() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM weekly_trophies`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trophies: %w", err)
	}
	return count, nil
}
