package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"strava-club-sync/internal/metrics"
)

// Job types recorded in sync_runs
const (
	JobTypeActivitySync = "activity_sync"
	JobTypeTrophyCalc   = "trophy_calc"
)

// SyncRun is one scheduled or manually triggered run of a background job
type SyncRun struct {
	ID              int64    `json:"id"`
	JobType         string   `json:"job_type"`
	StartedAt       int64    `json:"started_at"`
	FinishedAt      *int64   `json:"finished_at"`
	UsersTotal      int      `json:"users_total"`
	UsersSucceeded  int      `json:"users_succeeded"`
	UsersFailed     int      `json:"users_failed"`
	NewActivities   int      `json:"new_activities"`
	WeeksProcessed  int      `json:"weeks_processed"`
	TrophiesAwarded int      `json:"trophies_awarded"`
	Errors          []string `json:"errors,omitempty"`
}

// SyncRunStats is the outcome written when a run finishes. Zero values are
// fine for fields a job type does not produce.
type SyncRunStats struct {
	UsersTotal      int
	UsersSucceeded  int
	UsersFailed     int
	NewActivities   int
	WeeksProcessed  int
	TrophiesAwarded int
	Errors          []string
}

// StartSyncRun opens a run record and returns its ID
func (db *DB) StartSyncRun(jobType string) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpStartSyncRun))
	defer timer.ObserveDuration()

	result, err := db.conn.Exec(`
		INSERT INTO sync_runs (job_type, started_at) VALUES (?, ?)
	`, jobType, time.Now().Unix())
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStartSyncRun).Inc()
		return 0, fmt.Errorf("failed to start sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStartSyncRun).Inc()
		return 0, fmt.Errorf("failed to get sync run id: %w", err)
	}
	return id, nil
}

// FinishSyncRun closes a run record with its stats
func (db *DB) FinishSyncRun(runID int64, stats *SyncRunStats) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpFinishSyncRun))
	defer timer.ObserveDuration()

	var errorsJSON *string
	if len(stats.Errors) > 0 {
		b, err := json.Marshal(stats.Errors)
		if err != nil {
			return fmt.Errorf("failed to marshal run errors: %w", err)
		}
		s := string(b)
		errorsJSON = &s
	}

	result, err := db.conn.Exec(`
		UPDATE sync_runs
		SET finished_at = ?,
		    users_total = ?, users_succeeded = ?, users_failed = ?,
		    new_activities = ?, weeks_processed = ?, trophies_awarded = ?,
		    errors = ?
		WHERE id = ?
	`, time.Now().Unix(),
		stats.UsersTotal, stats.UsersSucceeded, stats.UsersFailed,
		stats.NewActivities, stats.WeeksProcessed, stats.TrophiesAwarded,
		errorsJSON, runID)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpFinishSyncRun).Inc()
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sync run not found")
	}
	return nil
}

// ListRecentSyncRuns returns the most recently started runs, newest first
func (db *DB) ListRecentSyncRuns(limit int) ([]*SyncRun, error) {
	rows, err := db.conn.Query(`
		SELECT id, job_type, started_at, finished_at,
		       users_total, users_succeeded, users_failed,
		       new_activities, weeks_processed, trophies_awarded, errors
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		var r SyncRun
		var errorsJSON *string
		if err := rows.Scan(&r.ID, &r.JobType, &r.StartedAt, &r.FinishedAt,
			&r.UsersTotal, &r.UsersSucceeded, &r.UsersFailed,
			&r.NewActivities, &r.WeeksProcessed, &r.TrophiesAwarded, &errorsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if errorsJSON != nil {
			if err := json.Unmarshal([]byte(*errorsJSON), &r.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal run errors: %w", err)
			}
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}
