package sync

import (
	"context"
	"fmt"
	"time"

	"strava-club-sync/internal/database"
	"strava-club-sync/internal/metrics"
	"strava-club-sync/internal/strava"
)

// Per-user per-cycle fetch budgets. Enrichment is steady-state work: each
// cycle chips away at the most recent unprocessed activities and the rest
// waits for the next cycle.
const (
	maxZoneFetchesPerUser    = 20
	maxSegmentFetchesPerUser = 10
)

// syncEnrichment runs the heart-rate zone and segment flows for one user.
// Only a rate limit error propagates; everything else is logged per
// activity and retried on a later cycle.
func (s *Syncer) syncEnrichment(ctx context.Context, user *database.User, token string) error {
	if err := s.syncHRZones(ctx, user, token); err != nil {
		return err
	}
	return s.syncSegments(ctx, user, token)
}

func (s *Syncer) syncHRZones(ctx context.Context, user *database.User, token string) error {
	pending, err := s.db.ListActivitiesNeedingZones(user.ID, maxZoneFetchesPerUser)
	if err != nil {
		return err
	}

	for _, activity := range pending {
		zones, err := s.client.GetActivityZones(ctx, token, activity.ActivityID)
		if err != nil {
			if strava.IsTooManyRequests(err) {
				metrics.EnrichmentFetchesTotal.WithLabelValues(metrics.EnrichmentZones, metrics.ResultSkipped).Inc()
				return fmt.Errorf("rate limited fetching zones: %w", err)
			}
			metrics.EnrichmentFetchesTotal.WithLabelValues(metrics.EnrichmentZones, metrics.ResultFailure).Inc()
			s.logger.Error("failed to fetch zones", "user_id", user.ID, "activity_id", activity.ActivityID, "error", err)
			continue
		}

		// An all-zero row is written when the response carries no heartrate
		// distribution, so the activity is never fetched again
		row := &database.HRZones{UserID: user.ID, ActivityID: activity.ActivityID}
		for _, set := range zones {
			if set.Type != "heartrate" {
				continue
			}
			buckets := set.DistributionBuckets
			targets := []*int64{&row.Zone1, &row.Zone2, &row.Zone3, &row.Zone4, &row.Zone5}
			for i := 0; i < len(targets) && i < len(buckets); i++ {
				*targets[i] = buckets[i].Time
			}
			break
		}

		if err := s.db.InsertHRZones(row); err != nil {
			return err
		}
		metrics.EnrichmentFetchesTotal.WithLabelValues(metrics.EnrichmentZones, metrics.ResultSuccess).Inc()
	}

	return nil
}

func (s *Syncer) syncSegments(ctx context.Context, user *database.User, token string) error {
	pending, err := s.db.ListActivitiesNeedingSegments(user.ID, maxSegmentFetchesPerUser)
	if err != nil {
		return err
	}

	for _, activity := range pending {
		detail, err := s.client.GetActivityDetail(ctx, token, activity.ActivityID)
		if err != nil {
			if strava.IsTooManyRequests(err) {
				metrics.EnrichmentFetchesTotal.WithLabelValues(metrics.EnrichmentSegments, metrics.ResultSkipped).Inc()
				return fmt.Errorf("rate limited fetching activity detail: %w", err)
			}
			if strava.IsNotFound(err) {
				// Gone from Strava; mark processed so it stops recurring
				s.logger.Warn("activity detail not found, marking processed", "user_id", user.ID, "activity_id", activity.ActivityID)
				if err := s.db.SaveSegmentEfforts(user.ID, activity.ActivityID, nil, nil); err != nil {
					return err
				}
				continue
			}
			metrics.EnrichmentFetchesTotal.WithLabelValues(metrics.EnrichmentSegments, metrics.ResultFailure).Inc()
			s.logger.Error("failed to fetch activity detail", "user_id", user.ID, "activity_id", activity.ActivityID, "error", err)
			continue
		}

		segments, efforts := toStoredEfforts(user.ID, activity.ActivityID, detail)
		if err := s.db.SaveSegmentEfforts(user.ID, activity.ActivityID, segments, efforts); err != nil {
			return err
		}
		metrics.EnrichmentFetchesTotal.WithLabelValues(metrics.EnrichmentSegments, metrics.ResultSuccess).Inc()
	}

	return nil
}

// toStoredEfforts flattens a detailed activity into segment master rows and
// per-user effort rows. Duplicate segments across efforts collapse to one.
func toStoredEfforts(userID, activityID int64, detail *strava.ActivityDetail) ([]*database.Segment, []*database.SegmentEffort) {
	seen := make(map[int64]bool)
	var segments []*database.Segment
	var efforts []*database.SegmentEffort

	for _, e := range detail.SegmentEfforts {
		if !seen[e.Segment.ID] {
			seen[e.Segment.ID] = true
			segments = append(segments, &database.Segment{
				StravaSegmentID: e.Segment.ID,
				Name:            e.Segment.Name,
				Distance:        e.Segment.Distance,
				AverageGrade:    e.Segment.AverageGrade,
				MaximumGrade:    e.Segment.MaximumGrade,
				City:            e.Segment.City,
				State:           e.Segment.State,
				ClimbCategory:   e.Segment.ClimbCategory,
			})
		}

		effort := &database.SegmentEffort{
			UserID:           userID,
			ActivityID:       activityID,
			StravaSegmentID:  e.Segment.ID,
			StravaEffortID:   e.ID,
			ElapsedTime:      e.ElapsedTime,
			MovingTime:       e.MovingTime,
			PRRank:           e.PRRank,
			KOMRank:          e.KOMRank,
			AverageHeartrate: e.AverageHeartrate,
			MaxHeartrate:     e.MaxHeartrate,
		}
		if ts, err := time.Parse(time.RFC3339, e.StartDate); err == nil {
			effort.StartDate = ts.Unix()
		}
		efforts = append(efforts, effort)
	}

	return segments, efforts
}
