package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"strava-club-sync/internal/metrics"
)

const (
	activitiesPerPage = 50
	maxActivityPages  = 10
)

// ActivitySummary is one entry from the athlete activities list endpoint
type ActivitySummary struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	StartDate          string    `json:"start_date"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageHeartrate   *float64  `json:"average_heartrate"`
	MaxHeartrate       *float64  `json:"max_heartrate"`
	Calories           *float64  `json:"calories"`
	KudosCount         int       `json:"kudos_count"`
	Visibility         string    `json:"visibility"`
	StartLatLng        []float64 `json:"start_latlng"`
}

// StartTime parses the activity's RFC3339 start timestamp
func (a *ActivitySummary) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, a.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse start_date %q: %w", a.StartDate, err)
	}
	return t, nil
}

// ZoneBucket is one bucket of a zone distribution
type ZoneBucket struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Time int64   `json:"time"`
}

// ActivityZoneSet is one zone distribution from the activity zones endpoint
type ActivityZoneSet struct {
	Type                string       `json:"type"`
	DistributionBuckets []ZoneBucket `json:"distribution_buckets"`
}

// SegmentSummary is segment master data embedded in an effort
type SegmentSummary struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Distance      float64 `json:"distance"`
	AverageGrade  float64 `json:"average_grade"`
	MaximumGrade  float64 `json:"maximum_grade"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	ClimbCategory int     `json:"climb_category"`
}

// SegmentEffortDetail is one segment effort from a detailed activity
type SegmentEffortDetail struct {
	ID               int64          `json:"id"`
	ElapsedTime      int64          `json:"elapsed_time"`
	MovingTime       int64          `json:"moving_time"`
	StartDate        string         `json:"start_date"`
	PRRank           *int           `json:"pr_rank"`
	KOMRank          *int           `json:"kom_rank"`
	AverageHeartrate *float64       `json:"average_heartrate"`
	MaxHeartrate     *float64       `json:"max_heartrate"`
	Segment          SegmentSummary `json:"segment"`
}

// ActivityDetail is the subset of the detailed activity response we consume
type ActivityDetail struct {
	ID             int64                  `json:"id"`
	Calories       *float64               `json:"calories"`
	SegmentEfforts []*SegmentEffortDetail `json:"segment_efforts"`
}

// FetchActivitiesSince lists the athlete's activities strictly after the
// given watermark (nil for a full fetch), oldest pages first as Strava
// returns them. Pagination stops at a short page or the page cap. A timeout
// mid-pagination returns the pages already collected; the next cycle picks
// up from the advanced watermark.
func (c *Client) FetchActivitiesSince(ctx context.Context, accessToken string, after *int64) ([]*ActivitySummary, error) {
	var collected []*ActivitySummary

	for page := 1; page <= maxActivityPages; page++ {
		params := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(activitiesPerPage)},
		}
		if after != nil {
			params.Set("after", strconv.FormatInt(*after, 10))
		}

		body, err := c.doRequest(ctx, metrics.OpListActivities, "/athlete/activities?"+params.Encode(), accessToken)
		if err != nil {
			if IsTimeout(err) && len(collected) > 0 {
				c.logger.Warn("activity fetch timed out, returning partial results",
					"pages_fetched", page-1, "activities", len(collected))
				return collected, nil
			}
			return nil, fmt.Errorf("failed to list activities page %d: %w", page, err)
		}

		var activities []*ActivitySummary
		if err := json.Unmarshal(body, &activities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activities: %w", err)
		}

		collected = append(collected, activities...)

		if len(activities) < activitiesPerPage {
			break
		}
	}

	return collected, nil
}

// GetActivityZones fetches the zone distributions for an activity
func (c *Client) GetActivityZones(ctx context.Context, accessToken string, activityID int64) ([]*ActivityZoneSet, error) {
	path := fmt.Sprintf("/activities/%d/zones", activityID)

	body, err := c.doRequest(ctx, metrics.OpGetActivityZones, path, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get zones for activity %d: %w", activityID, err)
	}

	var zones []*ActivityZoneSet
	if err := json.Unmarshal(body, &zones); err != nil {
		return nil, fmt.Errorf("failed to unmarshal zones: %w", err)
	}
	return zones, nil
}

// GetActivityDetail fetches the detailed activity, including segment efforts
func (c *Client) GetActivityDetail(ctx context.Context, accessToken string, activityID int64) (*ActivityDetail, error) {
	path := fmt.Sprintf("/activities/%d", activityID)

	body, err := c.doRequest(ctx, metrics.OpGetActivityDetail, path, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity %d: %w", activityID, err)
	}

	var detail ActivityDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity detail: %w", err)
	}
	return &detail, nil
}
