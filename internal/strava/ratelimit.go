package strava

import (
	"sync"
	"time"

	"strava-club-sync/internal/metrics"
)

// RateLimitTracker records the most recent rate limit headers reported by
// Strava. It observes only; throttling decisions are left to the caller, who
// defers rate-limited work to the next scheduled cycle.
type RateLimitTracker struct {
	mu          sync.RWMutex
	limit15Min  int
	usage15Min  int
	limitDaily  int
	usageDaily  int
	lastUpdated time.Time
}

// RateLimitStatus is a snapshot of the tracked limits
type RateLimitStatus struct {
	Limit15Min    int
	Usage15Min    int
	LimitDaily    int
	UsageDaily    int
	Usage15MinPct float64
	UsageDailyPct float64
	LastUpdated   time.Time
}

// NewRateLimitTracker creates a tracker seeded with Strava's default limits
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		limit15Min: 200,
		limitDaily: 2000,
	}
}

// Update records the latest header values and refreshes the exported gauges
func (rl *RateLimitTracker) Update(limit15Min, usage15Min, limitDaily, usageDaily int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limit15Min = limit15Min
	rl.usage15Min = usage15Min
	rl.limitDaily = limitDaily
	rl.usageDaily = usageDaily
	rl.lastUpdated = time.Now()

	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimit15Min, metrics.BucketLimit).Set(float64(limit15Min))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimit15Min, metrics.BucketUsage).Set(float64(usage15Min))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimitDaily, metrics.BucketLimit).Set(float64(limitDaily))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimitDaily, metrics.BucketUsage).Set(float64(usageDaily))
}

// Status returns the current rate limit status
func (rl *RateLimitTracker) Status() RateLimitStatus {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	usage15MinPct := 0.0
	if rl.limit15Min > 0 {
		usage15MinPct = float64(rl.usage15Min) / float64(rl.limit15Min) * 100
	}

	usageDailyPct := 0.0
	if rl.limitDaily > 0 {
		usageDailyPct = float64(rl.usageDaily) / float64(rl.limitDaily) * 100
	}

	return RateLimitStatus{
		Limit15Min:    rl.limit15Min,
		Usage15Min:    rl.usage15Min,
		LimitDaily:    rl.limitDaily,
		UsageDaily:    rl.usageDaily,
		Usage15MinPct: usage15MinPct,
		UsageDailyPct: usageDailyPct,
		LastUpdated:   rl.lastUpdated,
	}
}
