package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"strava-club-sync/internal/config"
	"strava-club-sync/internal/database"
)

// LeaderboardsHandler serves the internal leaderboard endpoints. Every
// endpoint requires the internal API key; this service has no public surface.
type LeaderboardsHandler struct {
	db     *database.DB
	config *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewLeaderboardsHandler creates a new leaderboards handler
func NewLeaderboardsHandler(db *database.DB, cfg *config.Config) *LeaderboardsHandler {
	return &LeaderboardsHandler{
		db:     db,
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// authorize checks the method and the internal API key. Returns false after
// writing the error response.
func (h *LeaderboardsHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "Bearer "+h.config.InternalAPIKey {
		h.logger.Warn("Unauthorized leaderboard request", "path", r.URL.Path, "has_auth", authHeader != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}

	return true
}

func (h *LeaderboardsHandler) writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// HandleTrophyLeaderboard handles GET /leaderboards/trophies
// Query parameters:
//   - since: Unix timestamp; only weeks starting at or after it count
//     (default: 0, all time)
func (h *LeaderboardsHandler) HandleTrophyLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	since := int64(0)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		since, err = strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	rows, err := h.db.TrophyLeaderboard(since)
	if err != nil {
		h.logger.Error("Failed to query trophy leaderboard", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*database.TrophyLeaderboardRow{}
	}

	h.writeJSON(w, map[string]interface{}{
		"leaderboard": rows,
		"since":       since,
	})
}

// HandleRecentWinners handles GET /leaderboards/trophies/recent
// Query parameters:
//   - limit: Maximum trophies to return (default: 10, max: 100)
func (h *LeaderboardsHandler) HandleRecentWinners(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		if limit < 1 || limit > 100 {
			http.Error(w, "Limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
	}

	winners, err := h.db.RecentTrophyWinners(limit)
	if err != nil {
		h.logger.Error("Failed to query recent winners", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if winners == nil {
		winners = []*database.TrophyWinnerRow{}
	}

	h.writeJSON(w, map[string]interface{}{"winners": winners})
}

// HandleWeeklyKudos handles GET /leaderboards/kudos/weekly. The window is
// the current week, Monday 00:00 UTC to now.
func (h *LeaderboardsHandler) HandleWeeklyKudos(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	weekStart := currentWeekStartUTC(h.now())
	weekEnd := weekStart.AddDate(0, 0, 7)

	rows, err := h.db.WeeklyKudosLeaderboard(weekStart.Unix(), weekEnd.Unix())
	if err != nil {
		h.logger.Error("Failed to query weekly kudos leaderboard", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*database.KudosLeaderboardRow{}
	}

	h.writeJSON(w, map[string]interface{}{
		"leaderboard": rows,
		"week_start":  weekStart.Unix(),
	})
}

// HandleAllTimeKudos handles GET /leaderboards/kudos/all-time
func (h *LeaderboardsHandler) HandleAllTimeKudos(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	rows, err := h.db.AllTimeKudosLeaderboard()
	if err != nil {
		h.logger.Error("Failed to query all-time kudos leaderboard", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*database.KudosLeaderboardRow{}
	}

	h.writeJSON(w, map[string]interface{}{"leaderboard": rows})
}

// HandleTopActivity handles GET /leaderboards/kudos/top-activity. Returns
// {"activity": null} when nothing is stored yet.
func (h *LeaderboardsHandler) HandleTopActivity(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	top, err := h.db.TopKudosActivity()
	if err != nil {
		h.logger.Error("Failed to query top activity", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{"activity": top})
}

// HandleSyncRuns handles GET /sync-runs
// Query parameters:
//   - limit: Maximum runs to return (default: 20, max: 100)
func (h *LeaderboardsHandler) HandleSyncRuns(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		if limit < 1 || limit > 100 {
			http.Error(w, "Limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
	}

	runs, err := h.db.ListRecentSyncRuns(limit)
	if err != nil {
		h.logger.Error("Failed to query sync runs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*database.SyncRun{}
	}

	h.writeJSON(w, map[string]interface{}{"runs": runs})
}

// currentWeekStartUTC returns the Monday 00:00 UTC boundary at or before t
func currentWeekStartUTC(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-daysSinceMonday, 0, 0, 0, 0, time.UTC)
}
