package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"strava-club-sync/internal/config"
	"strava-club-sync/internal/database"
)

const testAPIKey = "test_api_key"

// Wednesday in the week starting Monday 2024-01-01 00:00:00 UTC
var testNow = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func setupHandler(t *testing.T) (*LeaderboardsHandler, *database.DB) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}

	h := NewLeaderboardsHandler(db, &config.Config{InternalAPIKey: testAPIKey})
	h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h.now = func() time.Time { return testNow }
	return h, db
}

func createHandlerUser(t *testing.T, db *database.DB, athleteID int64) *database.User {
	t.Helper()

	u := &database.User{
		StravaAthleteID: athleteID,
		Firstname:       "Test",
		Lastname:        "Athlete",
		AccessToken:     "access",
		RefreshToken:    "refresh",
		TokenExpiresAt:  time.Now().Add(time.Hour).Unix(),
	}
	if err := db.UpsertUser(u); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	stored, err := db.GetUserByAthleteID(athleteID)
	if err != nil {
		t.Fatalf("Failed to load user: %v", err)
	}
	return stored
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, target string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestEndpointsRequireAuth(t *testing.T) {
	h, _ := setupHandler(t)

	endpoints := map[string]http.HandlerFunc{
		"/leaderboards/trophies":           h.HandleTrophyLeaderboard,
		"/leaderboards/trophies/recent":    h.HandleRecentWinners,
		"/leaderboards/kudos/weekly":       h.HandleWeeklyKudos,
		"/leaderboards/kudos/all-time":     h.HandleAllTimeKudos,
		"/leaderboards/kudos/top-activity": h.HandleTopActivity,
		"/sync-runs":                       h.HandleSyncRuns,
	}

	for path, handler := range endpoints {
		rec := doRequest(t, handler, http.MethodGet, path, false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without auth, got %d", path, rec.Code)
		}

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer wrong_key")
		rec = httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 with wrong key, got %d", path, rec.Code)
		}

		rec = doRequest(t, handler, http.MethodPost, path, true)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405 for POST, got %d", path, rec.Code)
		}
	}
}

func TestTrophyLeaderboardEndpoint(t *testing.T) {
	h, db := setupHandler(t)
	u := createHandlerUser(t, db, 111)

	weekStart := int64(1704067200)
	if err := database.InsertWeeklyTrophy(db.Conn(), &database.WeeklyTrophy{
		UserID:        u.ID,
		WeekStart:     weekStart,
		WeekEnd:       weekStart + 7*24*3600,
		TotalDistance: 25000,
		ActivityCount: 3,
	}); err != nil {
		t.Fatalf("Failed to insert trophy: %v", err)
	}

	rec := doRequest(t, h.HandleTrophyLeaderboard, http.MethodGet, "/leaderboards/trophies", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}

	body := decodeBody(t, rec)
	var rows []*database.TrophyLeaderboardRow
	if err := json.Unmarshal(body["leaderboard"], &rows); err != nil {
		t.Fatalf("Failed to decode leaderboard: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].UserID != u.ID || rows[0].TrophyCount != 1 {
		t.Errorf("Unexpected row: %+v", rows[0])
	}

	// A since window past the trophy leaves it out
	rec = doRequest(t, h.HandleTrophyLeaderboard, http.MethodGet, "/leaderboards/trophies?since="+
		"1704672000", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if err := json.Unmarshal(body["leaderboard"], &rows); err != nil {
		t.Fatalf("Failed to decode leaderboard: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected empty leaderboard within window, got %d rows", len(rows))
	}

	rec = doRequest(t, h.HandleTrophyLeaderboard, http.MethodGet, "/leaderboards/trophies?since=abc", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad since, got %d", rec.Code)
	}
}

func TestRecentWinnersEndpoint(t *testing.T) {
	h, db := setupHandler(t)
	u := createHandlerUser(t, db, 111)

	for i := int64(0); i < 3; i++ {
		ws := int64(1704067200) + i*7*24*3600
		if err := database.InsertWeeklyTrophy(db.Conn(), &database.WeeklyTrophy{
			UserID:        u.ID,
			WeekStart:     ws,
			WeekEnd:       ws + 7*24*3600,
			TotalDistance: 10000,
			ActivityCount: 1,
		}); err != nil {
			t.Fatalf("Failed to insert trophy: %v", err)
		}
	}

	rec := doRequest(t, h.HandleRecentWinners, http.MethodGet, "/leaderboards/trophies/recent?limit=2", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	var winners []*database.TrophyWinnerRow
	if err := json.Unmarshal(body["winners"], &winners); err != nil {
		t.Fatalf("Failed to decode winners: %v", err)
	}
	if len(winners) != 2 {
		t.Fatalf("Expected 2 winners, got %d", len(winners))
	}
	if winners[0].WeekStart <= winners[1].WeekStart {
		t.Errorf("Expected newest week first, got %d then %d", winners[0].WeekStart, winners[1].WeekStart)
	}

	for _, target := range []string{
		"/leaderboards/trophies/recent?limit=0",
		"/leaderboards/trophies/recent?limit=101",
		"/leaderboards/trophies/recent?limit=abc",
	} {
		rec := doRequest(t, h.HandleRecentWinners, http.MethodGet, target, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestWeeklyKudosEndpoint(t *testing.T) {
	h, db := setupHandler(t)
	u := createHandlerUser(t, db, 111)

	// testNow is Wednesday 2024-01-03; the week starts Monday 2024-01-01
	weekStart := int64(1704067200)

	save := func(activityID, start int64, kudos int) {
		t.Helper()
		if _, err := db.SaveActivities(u.ID, []*database.Activity{{
			ActivityID: activityID,
			Name:       "Morning Run",
			Type:       "Run",
			StartDate:  start,
			Distance:   5000,
			KudosCount: kudos,
			Visibility: database.VisibilityEveryone,
		}}); err != nil {
			t.Fatalf("Failed to save activity: %v", err)
		}
	}

	save(1, weekStart+3600, 5)
	save(2, weekStart+7200, 7)
	save(3, weekStart-100, 99) // previous week

	rec := doRequest(t, h.HandleWeeklyKudos, http.MethodGet, "/leaderboards/kudos/weekly", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)

	var gotWeekStart int64
	if err := json.Unmarshal(body["week_start"], &gotWeekStart); err != nil {
		t.Fatalf("Failed to decode week_start: %v", err)
	}
	if gotWeekStart != weekStart {
		t.Errorf("Expected week_start %d, got %d", weekStart, gotWeekStart)
	}

	var rows []*database.KudosLeaderboardRow
	if err := json.Unmarshal(body["leaderboard"], &rows); err != nil {
		t.Fatalf("Failed to decode leaderboard: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].TotalKudos != 12 {
		t.Errorf("Expected 12 kudos in the current week, got %d", rows[0].TotalKudos)
	}

	rec = doRequest(t, h.HandleAllTimeKudos, http.MethodGet, "/leaderboards/kudos/all-time", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if err := json.Unmarshal(body["leaderboard"], &rows); err != nil {
		t.Fatalf("Failed to decode leaderboard: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalKudos != 111 {
		t.Errorf("Expected one all-time row with 111 kudos, got %+v", rows)
	}
}

func TestTopActivityEndpoint(t *testing.T) {
	h, db := setupHandler(t)

	rec := doRequest(t, h.HandleTopActivity, http.MethodGet, "/leaderboards/kudos/top-activity", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if string(body["activity"]) != "null" {
		t.Errorf("Expected null activity on empty store, got %s", body["activity"])
	}

	u := createHandlerUser(t, db, 111)
	if _, err := db.SaveActivities(u.ID, []*database.Activity{{
		ActivityID: 42,
		Name:       "Big Ride",
		Type:       "Ride",
		StartDate:  testNow.Add(-time.Hour).Unix(),
		Distance:   80000,
		KudosCount: 31,
		Visibility: database.VisibilityEveryone,
	}}); err != nil {
		t.Fatalf("Failed to save activity: %v", err)
	}

	rec = doRequest(t, h.HandleTopActivity, http.MethodGet, "/leaderboards/kudos/top-activity", true)
	body = decodeBody(t, rec)

	var top database.TopActivityRow
	if err := json.Unmarshal(body["activity"], &top); err != nil {
		t.Fatalf("Failed to decode top activity: %v", err)
	}
	if top.ActivityID != 42 || top.KudosCount != 31 {
		t.Errorf("Unexpected top activity: %+v", top)
	}
}

func TestSyncRunsEndpoint(t *testing.T) {
	h, db := setupHandler(t)

	runID, err := db.StartSyncRun(database.JobTypeActivitySync)
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	if err := db.FinishSyncRun(runID, &database.SyncRunStats{
		UsersTotal:     2,
		UsersSucceeded: 1,
		UsersFailed:    1,
		NewActivities:  7,
		Errors:         []string{"user 2: token refresh failed"},
	}); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	rec := doRequest(t, h.HandleSyncRuns, http.MethodGet, "/sync-runs", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	var runs []*database.SyncRun
	if err := json.Unmarshal(body["runs"], &runs); err != nil {
		t.Fatalf("Failed to decode runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].JobType != database.JobTypeActivitySync {
		t.Errorf("Expected job type %s, got %s", database.JobTypeActivitySync, runs[0].JobType)
	}
	if runs[0].NewActivities != 7 {
		t.Errorf("Expected 7 new activities, got %d", runs[0].NewActivities)
	}
	if len(runs[0].Errors) != 1 {
		t.Errorf("Expected 1 recorded error, got %d", len(runs[0].Errors))
	}

	rec = doRequest(t, h.HandleSyncRuns, http.MethodGet, "/sync-runs?limit=500", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for out-of-range limit, got %d", rec.Code)
	}
}
