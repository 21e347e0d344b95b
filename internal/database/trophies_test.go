package database

import (
	"testing"
)

// Week of Monday 2024-01-01 00:00 UTC
const (
	testWeekStart = int64(1704067200)
	testWeekEnd   = testWeekStart + 7*24*3600
)

func TestWeeklyDistanceTotals(t *testing.T) {
	db := setupTestDB(t)
	u1 := createTestUser(t, db, 111)
	u2 := createTestUser(t, db, 222)

	save := func(userID, activityID, start int64, actType string, distance float64, visibility string) {
		t.Helper()
		a := testActivity(activityID, start)
		a.Type = actType
		a.Distance = distance
		a.Visibility = visibility
		if _, err := db.SaveActivities(userID, []*Activity{a}); err != nil {
			t.Fatalf("Failed to save activity: %v", err)
		}
	}

	save(u1.ID, 1, testWeekStart, "Run", 10000, VisibilityEveryone)
	save(u1.ID, 2, testWeekStart+3600, "Ride", 20000, VisibilityEveryone)
	save(u2.ID, 3, testWeekStart+7200, "Walk", 5000, VisibilityEveryone)
	// Excluded: hidden activity, non-qualifying type, outside window
	save(u2.ID, 4, testWeekStart+7300, "Run", 40000, VisibilityOnlyMe)
	save(u2.ID, 5, testWeekStart+7400, "Swim", 40000, VisibilityEveryone)
	save(u1.ID, 6, testWeekEnd, "Run", 40000, VisibilityEveryone)

	totals, err := WeeklyDistanceTotals(db.Conn(), testWeekStart, testWeekEnd)
	if err != nil {
		t.Fatalf("Failed to query totals: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("Expected 2 totals, got %d", len(totals))
	}

	if totals[0].UserID != u1.ID || totals[0].TotalDistance != 30000 {
		t.Errorf("Expected u1 first with 30000, got user %d distance %f", totals[0].UserID, totals[0].TotalDistance)
	}
	if totals[0].ActivityCount != 2 {
		t.Errorf("Expected 2 qualifying activities for u1, got %d", totals[0].ActivityCount)
	}
	if totals[1].UserID != u2.ID || totals[1].TotalDistance != 5000 {
		t.Errorf("Expected u2 second with 5000, got user %d distance %f", totals[1].UserID, totals[1].TotalDistance)
	}
}

func TestWeekHasTrophies(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, 111)

	has, err := WeekHasTrophies(db.Conn(), testWeekStart)
	if err != nil {
		t.Fatalf("Failed to check week: %v", err)
	}
	if has {
		t.Error("Expected no trophies for empty week")
	}

	trophy := &WeeklyTrophy{
		UserID:        u.ID,
		WeekStart:     testWeekStart,
		WeekEnd:       testWeekEnd,
		TotalDistance: 30000,
		ActivityCount: 2,
	}
	if err := InsertWeeklyTrophy(db.Conn(), trophy); err != nil {
		t.Fatalf("Failed to insert trophy: %v", err)
	}

	has, err = WeekHasTrophies(db.Conn(), testWeekStart)
	if err != nil {
		t.Fatalf("Failed to check week: %v", err)
	}
	if !has {
		t.Error("Expected week to have trophies")
	}

	// Unrelated weeks stay untouched
	has, err = WeekHasTrophies(db.Conn(), testWeekEnd)
	if err != nil {
		t.Fatalf("Failed to check next week: %v", err)
	}
	if has {
		t.Error("Expected next week to have no trophies")
	}
}

func TestTrophyOperationsInTransaction(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, 111)

	a := testActivity(1, testWeekStart)
	a.Distance = 12000
	if _, err := db.SaveActivities(u.ID, []*Activity{a}); err != nil {
		t.Fatalf("Failed to save activity: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}

	totals, err := WeeklyDistanceTotals(tx, testWeekStart, testWeekEnd)
	if err != nil {
		t.Fatalf("Failed to query totals in tx: %v", err)
	}
	if len(totals) != 1 {
		t.Fatalf("Expected 1 total, got %d", len(totals))
	}

	if err := InsertWeeklyTrophy(tx, &WeeklyTrophy{
		UserID:        u.ID,
		WeekStart:     testWeekStart,
		WeekEnd:       testWeekEnd,
		TotalDistance: totals[0].TotalDistance,
		ActivityCount: totals[0].ActivityCount,
	}); err != nil {
		t.Fatalf("Failed to insert trophy in tx: %v", err)
	}

	// Rolled-back awards leave no trace
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Failed to rollback: %v", err)
	}

	count, err := db.CountTrophies()
	if err != nil {
		t.Fatalf("Failed to count trophies: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 trophies after rollback, got %d", count)
	}
}

func TestListTrophiesForWeek(t *testing.T) {
	db := setupTestDB(t)
	u1 := createTestUser(t, db, 111)
	u2 := createTestUser(t, db, 222)

	// A tie week awards both users
	for _, userID := range []int64{u1.ID, u2.ID} {
		if err := InsertWeeklyTrophy(db.Conn(), &WeeklyTrophy{
			UserID:        userID,
			WeekStart:     testWeekStart,
			WeekEnd:       testWeekEnd,
			TotalDistance: 25000,
			ActivityCount: 3,
		}); err != nil {
			t.Fatalf("Failed to insert trophy: %v", err)
		}
	}

	trophies, err := db.ListTrophiesForWeek(testWeekStart)
	if err != nil {
		t.Fatalf("Failed to list trophies: %v", err)
	}
	if len(trophies) != 2 {
		t.Fatalf("Expected 2 trophies, got %d", len(trophies))
	}
	if trophies[0].TotalDistance != 25000 {
		t.Errorf("Expected distance 25000, got %f", trophies[0].TotalDistance)
	}
}
