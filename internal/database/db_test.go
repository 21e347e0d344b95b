package database

import (
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *DB, athleteID int64) *User {
	t.Helper()

	u := &User{
		StravaAthleteID: athleteID,
		Firstname:       "Test",
		Lastname:        "User",
		AccessToken:     "access",
		RefreshToken:    "refresh",
		TokenExpiresAt:  time.Now().Unix() + 3600,
	}
	if err := db.UpsertUser(u); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	created, err := db.GetUserByAthleteID(athleteID)
	if err != nil {
		t.Fatalf("Failed to get created user: %v", err)
	}
	if created == nil {
		t.Fatal("Expected created user, got nil")
	}
	return created
}

func TestSchemaVersionCheck(t *testing.T) {
	db := setupTestDB(t)

	if err := db.VerifySchemaVersion(); err != nil {
		t.Fatalf("Expected schema version to verify: %v", err)
	}

	// Init is idempotent and must not bump the recorded version
	if err := db.Init(); err != nil {
		t.Fatalf("Failed to re-init database: %v", err)
	}
	if err := db.VerifySchemaVersion(); err != nil {
		t.Fatalf("Expected schema version to verify after re-init: %v", err)
	}

	if _, err := db.Conn().Exec(`UPDATE schema_meta SET version = ? WHERE id = 1`, SchemaVersion+1); err != nil {
		t.Fatalf("Failed to bump schema version: %v", err)
	}
	if err := db.VerifySchemaVersion(); err == nil {
		t.Error("Expected version mismatch error, got nil")
	}
}

func TestSchemaVersionMissing(t *testing.T) {
	db, err := Open(t.TempDir() + "/empty.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.VerifySchemaVersion(); err == nil {
		t.Error("Expected error for uninitialized database, got nil")
	}
}

func TestHealth(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Health(); err != nil {
		t.Errorf("Expected healthy database: %v", err)
	}
}
