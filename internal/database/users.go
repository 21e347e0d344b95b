package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Privacy levels for users on club leaderboards
const (
	PrivacyPublic   = "public"
	PrivacyClubOnly = "club_only"
	PrivacyPrivate  = "private"
)

// User represents a Strava athlete who has authorized the application
type User struct {
	ID              int64
	StravaAthleteID int64
	Firstname       string
	Lastname        string
	ProfilePicture  string
	AccessToken     string
	RefreshToken    string
	TokenExpiresAt  int64
	PrivacyLevel    string
	IsActive        bool
	LastSyncAt      *int64
	LastSyncError   *string
	CreatedAt       int64
	UpdatedAt       int64
}

const userColumns = `id, strava_athlete_id, firstname, lastname, profile_picture,
	       access_token, refresh_token, token_expires_at,
	       privacy_level, is_active, last_sync_at, last_sync_error,
	       created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.StravaAthleteID, &u.Firstname, &u.Lastname, &u.ProfilePicture,
		&u.AccessToken, &u.RefreshToken, &u.TokenExpiresAt,
		&u.PrivacyLevel, &u.IsActive, &u.LastSyncAt, &u.LastSyncError,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates a user on first authentication or refreshes profile and
// token fields on a repeat authentication. Privacy level and active flag are
// left untouched for existing users.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().Unix()
	if u.PrivacyLevel == "" {
		u.PrivacyLevel = PrivacyClubOnly
	}

	_, err := db.conn.Exec(`
		INSERT INTO users (
			strava_athlete_id, firstname, lastname, profile_picture,
			access_token, refresh_token, token_expires_at,
			privacy_level, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(strava_athlete_id) DO UPDATE SET
			firstname = excluded.firstname,
			lastname = excluded.lastname,
			profile_picture = excluded.profile_picture,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expires_at = excluded.token_expires_at,
			updated_at = excluded.updated_at
	`, u.StravaAthleteID, u.Firstname, u.Lastname, u.ProfilePicture,
		u.AccessToken, u.RefreshToken, u.TokenExpiresAt,
		u.PrivacyLevel, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by internal ID
func (db *DB) GetUser(userID int64) (*User, error) {
	row := db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByAthleteID retrieves a user by Strava athlete ID
func (db *DB) GetUserByAthleteID(athleteID int64) (*User, error) {
	row := db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE strava_athlete_id = ?`, athleteID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by athlete id: %w", err)
	}
	return u, nil
}

// UpdateUserTokens persists a refreshed credential triple. Last writer wins;
// callers always read tokens fresh from storage before use.
func (db *DB) UpdateUserTokens(userID int64, accessToken, refreshToken string, expiresAt int64) error {
	result, err := db.conn.Exec(`
		UPDATE users
		SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?
	`, accessToken, refreshToken, expiresAt, time.Now().Unix(), userID)

	if err != nil {
		return fmt.Errorf("failed to update user tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// UpdateUserSyncState records the outcome of the latest sync cycle for a user
func (db *DB) UpdateUserSyncState(userID int64, lastSyncAt int64, syncError *string) error {
	_, err := db.conn.Exec(`
		UPDATE users
		SET last_sync_at = ?, last_sync_error = ?, updated_at = ?
		WHERE id = ?
	`, lastSyncAt, syncError, time.Now().Unix(), userID)

	if err != nil {
		return fmt.Errorf("failed to update user sync state: %w", err)
	}
	return nil
}

// DeactivateUser soft-deactivates a user; rows are never physically deleted
func (db *DB) DeactivateUser(userID int64) error {
	result, err := db.conn.Exec(`
		UPDATE users SET is_active = 0, updated_at = ? WHERE id = ?
	`, time.Now().Unix(), userID)

	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// ListActiveUsers returns all active users ordered by creation time
func (db *DB) ListActiveUsers() ([]*User, error) {
	rows, err := db.conn.Query(`SELECT ` + userColumns + ` FROM users WHERE is_active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// CountActiveUsers returns the number of active users
func (db *DB) CountActiveUsers() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM users WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}
