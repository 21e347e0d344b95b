package database

// SchemaVersion is the schema generation this binary understands. The
// database records its version in schema_meta; a mismatch at startup is a
// hard error rather than a runtime table-existence probe.
const SchemaVersion = 1

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Schema version record, checked once at startup
CREATE TABLE IF NOT EXISTS schema_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL
);

-- Users table: Strava athletes who have authorized the application
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    strava_athlete_id INTEGER NOT NULL UNIQUE,

    -- Profile
    firstname TEXT,
    lastname TEXT,
    profile_picture TEXT,

    -- OAuth tokens
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    token_expires_at INTEGER NOT NULL,

    -- Visibility of this user on club leaderboards
    privacy_level TEXT NOT NULL DEFAULT 'club_only',

    -- Users are soft-deactivated, never deleted
    is_active BOOLEAN NOT NULL DEFAULT 1,

    -- Sync bookkeeping
    last_sync_at INTEGER,
    last_sync_error TEXT,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Activities table: one row per (user, external activity)
CREATE TABLE IF NOT EXISTS activities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    activity_id INTEGER NOT NULL,

    name TEXT,
    type TEXT,
    start_date INTEGER,  -- Unix timestamp
    distance REAL,
    moving_time INTEGER,
    elapsed_time INTEGER,
    total_elevation_gain REAL,
    average_speed REAL,
    max_speed REAL,
    average_heartrate REAL,
    max_heartrate REAL,
    calories REAL,

    -- Fields that legitimately change after first sight
    kudos_count INTEGER NOT NULL DEFAULT 0,
    -- 'only_me' is the privacy-safe default until sync reports otherwise
    visibility TEXT NOT NULL DEFAULT 'only_me',
    start_lat REAL,
    start_lng REAL,

    -- Segment enrichment flag, set once and never reset
    segments_fetched BOOLEAN NOT NULL DEFAULT 0,

    UNIQUE(user_id, activity_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Heart-rate zone distribution per activity, written at most once
CREATE TABLE IF NOT EXISTS activity_hr_zones (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    activity_id INTEGER NOT NULL,
    zone_1_seconds INTEGER NOT NULL DEFAULT 0,
    zone_2_seconds INTEGER NOT NULL DEFAULT 0,
    zone_3_seconds INTEGER NOT NULL DEFAULT 0,
    zone_4_seconds INTEGER NOT NULL DEFAULT 0,
    zone_5_seconds INTEGER NOT NULL DEFAULT 0,
    fetched_at INTEGER NOT NULL,
    UNIQUE(user_id, activity_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Segments are global master data, not user-scoped
CREATE TABLE IF NOT EXISTS segments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    strava_segment_id INTEGER NOT NULL UNIQUE,
    name TEXT NOT NULL,
    distance REAL,
    average_grade REAL,
    maximum_grade REAL,
    city TEXT,
    state TEXT,
    climb_category INTEGER NOT NULL DEFAULT 0
);

-- Per-user segment effort records
CREATE TABLE IF NOT EXISTS segment_efforts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    activity_id INTEGER NOT NULL,
    strava_segment_id INTEGER NOT NULL,
    strava_effort_id INTEGER NOT NULL,
    elapsed_time INTEGER,
    moving_time INTEGER,
    start_date INTEGER,
    pr_rank INTEGER,
    kom_rank INTEGER,
    average_heartrate REAL,
    max_heartrate REAL,
    fetched_at INTEGER NOT NULL,
    UNIQUE(user_id, strava_effort_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (strava_segment_id) REFERENCES segments(strava_segment_id)
);

-- Weekly distance trophies; a (user, week) row is immutable once written
CREATE TABLE IF NOT EXISTS weekly_trophies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    week_start INTEGER NOT NULL,  -- Unix timestamp of Monday 00:00 UTC
    week_end INTEGER NOT NULL,
    total_distance REAL NOT NULL,
    activity_count INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE(user_id, week_start),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Operator-facing log of scheduled runs
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_type TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    users_total INTEGER NOT NULL DEFAULT 0,
    users_succeeded INTEGER NOT NULL DEFAULT 0,
    users_failed INTEGER NOT NULL DEFAULT 0,
    new_activities INTEGER NOT NULL DEFAULT 0,
    weeks_processed INTEGER NOT NULL DEFAULT 0,
    trophies_awarded INTEGER NOT NULL DEFAULT 0,
    errors TEXT  -- JSON array
);

-- Indexes for users table
CREATE INDEX IF NOT EXISTS idx_users_strava_id ON users(strava_athlete_id);
CREATE INDEX IF NOT EXISTS idx_users_active ON users(is_active);

-- Indexes for activities table
CREATE INDEX IF NOT EXISTS idx_activities_user_id ON activities(user_id);
CREATE INDEX IF NOT EXISTS idx_activities_start_date ON activities(start_date DESC);
CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(type);
CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_date DESC);
CREATE INDEX IF NOT EXISTS idx_activities_needs_segments ON activities(user_id, segments_fetched) WHERE segments_fetched = 0;

-- Indexes for enrichment tables
CREATE INDEX IF NOT EXISTS idx_hr_zones_user_activity ON activity_hr_zones(user_id, activity_id);
CREATE INDEX IF NOT EXISTS idx_segment_efforts_user_segment ON segment_efforts(user_id, strava_segment_id);
CREATE INDEX IF NOT EXISTS idx_segment_efforts_activity ON segment_efforts(user_id, activity_id);

-- Indexes for weekly_trophies table
CREATE INDEX IF NOT EXISTS idx_weekly_trophies_week ON weekly_trophies(week_start, week_end);
CREATE INDEX IF NOT EXISTS idx_weekly_trophies_user ON weekly_trophies(user_id);

-- Indexes for sync_runs table
CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at DESC);
`
