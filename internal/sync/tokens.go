package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strava-club-sync/internal/database"
	"strava-club-sync/internal/strava"
)

// Refresh tokens that expire within this window before using them
const tokenExpiryBuffer = 5 * time.Minute

// TokenManager hands out valid access tokens, refreshing and persisting them
// as needed. Tokens are always read fresh from the user row; concurrent
// refreshes are last-writer-wins.
type TokenManager struct {
	db     *database.DB
	client *strava.Client
	logger *slog.Logger
}

// NewTokenManager creates a token manager
func NewTokenManager(db *database.DB, client *strava.Client) *TokenManager {
	return &TokenManager{
		db:     db,
		client: client,
		logger: slog.Default(),
	}
}

// AccessToken returns a usable access token for the user. If the stored
// token expires within the buffer it is refreshed against Strava and the new
// credential triple is persisted before returning.
func (m *TokenManager) AccessToken(ctx context.Context, user *database.User) (string, error) {
	if time.Now().Add(tokenExpiryBuffer).Unix() < user.TokenExpiresAt {
		return user.AccessToken, nil
	}

	m.logger.Info("refreshing token", "user_id", user.ID, "expires_at", user.TokenExpiresAt)

	resp, err := m.client.RefreshToken(ctx, user.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token for user %d: %w", user.ID, err)
	}

	if err := m.db.UpdateUserTokens(user.ID, resp.AccessToken, resp.RefreshToken, resp.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token for user %d: %w", user.ID, err)
	}

	user.AccessToken = resp.AccessToken
	user.RefreshToken = resp.RefreshToken
	user.TokenExpiresAt = resp.ExpiresAt

	return resp.AccessToken, nil
}
