package linkedin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/storage/sqlite"
	"github.com/linkedin-autoposter/pkg/logger"
)

func newTokenRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func tokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":5184000}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAccessTokenStillValid(t *testing.T) {
	m, err := NewTokenManager(config.LinkedInConfig{
		AccessToken:    "env-token",
		TokenExpiresAt: time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, nil, logger.Nop())
	require.NoError(t, err)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-token", tok)
}

func TestAccessTokenRefreshesAndPersists(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	repo := newTokenRepo(t)

	m, err := NewTokenManager(config.LinkedInConfig{
		ClientID:       "client",
		ClientSecret:   "secret",
		TokenURL:       srv.URL,
		AccessToken:    "old",
		RefreshToken:   "r1",
		TokenExpiresAt: time.Now().Add(time.Minute).Format(time.RFC3339),
	}, repo, logger.Nop())
	require.NoError(t, err)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.True(t, m.ExpiresAt().After(time.Now().Add(24*time.Hour)))

	// the refreshed token is reused, not refreshed again
	tok, err = m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.EqualValues(t, 1, calls.Load())

	stored, err := repo.GetToken(context.Background(), models.ProviderLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "r1", stored.RefreshToken)
}

func TestStoredTokenTakesPrecedence(t *testing.T) {
	repo := newTokenRepo(t)
	require.NoError(t, repo.SaveToken(context.Background(), &models.OAuthToken{
		Provider:    models.ProviderLinkedIn,
		AccessToken: "stored",
		ExpiresAt:   time.Now().Add(30 * 24 * time.Hour),
	}))

	m, err := NewTokenManager(config.LinkedInConfig{
		AccessToken:    "env-token",
		TokenExpiresAt: time.Now().Add(-time.Hour).Format(time.RFC3339),
	}, repo, logger.Nop())
	require.NoError(t, err)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", tok)
}

func TestExpiredTokenWithoutRefreshIsAuthError(t *testing.T) {
	m, err := NewTokenManager(config.LinkedInConfig{
		AccessToken:    "old",
		TokenExpiresAt: time.Now().Add(-time.Hour).Format(time.RFC3339),
	}, nil, logger.Nop())
	require.NoError(t, err)

	_, err = m.AccessToken(context.Background())
	assert.True(t, apierr.IsAuth(err))
}

func TestNoTokenIsAuthError(t *testing.T) {
	m, err := NewTokenManager(config.LinkedInConfig{}, nil, logger.Nop())
	require.NoError(t, err)

	_, err = m.AccessToken(context.Background())
	assert.True(t, apierr.IsAuth(err))
}

func TestInvalidExpiry(t *testing.T) {
	_, err := NewTokenManager(config.LinkedInConfig{AccessToken: "x", TokenExpiresAt: "tomorrow"}, nil, logger.Nop())
	assert.True(t, config.IsConfigurationError(err))
}
