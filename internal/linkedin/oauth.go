package linkedin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/storage"
	"github.com/linkedin-autoposter/pkg/logger"
)

// refreshMargin is how long before expiry a token is refreshed
const refreshMargin = 5 * time.Minute

// TokenStore persists refreshed tokens
type TokenStore interface {
	SaveToken(ctx context.Context, token *models.OAuthToken) error
	GetToken(ctx context.Context, provider string) (*models.OAuthToken, error)
}

// TokenManager hands out a valid access token, refreshing it when it is about to expire.
// The initial token comes from configuration; a newer stored token takes precedence.
type TokenManager struct {
	config *oauth2.Config
	store  TokenStore // optional
	log    *logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *models.OAuthToken
	loaded  bool
}

// NewTokenManager creates a token manager. store may be nil.
func NewTokenManager(cfg config.LinkedInConfig, store TokenStore, log *logger.Logger) (*TokenManager, error) {
	expiry, err := cfg.TokenExpiry()
	if err != nil {
		return nil, err
	}

	m := &TokenManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		log:   log.WithComponent("oauth"),
		now:   time.Now,
	}

	if cfg.AccessToken != "" {
		m.current = &models.OAuthToken{
			Provider:     models.ProviderLinkedIn,
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			TokenType:    "Bearer",
			ExpiresAt:    expiry,
		}
	}
	return m, nil
}

// AccessToken returns a usable access token
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadStored(ctx)

	token := m.current
	if token == nil {
		return "", apierr.New(apierr.StagePublish, apierr.KindAuth, "no LinkedIn access token configured")
	}

	now := m.now()
	if !token.Expired(now, refreshMargin) {
		return token.AccessToken, nil
	}

	if !m.canRefresh(token) {
		if !token.Expired(now, 0) {
			m.log.Warn().Time("expires_at", token.ExpiresAt).Msg("Access token expires soon and cannot be refreshed")
			return token.AccessToken, nil
		}
		return "", apierr.New(apierr.StagePublish, apierr.KindAuth, "access token expired and no refresh token is configured")
	}

	refreshed, err := m.refresh(ctx, token)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// ExpiresAt returns the expiry of the current token. Zero means unknown.
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return time.Time{}
	}
	return m.current.ExpiresAt
}

func (m *TokenManager) canRefresh(token *models.OAuthToken) bool {
	return token.RefreshToken != "" && m.config.ClientID != "" && m.config.Endpoint.TokenURL != ""
}

// loadStored swaps in the persisted token once, if it is still valid
func (m *TokenManager) loadStored(ctx context.Context) {
	if m.loaded || m.store == nil {
		return
	}
	m.loaded = true

	stored, err := m.store.GetToken(ctx, models.ProviderLinkedIn)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn().Err(err).Msg("Failed to load stored token")
		}
		return
	}
	if stored.Expired(m.now(), 0) {
		return
	}
	if m.current != nil && !m.current.ExpiresAt.IsZero() && m.current.ExpiresAt.After(stored.ExpiresAt) {
		return
	}
	m.current = stored
	m.log.Debug().Time("expires_at", stored.ExpiresAt).Msg("Using stored access token")
}

func (m *TokenManager) refresh(ctx context.Context, token *models.OAuthToken) (*models.OAuthToken, error) {
	m.log.Info().Time("expires_at", token.ExpiresAt).Msg("Token expiring soon, refreshing")

	// An empty access token makes the source fetch a new one
	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to refresh token")
		return nil, apierr.Wrap(apierr.StagePublish, apierr.KindAuth, fmt.Errorf("failed to refresh token: %w", err))
	}

	updated := *token
	updated.FromOAuth2Token(fresh)
	if updated.TokenType == "" {
		updated.TokenType = "Bearer"
	}
	m.current = &updated

	if m.store != nil {
		if err := m.store.SaveToken(ctx, &updated); err != nil {
			m.log.Warn().Err(err).Msg("Failed to save refreshed token (in-memory updated)")
		}
	}

	m.log.Info().Time("expires_at", updated.ExpiresAt).Msg("Token refreshed successfully")
	return &updated, nil
}
