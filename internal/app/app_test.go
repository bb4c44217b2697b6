package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedin-autoposter/internal/agent/responder"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/storage/redis"
	"github.com/linkedin-autoposter/pkg/logger"
)

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "AUTOPOSTER_ANTHROPIC_API_KEY",
		"GEMINI_API_KEY", "AUTOPOSTER_GEMINI_API_KEY",
		"LINKEDIN_ACCESS_TOKEN", "AUTOPOSTER_LINKEDIN_ACCESS_TOKEN",
		"AUTOPOSTER_REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := "database:\n  dsn: " + filepath.Join(dir, "data", "test.db") + "\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewOpensStore(t *testing.T) {
	clearCredentials(t)
	a := newApp(t, loadConfig(t, ""))

	ctx := context.Background()
	require.NoError(t, a.Store.LogActivity(ctx, models.ActivityPost, "urn:li:share:1", models.JSON{models.MetaTopic: "Go"}))

	report, err := a.Store.WeeklyReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Posts.Total)
}

func TestSchedulerRequiresCredentials(t *testing.T) {
	clearCredentials(t)
	a := newApp(t, loadConfig(t, ""))

	_, err := a.Scheduler(io.Discard)
	assert.True(t, config.IsConfigurationError(err))

	_, err = a.Responder(context.Background(), io.Discard)
	assert.True(t, config.IsConfigurationError(err))
}

func TestSchedulerWithCredentials(t *testing.T) {
	clearCredentials(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "token")
	a := newApp(t, loadConfig(t, ""))

	s, err := a.Scheduler(io.Discard)
	require.NoError(t, err)
	assert.Equal(t, a.Config.Content.Topics, s.Catalog())
}

func TestResponderSeenStore(t *testing.T) {
	clearCredentials(t)
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "token")

	t.Run("memory without redis", func(t *testing.T) {
		a := newApp(t, loadConfig(t, "generator:\n  provider: gemini\n"))
		_, err := a.Responder(context.Background(), io.Discard)
		require.NoError(t, err)
		assert.IsType(t, &responder.MemorySeenStore{}, a.seen)
	})

	t.Run("redis when configured", func(t *testing.T) {
		mr := miniredis.RunT(t)
		a := newApp(t, loadConfig(t, "generator:\n  provider: gemini\nredis:\n  addr: \""+mr.Addr()+"\"\n"))
		_, err := a.Responder(context.Background(), io.Discard)
		require.NoError(t, err)
		assert.IsType(t, &redis.SeenStore{}, a.seen)
	})
}

func TestTokensUseConfiguredToken(t *testing.T) {
	clearCredentials(t)
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "token")
	a := newApp(t, loadConfig(t, ""))

	tokens, err := a.Tokens()
	require.NoError(t, err)
	token, err := tokens.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token", token)
}
