// Package app wires configuration, storage and the API clients shared by the binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/linkedin-autoposter/internal/agent/poster"
	"github.com/linkedin-autoposter/internal/agent/responder"
	"github.com/linkedin-autoposter/internal/ai"
	"github.com/linkedin-autoposter/internal/analytics"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/content"
	"github.com/linkedin-autoposter/internal/linkedin"
	"github.com/linkedin-autoposter/internal/media/unsplash"
	"github.com/linkedin-autoposter/internal/metrics"
	"github.com/linkedin-autoposter/internal/storage/redis"
	"github.com/linkedin-autoposter/internal/storage/sqlite"
	"github.com/linkedin-autoposter/internal/topic"
	"github.com/linkedin-autoposter/internal/tracker"
	"github.com/linkedin-autoposter/pkg/logger"
	"github.com/linkedin-autoposter/pkg/ratelimit"
)

// App holds the components built from one configuration
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Repo    *sqlite.Repository
	Store   *analytics.Store
	Limiter *ratelimit.MultiLimiter
	Metrics *metrics.Metrics

	tokens    *linkedin.TokenManager
	linkedin  *linkedin.Client
	generator *content.Generator
	seen      responder.SeenStore
	closers   []func() error
}

// LoadConfig loads configuration and builds the logger it describes
func LoadConfig(path string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return cfg, log, nil
}

// New opens storage and the activity mirror. API clients are built on first use so commands
// that only read the activity log run without credentials.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Repo:    repo,
		Limiter: newLimiter(cfg.RateLimit),
		Metrics: metrics.New(),
		closers: []func() error{repo.Close},
	}

	var mirror analytics.Mirror
	sheets, err := tracker.NewSheetsTracker(ctx, cfg.Tracker, a.Limiter, log)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to connect to Google Sheets: %w", err)
	}
	if sheets != nil {
		if err := sheets.InitializeSheet(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize activity sheet, mirroring disabled")
		} else {
			mirror = sheets
			log.Info().Str("spreadsheet_id", cfg.Tracker.SpreadsheetID).Msg("Mirroring activities to Google Sheets")
		}
	}
	a.Store = analytics.NewStore(repo, mirror, log)

	return a, nil
}

func newLimiter(cfg config.RateLimitConfig) *ratelimit.MultiLimiter {
	limiter := ratelimit.NewDefaultLimiter()
	if cfg.LinkedInRequestsPerDay > 0 {
		limiter.AddLimiter(ratelimit.LimiterLinkedIn, float64(cfg.LinkedInRequestsPerDay)/(24*60*60), 5)
	}
	if cfg.GeneratorRequestsPerMinute > 0 {
		limiter.AddPerMinute(ratelimit.LimiterGenerator, float64(cfg.GeneratorRequestsPerMinute), 2)
	}
	return limiter
}

// LinkedIn returns the LinkedIn client, reading tokens from config and the token table
func (a *App) LinkedIn() (*linkedin.Client, error) {
	if a.linkedin != nil {
		return a.linkedin, nil
	}
	tokens, err := linkedin.NewTokenManager(a.Config.LinkedIn, a.Repo, a.Log)
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	a.linkedin = linkedin.NewClient(a.Config.LinkedIn, tokens, a.Limiter, a.Log)
	return a.linkedin, nil
}

// Tokens returns the token manager behind the LinkedIn client
func (a *App) Tokens() (*linkedin.TokenManager, error) {
	if _, err := a.LinkedIn(); err != nil {
		return nil, err
	}
	return a.tokens, nil
}

// Generator returns the content generator for the configured provider
func (a *App) Generator() (*content.Generator, error) {
	if a.generator != nil {
		return a.generator, nil
	}
	completer, err := ai.NewCompleter(a.Config, a.Limiter, a.Log)
	if err != nil {
		return nil, err
	}

	var images content.ImageFinder
	if a.Config.Media.Enabled && a.Config.Media.UnsplashAPIKey != "" {
		rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		images = unsplash.NewClient(a.Config.Media, a.Limiter, rng, a.Log)
	}

	a.generator = content.NewGenerator(completer, a.Config.Content, images, a.Log)
	return a.generator, nil
}

// Scheduler builds the publishing loop. Credentials are required.
func (a *App) Scheduler(out io.Writer) (*poster.Scheduler, error) {
	if err := a.Config.RequireCredentials(); err != nil {
		return nil, err
	}
	gen, err := a.Generator()
	if err != nil {
		return nil, err
	}
	client, err := a.LinkedIn()
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return poster.NewScheduler(a.Config, poster.Deps{
		Selector:  topic.NewSelector(rng, a.Log),
		Generator: gen,
		Publisher: client,
		Store:     a.Store,
		Metrics:   a.Metrics,
		Out:       out,
	}, a.Log)
}

// Responder builds the comment responder. The processed-comment store is Redis when configured.
func (a *App) Responder(ctx context.Context, out io.Writer) (*responder.Responder, error) {
	if err := a.Config.RequireCredentials(); err != nil {
		return nil, err
	}
	gen, err := a.Generator()
	if err != nil {
		return nil, err
	}
	client, err := a.LinkedIn()
	if err != nil {
		return nil, err
	}
	seen, err := a.seenStore(ctx)
	if err != nil {
		return nil, err
	}

	r := responder.New(a.Config.Responder, client, gen, seen, a.Store, a.Metrics, a.Log)
	if out != nil {
		r.SetOutput(out)
	}
	return r, nil
}

func (a *App) seenStore(ctx context.Context) (responder.SeenStore, error) {
	if a.seen != nil {
		return a.seen, nil
	}
	if a.Config.Redis.Addr == "" {
		a.Log.Info().Msg("No redis address configured, processed comments are kept in memory")
		a.seen = responder.NewMemorySeenStore()
		return a.seen, nil
	}

	store, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.seen = store
	return a.seen, nil
}

// Close releases storage connections
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
