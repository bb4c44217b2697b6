// Package poster runs the scheduled publishing loop: pick a topic, generate a post, publish it,
// and back off when the loop itself keeps failing.
package poster

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/linkedin-autoposter/internal/analytics"
	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/metrics"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/retry"
	"github.com/linkedin-autoposter/internal/schedule"
	"github.com/linkedin-autoposter/pkg/logger"
	"github.com/linkedin-autoposter/pkg/ratelimit"
)

// TopicSelector picks the topic of the next post
type TopicSelector interface {
	Select(catalog []string, performance map[string]float64) string
}

// ContentGenerator writes a draft about a topic
type ContentGenerator interface {
	Generate(ctx context.Context, topic string) (*models.Draft, error)
}

// Publisher shares a draft and returns the post id
type Publisher interface {
	Publish(ctx context.Context, draft *models.Draft) (string, error)
}

// ActivityStore is the activity log and performance source of the loop
type ActivityStore interface {
	LogActivity(ctx context.Context, activityType models.ActivityType, id string, metadata models.JSON) error
	TopicPerformance(ctx context.Context) (map[string]float64, error)
	Review(ctx context.Context) (*analytics.Report, error)
}

// Deps are the collaborators of the scheduler
type Deps struct {
	Selector  TopicSelector
	Generator ContentGenerator
	Publisher Publisher
	Store     ActivityStore
	Metrics   *metrics.Metrics // optional
	Out       io.Writer        // user-facing messages, stdout when nil
}

// RunState is owned by the loop
type RunState struct {
	Running           bool
	PostsCount        int
	ConsecutiveErrors int
}

// UnclassifiedError is a loop failure that carries no adapter classification, such as a recovered panic
type UnclassifiedError struct {
	Cause any
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("unclassified error: %v", e.Cause)
}

// Scheduler drives publish cycles, one at a time
type Scheduler struct {
	cfg     config.Config
	deps    Deps
	policy  *retry.Policy
	log     *logger.Logger
	out     io.Writer
	metrics *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand

	state          RunState
	catalog        []string
	plan           *schedule.Plan
	adaptation     cron.Schedule
	nextAdaptation time.Time
}

// NewScheduler creates a scheduler. The config is copied and owned by the scheduler from here on.
func NewScheduler(cfg *config.Config, deps Deps, log *logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cfg:     *cfg,
		deps:    deps,
		policy:  retry.NewPolicy(cfg.Retry, log),
		log:     log.WithComponent("scheduler"),
		out:     deps.Out,
		metrics: deps.Metrics,
		now:     time.Now,
		sleep:   ratelimit.Sleep,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		catalog: append([]string(nil), cfg.Content.Topics...),
	}
	if s.out == nil {
		s.out = os.Stdout
	}

	if cfg.Scheduler.AdaptationEnabled && cfg.Scheduler.AdaptationCron != "" {
		sched, err := cron.ParseStandard(cfg.Scheduler.AdaptationCron)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "scheduler.adaptation_cron", Reason: err.Error()}
		}
		s.adaptation = sched
	}
	return s, nil
}

// State returns a copy of the run state
func (s *Scheduler) State() RunState {
	return s.state
}

// Catalog returns the topics the loop currently draws from
func (s *Scheduler) Catalog() []string {
	return s.catalog
}

// Config returns the live configuration, including adaptation changes
func (s *Scheduler) Config() config.Config {
	return s.cfg
}

// init prepares the time-of-day plan and the adaptation trigger
func (s *Scheduler) init(now time.Time) error {
	if s.cfg.Scheduler.Mode == config.ModeTimes {
		entries, err := s.cfg.Scheduler.Entries()
		if err != nil {
			return &config.ConfigurationError{Field: "scheduler.posting_schedule", Reason: err.Error()}
		}
		plan, err := schedule.NewPlan(entries, now)
		if err != nil {
			return err
		}
		s.plan = plan
	}
	if s.adaptation != nil {
		s.nextAdaptation = s.adaptation.Next(now)
	}
	return nil
}

// Start runs the loop until ctx is cancelled or too many consecutive ticks fail.
// Cancellation is a clean stop and returns nil.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.init(s.now()); err != nil {
		return err
	}

	s.state.Running = true
	s.log.Info().
		Str("mode", s.cfg.Scheduler.Mode).
		Strs("topics", s.catalog).
		Msg("Scheduler started")
	if s.plan != nil {
		fmt.Fprintf(s.out, "Scheduler started, posting at %v (next run %s)\n",
			schedule.Format(s.plan.Entries()), s.plan.NextRun().Format("2006-01-02 15:04"))
	} else {
		fmt.Fprintf(s.out, "Scheduler started, posting every %d-%d minutes\n",
			s.cfg.Scheduler.MinIntervalMinutes, s.cfg.Scheduler.MaxIntervalMinutes)
	}

	defer func() {
		s.state.Running = false
		s.log.Info().Int("posts", s.state.PostsCount).Msg("Scheduler stopped")
		fmt.Fprintf(s.out, "Scheduler stopped. Total posts: %d\n", s.state.PostsCount)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		wait, err := s.safeTick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			s.state.ConsecutiveErrors++
			s.metrics.ObserveTickFailure(s.state.ConsecutiveErrors)
			s.log.Error().
				Err(err).
				Int("consecutive_errors", s.state.ConsecutiveErrors).
				Msg("Scheduler tick failed")
			fmt.Fprintf(s.out, "Error in scheduler loop: %v\n", err)

			if s.state.ConsecutiveErrors >= s.cfg.Backoff.MaxConsecutiveErrors {
				s.log.Error().Int("consecutive_errors", s.state.ConsecutiveErrors).Msg("Too many consecutive errors, stopping")
				return fmt.Errorf("scheduler stopped after %d consecutive errors: %w", s.state.ConsecutiveErrors, err)
			}

			wait = retry.TickBackoff(s.state.ConsecutiveErrors, s.cfg.Backoff.Base, s.cfg.Backoff.Cap)
			s.log.Warn().Dur("backoff", wait).Msg("Backing off before next tick")
		} else {
			s.state.ConsecutiveErrors = 0
			s.metrics.ObserveTickSuccess()
		}

		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// safeTick runs one tick and turns a panic into an UnclassifiedError
func (s *Scheduler) safeTick(ctx context.Context) (wait time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ObserveRecovered()
			s.log.Error().Interface("panic", r).Msg("Recovered from panic in scheduler tick")
			err = &UnclassifiedError{Cause: r}
		}
	}()
	return s.tick(ctx)
}

// tick runs whatever is due and returns how long to sleep before the next tick
func (s *Scheduler) tick(ctx context.Context) (time.Duration, error) {
	now := s.now()

	var wait time.Duration
	if s.cfg.Scheduler.Mode == config.ModeInterval {
		if _, err := s.RunOnce(ctx); err != nil {
			return 0, err
		}
		wait = schedule.RandomInterval(s.rng, s.cfg.Scheduler.MinIntervalMinutes, s.cfg.Scheduler.MaxIntervalMinutes)
		s.log.Info().Dur("next_in", wait).Msg("Next post scheduled")
	} else {
		wait = s.cfg.Scheduler.TickInterval
		if due := s.plan.Due(now); len(due) > 0 {
			// entries that came due together collapse into a single cycle
			s.plan.Advance(now)
			s.log.Info().Strs("due", schedule.Format(due)).Msg("Posting time reached")
			if _, err := s.RunOnce(ctx); err != nil {
				return 0, err
			}
			s.log.Info().Time("next_run", s.plan.NextRun()).Msg("Next post scheduled")
		}
	}

	// adaptation runs after publishing so a replaced plan never skips a post due this tick
	if s.adaptation != nil && !now.Before(s.nextAdaptation) {
		s.nextAdaptation = s.adaptation.Next(now)
		if _, err := s.Adapt(ctx, now); err != nil {
			return 0, err
		}
	}
	return wait, nil
}

// RunOnce runs a single publish cycle. A cycle that exhausts its retries is recorded and
// reported through the attempt; the returned error is reserved for failures of the loop
// itself, such as an activity log write.
func (s *Scheduler) RunOnce(ctx context.Context) (*models.PostAttempt, error) {
	performance, err := s.deps.Store.TopicPerformance(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load topic performance, selecting uniformly")
		performance = nil
	}

	attempt := &models.PostAttempt{
		Topic:   s.deps.Selector.Select(s.catalog, performance),
		Outcome: models.OutcomePending,
	}
	log := s.log.WithTopic(attempt.Topic)
	log.Info().Msg("Starting publish cycle")

	postID, err := retry.Do(ctx, s.policy, func(ctx context.Context, n int) (string, error) {
		attempt.Attempts = n
		draft, err := s.deps.Generator.Generate(ctx, attempt.Topic)
		if err != nil {
			return "", err
		}
		attempt.Text = draft.Text
		return s.deps.Publisher.Publish(ctx, draft)
	})

	if err != nil {
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		attempt.Outcome = models.OutcomeFailed
		attempt.Err = err
		return attempt, s.recordFailure(ctx, attempt)
	}

	attempt.Outcome = models.OutcomePublished
	attempt.PostID = postID
	s.state.PostsCount++
	s.metrics.ObservePost(attempt.Attempts)

	log.WithPostID(postID).Info().
		Int("attempts", attempt.Attempts).
		Int("posts_count", s.state.PostsCount).
		Msg("Post published")
	fmt.Fprintf(s.out, "Posted about %q (id %s)\n", attempt.Topic, postID)

	if err := s.deps.Store.LogActivity(ctx, models.ActivityPost, postID, models.JSON{
		models.MetaTopic:    attempt.Topic,
		models.MetaAttempts: attempt.Attempts,
	}); err != nil {
		return attempt, fmt.Errorf("failed to record post %s: %w", postID, err)
	}
	return attempt, nil
}

func (s *Scheduler) recordFailure(ctx context.Context, attempt *models.PostAttempt) error {
	kind := apierr.KindOf(attempt.Err)
	s.metrics.ObserveCycleFailure(string(kind), attempt.Attempts)

	s.log.WithTopic(attempt.Topic).Error().
		Err(attempt.Err).
		Int("attempts", attempt.Attempts).
		Str("stage", string(apierr.StageOf(attempt.Err))).
		Msg("Publish cycle failed")
	fmt.Fprintf(s.out, "Failed to post about %q after %d attempts: %v\n", attempt.Topic, attempt.Attempts, attempt.Err)

	meta := models.JSON{
		models.MetaTopic:    attempt.Topic,
		models.MetaAttempts: attempt.Attempts,
		models.MetaError:    attempt.Err.Error(),
	}
	if stage := apierr.StageOf(attempt.Err); stage != "" {
		meta["stage"] = string(stage)
	}
	if kind != "" {
		meta["kind"] = string(kind)
	}
	if err := s.deps.Store.LogActivity(ctx, models.ActivityPostFailed, uuid.NewString(), meta); err != nil {
		return fmt.Errorf("failed to record failed post: %w", err)
	}
	return nil
}
