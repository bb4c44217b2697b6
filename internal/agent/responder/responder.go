// Package responder replies to new comments on the member's recent posts.
package responder

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/metrics"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/pkg/logger"
	"github.com/linkedin-autoposter/pkg/ratelimit"
)

// Reply statuses reported to metrics
const (
	StatusPosted = "posted"
	StatusFailed = "failed"
)

// LinkedIn is the part of the LinkedIn client the responder needs
type LinkedIn interface {
	UserURN(ctx context.Context) (string, error)
	ListRecentPosts(ctx context.Context, since time.Time, count int) ([]models.OwnPost, error)
	ListComments(ctx context.Context, postURN string) ([]models.Comment, error)
	ReplyToComment(ctx context.Context, comment models.Comment, text string) (string, error)
}

// ReplyGenerator writes the reply to a comment
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, postText, commentText string) (string, error)
}

// SeenStore remembers the comments already answered
type SeenStore interface {
	IsProcessed(ctx context.Context, commentID string) (bool, error)
	MarkProcessed(ctx context.Context, commentID string) error
}

// ActivityLogger records replies in the activity log
type ActivityLogger interface {
	LogActivity(ctx context.Context, activityType models.ActivityType, id string, metadata models.JSON) error
}

// MemorySeenStore keeps processed comment ids for the life of the process
type MemorySeenStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemorySeenStore creates an empty store
func NewMemorySeenStore() *MemorySeenStore {
	return &MemorySeenStore{seen: make(map[string]struct{})}
}

func (m *MemorySeenStore) IsProcessed(_ context.Context, commentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[commentID]
	return ok, nil
}

func (m *MemorySeenStore) MarkProcessed(_ context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[commentID] = struct{}{}
	return nil
}

// Result contains the outcome of one pass
type Result struct {
	PostsChecked  int
	CommentsFound int
	RepliesPosted int
	Skipped       int
	Errors        []error
	Duration      time.Duration
}

// Responder answers comments left by other members
type Responder struct {
	cfg       config.ResponderConfig
	linkedin  LinkedIn
	generator ReplyGenerator
	seen      SeenStore
	store     ActivityLogger
	metrics   *metrics.Metrics
	log       *logger.Logger
	out       io.Writer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand
}

// New creates a responder. store and m may be nil.
func New(
	cfg config.ResponderConfig,
	linkedin LinkedIn,
	generator ReplyGenerator,
	seen SeenStore,
	store ActivityLogger,
	m *metrics.Metrics,
	log *logger.Logger,
) *Responder {
	if seen == nil {
		seen = NewMemorySeenStore()
	}
	return &Responder{
		cfg:       cfg,
		linkedin:  linkedin,
		generator: generator,
		seen:      seen,
		store:     store,
		metrics:   m,
		log:       log.WithComponent("responder"),
		out:       os.Stdout,
		now:       time.Now,
		sleep:     ratelimit.Sleep,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetOutput redirects the user-facing reply summaries
func (r *Responder) SetOutput(w io.Writer) {
	r.out = w
}

// Run makes one pass over the recent posts. Failures on a single comment are collected in the
// result; auth and rate limit failures end the pass early and are returned.
func (r *Responder) Run(ctx context.Context) (*Result, error) {
	start := r.now()
	result := &Result{}

	me, err := r.linkedin.UserURN(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to resolve member urn: %w", err)
	}

	since := start.Add(-time.Duration(r.cfg.LookbackHours) * time.Hour)
	posts, err := r.linkedin.ListRecentPosts(ctx, since, r.cfg.MaxPosts)
	if err != nil {
		return result, fmt.Errorf("failed to list recent posts: %w", err)
	}
	r.log.Info().Int("posts", len(posts)).Msg("Checking recent posts for comments")

	for _, post := range posts {
		result.PostsChecked++

		comments, err := r.linkedin.ListComments(ctx, post.URN)
		if err != nil {
			if fatal(err) {
				return r.finish(result, start), err
			}
			r.log.Warn().Err(err).Str("post_urn", post.URN).Msg("Failed to list comments")
			result.Errors = append(result.Errors, err)
			continue
		}
		result.CommentsFound += len(comments)

		for _, comment := range comments {
			if comment.ActorURN == me {
				continue
			}
			if r.cfg.MaxRepliesPerRun > 0 && result.RepliesPosted >= r.cfg.MaxRepliesPerRun {
				r.log.Info().Int("max_replies", r.cfg.MaxRepliesPerRun).Msg("Reply limit reached for this run")
				return r.finish(result, start), nil
			}

			err := r.handle(ctx, post, comment, result)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return r.finish(result, start), ctx.Err()
			}
			if fatal(err) {
				return r.finish(result, start), err
			}
			r.log.Warn().Err(err).Str("comment_urn", comment.URN).Msg("Failed to reply to comment")
			result.Errors = append(result.Errors, err)
		}
	}

	return r.finish(result, start), nil
}

func (r *Responder) handle(ctx context.Context, post models.OwnPost, comment models.Comment, result *Result) error {
	key := commentKey(comment)
	processed, err := r.seen.IsProcessed(ctx, key)
	if err != nil {
		return err
	}
	if processed {
		result.Skipped++
		return nil
	}

	if result.RepliesPosted > 0 {
		if err := r.sleep(ctx, r.delay()); err != nil {
			return err
		}
	}

	text, err := r.generator.GenerateReply(ctx, post.Text, comment.Text)
	if err != nil {
		r.metrics.ObserveReply(StatusFailed)
		return fmt.Errorf("failed to generate reply: %w", err)
	}

	replyURN, err := r.linkedin.ReplyToComment(ctx, comment, text)
	if err != nil {
		r.metrics.ObserveReply(StatusFailed)
		return fmt.Errorf("failed to post reply: %w", err)
	}

	if err := r.seen.MarkProcessed(ctx, key); err != nil {
		r.log.Warn().Err(err).Str("comment_urn", comment.URN).Msg("Failed to mark comment as processed")
	}
	result.RepliesPosted++
	r.metrics.ObserveReply(StatusPosted)

	r.log.Info().
		Str("post_urn", post.URN).
		Str("comment_urn", comment.URN).
		Str("reply_urn", replyURN).
		Msg("Replied to comment")
	fmt.Fprintf(r.out, "Replied to %s: %q -> %q\n", comment.ActorURN, comment.Text, text)

	if r.store != nil {
		if err := r.store.LogActivity(ctx, models.ActivityReply, replyURN, models.JSON{
			models.MetaPostURN:    post.URN,
			models.MetaCommentURN: comment.URN,
			models.MetaStatus:     StatusPosted,
		}); err != nil {
			r.log.Warn().Err(err).Msg("Failed to record reply")
		}
	}
	return nil
}

func (r *Responder) finish(result *Result, start time.Time) *Result {
	result.Duration = r.now().Sub(start)
	r.log.Info().
		Int("posts", result.PostsChecked).
		Int("comments", result.CommentsFound).
		Int("replied", result.RepliesPosted).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("Responder pass completed")
	return result
}

// Loop polls until ctx is cancelled. A failed pass is logged and retried at the next poll.
func (r *Responder) Loop(ctx context.Context) error {
	r.log.Info().Dur("poll_interval", r.cfg.PollInterval).Msg("Comment responder started")
	for {
		if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Msg("Responder pass failed")
		}
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			r.log.Info().Msg("Comment responder stopped")
			return nil
		}
	}
}

// delay picks a pause in [MinDelay, MaxDelay] between two replies
func (r *Responder) delay() time.Duration {
	lo, hi := r.cfg.MinDelay, r.cfg.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.rng.Int64N(int64(hi-lo)+1))
}

func commentKey(c models.Comment) string {
	if c.ID != "" {
		return c.ID
	}
	return c.URN
}

// fatal errors make the rest of the pass pointless
func fatal(err error) bool {
	kind := apierr.KindOf(err)
	return kind == apierr.KindAuth || kind == apierr.KindRateLimit
}
