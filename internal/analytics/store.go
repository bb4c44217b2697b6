// Package analytics records activities and builds the weekly performance report.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/storage"
	"github.com/linkedin-autoposter/pkg/logger"
)

// Mirror receives a copy of every logged activity
type Mirror interface {
	AppendActivity(ctx context.Context, activity *models.Activity) error
}

// Store is the activity log and topic performance owner
type Store struct {
	repo   storage.Repository
	mirror Mirror
	log    *logger.Logger
	now    func() time.Time
}

// NewStore creates a store. mirror may be nil.
func NewStore(repo storage.Repository, mirror Mirror, log *logger.Logger) *Store {
	return &Store{
		repo:   repo,
		mirror: mirror,
		log:    log.WithComponent("analytics"),
		now:    time.Now,
	}
}

// LogActivity appends an entry to the activity log. Mirror failures are logged, not returned.
func (s *Store) LogActivity(ctx context.Context, activityType models.ActivityType, id string, metadata models.JSON) error {
	if metadata == nil {
		metadata = models.JSON{}
	}
	now := s.now()
	if _, ok := metadata[models.MetaTimestamp]; !ok {
		metadata[models.MetaTimestamp] = now.UTC().Format(time.RFC3339)
	}

	activity := &models.Activity{
		ActivityID: id,
		Type:       activityType,
		Timestamp:  now,
		Metadata:   metadata,
	}
	if err := s.repo.LogActivity(ctx, activity); err != nil {
		return fmt.Errorf("failed to log %s activity: %w", activityType, err)
	}

	if s.mirror != nil {
		if err := s.mirror.AppendActivity(ctx, activity); err != nil {
			s.log.Warn().Err(err).Str("type", string(activityType)).Msg("Failed to mirror activity")
		}
	}
	return nil
}

// TopicPerformance returns the stored score of every topic
func (s *Store) TopicPerformance(ctx context.Context) (map[string]float64, error) {
	scores, err := s.repo.GetTopicScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic scores: %w", err)
	}
	perf := make(map[string]float64, len(scores))
	for _, sc := range scores {
		perf[sc.Topic] = sc.Score
	}
	return perf, nil
}

// RecordEngagement stores the engagement rate observed for a published post
func (s *Store) RecordEngagement(ctx context.Context, postID string, rate float64) error {
	if rate < 0 {
		return fmt.Errorf("engagement rate must not be negative, got %v", rate)
	}
	activity, err := s.repo.GetActivity(ctx, models.ActivityPost, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("post %s not found in activity log: %w", postID, err)
		}
		return err
	}
	if activity.Metadata == nil {
		activity.Metadata = models.JSON{}
	}
	activity.Metadata[models.MetaEngagementRate] = rate
	if err := s.repo.UpdateActivityMetadata(ctx, activity); err != nil {
		return fmt.Errorf("failed to record engagement for %s: %w", postID, err)
	}
	return nil
}

// RecordConnection logs a connection request and its status (pending or accepted)
func (s *Store) RecordConnection(ctx context.Context, id, status string) error {
	return s.LogActivity(ctx, models.ActivityConnection, id, models.JSON{models.MetaStatus: status})
}

// RecordEngagementAction logs an engagement the member performed (like, comment, reply)
func (s *Store) RecordEngagementAction(ctx context.Context, id, kind string) error {
	return s.LogActivity(ctx, models.ActivityEngagement, id, models.JSON{models.MetaEngagementType: kind})
}

// Review builds the weekly report and persists the refreshed topic scores
func (s *Store) Review(ctx context.Context) (*Report, error) {
	report, err := s.WeeklyReport(ctx)
	if err != nil {
		return nil, err
	}

	if len(report.TopicPerformance) > 0 {
		scores := make([]*models.TopicScore, 0, len(report.TopicPerformance))
		for topic, score := range report.TopicPerformance {
			scores = append(scores, &models.TopicScore{
				Topic:   topic,
				Score:   score,
				Samples: report.topicSamples[topic],
			})
		}
		if err := s.repo.SaveTopicScores(ctx, scores); err != nil {
			return nil, fmt.Errorf("failed to save topic scores: %w", err)
		}
	}

	s.log.Info().
		Int("posts", report.Posts.Total).
		Float64("avg_engagement", report.Posts.AverageEngagement).
		Int("topics_scored", len(report.TopicPerformance)).
		Msg("Weekly review complete")
	return report, nil
}

// WeeklyReport summarizes the last seven days of activity
func (s *Store) WeeklyReport(ctx context.Context) (*Report, error) {
	end := s.now()
	start := end.Add(-7 * 24 * time.Hour)

	activities, err := s.repo.ListActivities(ctx, storage.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	return BuildReport(start, end, activities), nil
}
