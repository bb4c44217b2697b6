package storage

import (
	"context"
	"errors"
	"time"

	"github.com/linkedin-autoposter/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	// Activity log operations
	LogActivity(ctx context.Context, activity *models.Activity) error
	ListActivities(ctx context.Context, filter ActivityFilter) ([]*models.Activity, error)
	GetActivity(ctx context.Context, activityType models.ActivityType, activityID string) (*models.Activity, error)
	UpdateActivityMetadata(ctx context.Context, activity *models.Activity) error

	// Topic performance operations
	SaveTopicScores(ctx context.Context, scores []*models.TopicScore) error
	GetTopicScores(ctx context.Context) ([]*models.TopicScore, error)

	// OAuth token operations
	SaveToken(ctx context.Context, token *models.OAuthToken) error
	GetToken(ctx context.Context, provider string) (*models.OAuthToken, error)

	// Maintenance
	Close() error
	Migrate() error
}

// ActivityFilter defines filtering options for the activity log
type ActivityFilter struct {
	Type      *models.ActivityType
	Since     *time.Time
	Until     *time.Time
	Limit     int
	OrderDesc bool
}

// Since returns a filter over every activity at or after t, oldest first
func Since(t time.Time) ActivityFilter {
	return ActivityFilter{Since: &t}
}

// OfType narrows the filter to one activity type
func (f ActivityFilter) OfType(t models.ActivityType) ActivityFilter {
	f.Type = &t
	return f
}
