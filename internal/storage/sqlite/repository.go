package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

var _ storage.Repository = (*Repository)(nil)

// busyTimeout is how long a write waits on a locked database before failing
const busyTimeout = 5 * time.Second

// New creates a new SQLite repository. The scheduler and the responder share it,
// so writes go through a single connection and wait out locks held by other processes.
func New(dsn string) (*Repository, error) {
	path, _, _ := strings.Cut(dsn, "?")

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(withBusyTimeout(dsn)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &Repository{db: db}, nil
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dsn, sep, busyTimeout.Milliseconds())
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Activity{},
		&models.TopicScore{},
		&models.OAuthToken{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Activity log operations

// Timestamps are stored in UTC so range filters compare consistently
func (r *Repository) LogActivity(ctx context.Context, activity *models.Activity) error {
	activity.Timestamp = activity.Timestamp.UTC()
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *Repository) ListActivities(ctx context.Context, filter storage.ActivityFilter) ([]*models.Activity, error) {
	var activities []*models.Activity
	query := r.db.WithContext(ctx).Model(&models.Activity{})

	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Since != nil {
		query = query.Where("timestamp >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		query = query.Where("timestamp < ?", filter.Until.UTC())
	}

	if filter.OrderDesc {
		query = query.Order("timestamp DESC, id DESC")
	} else {
		query = query.Order("timestamp ASC, id ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *Repository) GetActivity(ctx context.Context, activityType models.ActivityType, activityID string) (*models.Activity, error) {
	var activity models.Activity
	err := r.db.WithContext(ctx).
		Where("type = ? AND activity_id = ?", activityType, activityID).
		Order("timestamp DESC").
		First(&activity).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &activity, nil
}

func (r *Repository) UpdateActivityMetadata(ctx context.Context, activity *models.Activity) error {
	res := r.db.WithContext(ctx).
		Model(&models.Activity{}).
		Where("id = ?", activity.ID).
		Update("metadata", activity.Metadata)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Topic performance operations

func (r *Repository) SaveTopicScores(ctx context.Context, scores []*models.TopicScore) error {
	if len(scores) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "topic"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "samples", "updated_at"}),
		}).
		Create(scores).Error
}

func (r *Repository) GetTopicScores(ctx context.Context) ([]*models.TopicScore, error) {
	var scores []*models.TopicScore
	if err := r.db.WithContext(ctx).Order("topic ASC").Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}

// OAuth token operations

func (r *Repository) SaveToken(ctx context.Context, token *models.OAuthToken) error {
	// Upsert - update if exists, create if not
	var existing models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", token.Provider).First(&existing).Error; err == nil {
		token.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(token).Error
}

func (r *Repository) GetToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	var token models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&token).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}
