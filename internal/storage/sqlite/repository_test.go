package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestConcurrentWriters(t *testing.T) {
	repo := newTestRepo(t)
	sqlDB, err := repo.db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				errs <- repo.LogActivity(ctx, &models.Activity{
					ActivityID: fmt.Sprintf("w%d-%d", w, i),
					Type:       models.ActivityReply,
					Timestamp:  time.Now(),
				})
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	activities, err := repo.ListActivities(ctx, storage.ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, activities, 100)
}

func TestWithBusyTimeout(t *testing.T) {
	assert.Equal(t, "data/a.db?_pragma=busy_timeout(5000)", withBusyTimeout("data/a.db"))
	assert.Equal(t, "a.db?mode=rwc&_pragma=busy_timeout(5000)", withBusyTimeout("a.db?mode=rwc"))
	assert.Equal(t, "a.db?_pragma=busy_timeout(100)", withBusyTimeout("a.db?_pragma=busy_timeout(100)"))
}

func TestActivityRoundTripAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	entries := []*models.Activity{
		{ActivityID: "urn:li:share:1", Type: models.ActivityPost, Timestamp: base.Add(-10 * 24 * time.Hour), Metadata: models.JSON{"topic": "AI"}},
		{ActivityID: "urn:li:share:2", Type: models.ActivityPost, Timestamp: base, Metadata: models.JSON{"topic": "Go"}},
		{ActivityID: "f-1", Type: models.ActivityPostFailed, Timestamp: base.Add(time.Hour), Metadata: models.JSON{"error": "boom"}},
	}
	for _, a := range entries {
		require.NoError(t, repo.LogActivity(ctx, a))
	}

	all, err := repo.ListActivities(ctx, storage.ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	recent, err := repo.ListActivities(ctx, storage.Since(base.Add(-7*24*time.Hour)))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "urn:li:share:2", recent[0].ActivityID)

	posts, err := repo.ListActivities(ctx, storage.Since(base.Add(-7*24*time.Hour)).OfType(models.ActivityPost))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Go", posts[0].Topic())

	latest, err := repo.ListActivities(ctx, storage.ActivityFilter{Limit: 1, OrderDesc: true})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, models.ActivityPostFailed, latest[0].Type)
}

func TestGetAndUpdateActivity(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.LogActivity(ctx, &models.Activity{
		ActivityID: "urn:li:share:9",
		Type:       models.ActivityPost,
		Timestamp:  time.Now(),
		Metadata:   models.JSON{"topic": "AI"},
	}))

	got, err := repo.GetActivity(ctx, models.ActivityPost, "urn:li:share:9")
	require.NoError(t, err)
	got.Metadata[models.MetaEngagementRate] = 0.42
	require.NoError(t, repo.UpdateActivityMetadata(ctx, got))

	again, err := repo.GetActivity(ctx, models.ActivityPost, "urn:li:share:9")
	require.NoError(t, err)
	rate, ok := again.EngagementRate()
	assert.True(t, ok)
	assert.InDelta(t, 0.42, rate, 1e-9)
	assert.Equal(t, "AI", again.Topic())

	_, err = repo.GetActivity(ctx, models.ActivityPost, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, repo.UpdateActivityMetadata(ctx, &models.Activity{ID: 999}), storage.ErrNotFound)
}

func TestTopicScoresUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveTopicScores(ctx, []*models.TopicScore{
		{Topic: "AI", Score: 0.5, Samples: 2},
		{Topic: "Go", Score: 0.1, Samples: 1},
	}))
	require.NoError(t, repo.SaveTopicScores(ctx, []*models.TopicScore{
		{Topic: "AI", Score: 0.9, Samples: 4},
	}))
	require.NoError(t, repo.SaveTopicScores(ctx, nil))

	scores, err := repo.GetTopicScores(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "AI", scores[0].Topic)
	assert.InDelta(t, 0.9, scores[0].Score, 1e-9)
	assert.Equal(t, 4, scores[0].Samples)
	assert.Equal(t, "Go", scores[1].Topic)
}

func TestTokenUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.GetToken(ctx, models.ProviderLinkedIn)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.SaveToken(ctx, &models.OAuthToken{Provider: models.ProviderLinkedIn, AccessToken: "a"}))
	require.NoError(t, repo.SaveToken(ctx, &models.OAuthToken{Provider: models.ProviderLinkedIn, AccessToken: "b"}))

	tok, err := repo.GetToken(ctx, models.ProviderLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "b", tok.AccessToken)
}
