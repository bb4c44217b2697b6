package analytics

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/storage"
	"github.com/linkedin-autoposter/internal/storage/sqlite"
	"github.com/linkedin-autoposter/pkg/logger"
)

type recordingMirror struct {
	got []*models.Activity
	err error
}

func (m *recordingMirror) AppendActivity(_ context.Context, a *models.Activity) error {
	m.got = append(m.got, a)
	return m.err
}

func newTestStore(t *testing.T, mirror Mirror) (*Store, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return NewStore(repo, mirror, logger.Nop()), repo
}

func TestLogActivityWritesAndMirrors(t *testing.T) {
	mirror := &recordingMirror{err: errors.New("sheets down")}
	store, repo := newTestStore(t, mirror)
	ctx := context.Background()

	require.NoError(t, store.LogActivity(ctx, models.ActivityPost, "urn:li:share:1", models.JSON{models.MetaTopic: "AI"}))

	require.Len(t, mirror.got, 1)
	got, err := repo.GetActivity(ctx, models.ActivityPost, "urn:li:share:1")
	require.NoError(t, err)
	assert.Equal(t, "AI", got.Topic())
	assert.NotEmpty(t, got.Metadata.String(models.MetaTimestamp))
}

func TestRecordEngagement(t *testing.T) {
	store, repo := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.LogActivity(ctx, models.ActivityPost, "urn:li:share:1", models.JSON{models.MetaTopic: "AI"}))
	require.NoError(t, store.RecordEngagement(ctx, "urn:li:share:1", 0.35))

	got, err := repo.GetActivity(ctx, models.ActivityPost, "urn:li:share:1")
	require.NoError(t, err)
	rate, ok := got.EngagementRate()
	require.True(t, ok)
	assert.InDelta(t, 0.35, rate, 1e-9)

	assert.ErrorIs(t, store.RecordEngagement(ctx, "missing", 0.1), storage.ErrNotFound)
	assert.Error(t, store.RecordEngagement(ctx, "urn:li:share:1", -1))
}

func TestReviewPersistsTopicScores(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()

	for i, tc := range []struct {
		topic string
		rate  float64
	}{{"AI", 0.4}, {"AI", 0.2}, {"Go", 0.1}} {
		id := fmt.Sprintf("urn:li:share:%d", i)
		require.NoError(t, store.LogActivity(ctx, models.ActivityPost, id, models.JSON{models.MetaTopic: tc.topic}))
		require.NoError(t, store.RecordEngagement(ctx, id, tc.rate))
	}

	report, err := store.Review(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Posts.Total)
	assert.InDelta(t, 0.3, report.TopicPerformance["AI"], 1e-9)

	perf, err := store.TopicPerformance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, perf["AI"], 1e-9)
	assert.InDelta(t, 0.1, perf["Go"], 1e-9)
}

func activity(typ models.ActivityType, ts time.Time, meta models.JSON) *models.Activity {
	return &models.Activity{ActivityID: fmt.Sprint(ts.UnixNano()), Type: typ, Timestamp: ts, Metadata: meta}
}

func TestBuildReport(t *testing.T) {
	end := time.Date(2026, 3, 9, 9, 0, 0, 0, time.Local)
	start := end.Add(-7 * 24 * time.Hour)
	day := func(d, h int) time.Time {
		return time.Date(2026, 3, 2+d, h, 0, 0, 0, time.Local)
	}

	activities := []*models.Activity{
		activity(models.ActivityPost, day(0, 9), models.JSON{"topic": "AI", "engagement_rate": 0.5}),
		activity(models.ActivityPost, day(1, 12), models.JSON{"topic": "AI", "engagement_rate": 0.3}),
		activity(models.ActivityPost, day(2, 15), models.JSON{"topic": "Go", "engagement_rate": 0.1}),
		activity(models.ActivityPost, day(3, 18), models.JSON{"topic": "Go", "engagement_rate": 0.9}),
		activity(models.ActivityPost, day(4, 9), models.JSON{"topic": "Cloud"}),
		activity(models.ActivityPostFailed, day(4, 10), nil),
		activity(models.ActivityConnection, day(1, 10), models.JSON{"status": "accepted"}),
		activity(models.ActivityConnection, day(1, 11), models.JSON{"status": "pending"}),
		activity(models.ActivityConnection, day(1, 12), models.JSON{"status": "pending"}),
		activity(models.ActivityConnection, day(1, 13), models.JSON{"status": "pending"}),
		activity(models.ActivityEngagement, day(2, 10), models.JSON{"type": "like"}),
		activity(models.ActivityReply, day(2, 11), nil),
		// outside the window
		activity(models.ActivityPost, start.Add(-time.Hour), models.JSON{"topic": "Old", "engagement_rate": 9.0}),
	}

	r := BuildReport(start, end, activities)

	assert.Equal(t, 5, r.Posts.Total)
	assert.Equal(t, 1, r.Posts.Failed)
	assert.InDelta(t, 0.45, r.Posts.AverageEngagement, 1e-9)
	require.Len(t, r.Posts.TopPerforming, 3)
	assert.Equal(t, "Go", r.Posts.TopPerforming[0].Topic())

	assert.InDelta(t, 0.4, r.TopicPerformance["AI"], 1e-9)
	assert.InDelta(t, 0.5, r.TopicPerformance["Go"], 1e-9)
	assert.NotContains(t, r.TopicPerformance, "Cloud")
	assert.NotContains(t, r.TopicPerformance, "Old")

	assert.Equal(t, 4, r.Connections.New)
	assert.InDelta(t, 0.25, r.Connections.AcceptanceRate, 1e-9)
	assert.True(t, r.Connections.HasData())

	assert.Equal(t, 2, r.Engagements.Total)
	assert.Equal(t, 1, r.Engagements.ByType["like"])
	assert.Equal(t, 1, r.Engagements.ByType[string(models.ActivityReply)])

	// slots 09:00 (0.5), 12:00 (0.3), 15:00 (0.1), 18:00 (0.9)
	assert.Equal(t, []string{"09:00", "12:00", "18:00"}, r.BestPostingTimes)

	assert.Contains(t, r.Recommendations, "Try to increase networking efforts with targeted connection requests")
	assert.Contains(t, r.Recommendations, "Increase engagement with your network's content")
	assert.NotContains(t, r.Recommendations, "Consider increasing posting frequency to maintain engagement")
}

func TestBuildReportEmpty(t *testing.T) {
	end := time.Now()
	r := BuildReport(end.Add(-7*24*time.Hour), end, nil)

	assert.Zero(t, r.Posts.Total)
	assert.Zero(t, r.Connections.AcceptanceRate)
	assert.False(t, r.Connections.HasData())
	assert.Empty(t, r.BestPostingTimes)
	assert.Len(t, r.Recommendations, 3)
}

func TestRecommendationThresholds(t *testing.T) {
	r := &Report{Posts: PostStats{Total: 11}, Connections: ConnectionStats{New: 31}, Engagements: EngagementStats{Total: 10}}
	recs := recommendations(r)
	assert.Equal(t, []string{
		"Consider reducing posting frequency to avoid overwhelming your network",
		"Focus on quality over quantity in connection requests",
	}, recs)

	r = &Report{Posts: PostStats{Total: 5}, Connections: ConnectionStats{New: 10}, Engagements: EngagementStats{Total: 20}}
	assert.Empty(t, recommendations(r))
}
