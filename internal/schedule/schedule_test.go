package schedule

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	e, err := ParseTime("09:05")
	require.NoError(t, err)
	assert.Equal(t, Entry{Hour: 9, Minute: 5}, e)
	assert.Equal(t, "09:05", e.String())
	assert.Equal(t, "5 9 * * *", e.CronSpec())

	for _, bad := range []string{"", "9:00", "24:00", "12:60", "ab:cd", "12-00", "123:00"} {
		_, err := ParseTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTimesStopsOnFirstError(t *testing.T) {
	_, err := ParseTimes([]string{"09:00", "bad"})
	assert.Error(t, err)

	entries, err := ParseTimes([]string{"09:00", "15:30"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPlanDueAndAdvance(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	entries, err := ParseTimes([]string{"09:00", "12:00"})
	require.NoError(t, err)

	plan, err := NewPlan(entries, start)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), plan.NextRun())
	assert.Empty(t, plan.Due(start))

	nine := time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC)
	assert.Equal(t, []Entry{{Hour: 9}}, plan.Due(nine))

	plan.Advance(nine)
	assert.Empty(t, plan.Due(nine))
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), plan.NextRun())

	// after the 12:00 run the 09:00 entry is next, tomorrow
	noon := time.Date(2026, 3, 2, 12, 1, 0, 0, time.UTC)
	plan.Advance(noon)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), plan.NextRun())
}

func TestPlanStartedLateWaitsForTomorrow(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	plan, err := NewPlan([]Entry{{Hour: 9}}, start)
	require.NoError(t, err)
	assert.Empty(t, plan.Due(start))
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), plan.NextRun())
}

func TestRandomIntervalBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		d := RandomInterval(rng, 30, 180)
		assert.GreaterOrEqual(t, d, 30*time.Minute)
		assert.LessOrEqual(t, d, 180*time.Minute)
	}
	assert.Equal(t, 45*time.Minute, RandomInterval(rng, 45, 45))
}

func TestSymmetricDifference(t *testing.T) {
	assert.Equal(t, 0, SymmetricDifference([]string{"09:00", "12:00"}, []string{"12:00", "09:00"}))
	assert.Equal(t, 2, SymmetricDifference([]string{"09:00", "12:00", "15:00"}, []string{"09:00", "12:00", "18:00"}))
	assert.Equal(t, 1, SymmetricDifference([]string{"09:00"}, []string{"09:00", "10:00"}))
	assert.Equal(t, 3, SymmetricDifference(nil, []string{"a", "b", "c"}))
}

func TestGenerateRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	entries := GenerateRandom(rng, 20)
	require.Len(t, entries, 20)

	formatted := Format(entries)
	seen := map[string]bool{}
	for i, s := range formatted {
		assert.False(t, seen[s], "duplicate %s", s)
		seen[s] = true
		if i > 0 {
			assert.Less(t, formatted[i-1], s)
		}
		_, err := ParseTime(s)
		assert.NoError(t, err)
	}
}
