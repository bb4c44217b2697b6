package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/linkedin-autoposter/internal/models"
)

// BestTimesCount is how many posting slots the report recommends
const BestTimesCount = 3

// Report is the weekly performance summary
type Report struct {
	PeriodStart time.Time
	PeriodEnd   time.Time

	Posts       PostStats
	Connections ConnectionStats
	Engagements EngagementStats

	// BestPostingTimes holds HH:MM slots ranked by engagement, sorted by time of day.
	// Empty when there is not enough data to recommend a schedule.
	BestPostingTimes []string
	TopicPerformance map[string]float64
	Recommendations  []string

	topicSamples map[string]int
}

// PostStats summarizes published posts
type PostStats struct {
	Total             int
	Failed            int
	AverageEngagement float64
	TopPerforming     []*models.Activity
}

// ConnectionStats summarizes connection requests
type ConnectionStats struct {
	New            int
	Accepted       int
	AcceptanceRate float64
}

// HasData reports whether any connection activity was recorded
func (c ConnectionStats) HasData() bool {
	return c.New > 0
}

// EngagementStats summarizes engagement actions
type EngagementStats struct {
	Total  int
	ByType map[string]int
}

// BuildReport computes the report for activities within [start, end)
func BuildReport(start, end time.Time, activities []*models.Activity) *Report {
	r := &Report{
		PeriodStart:      start,
		PeriodEnd:        end,
		Engagements:      EngagementStats{ByType: map[string]int{}},
		TopicPerformance: map[string]float64{},
		topicSamples:     map[string]int{},
	}

	var posts []*models.Activity
	for _, a := range activities {
		if a.Timestamp.Before(start) || !a.Timestamp.Before(end) {
			continue
		}
		switch a.Type {
		case models.ActivityPost:
			posts = append(posts, a)
		case models.ActivityPostFailed:
			r.Posts.Failed++
		case models.ActivityConnection:
			r.Connections.New++
			if a.Metadata.String(models.MetaStatus) == models.ConnectionAccepted {
				r.Connections.Accepted++
			}
		case models.ActivityEngagement, models.ActivityReply:
			r.Engagements.Total++
			kind := a.Metadata.String(models.MetaEngagementType)
			if kind == "" {
				kind = string(a.Type)
			}
			r.Engagements.ByType[kind]++
		}
	}

	r.Posts.Total = len(posts)
	r.summarizePosts(posts)
	if r.Connections.New > 0 {
		r.Connections.AcceptanceRate = float64(r.Connections.Accepted) / float64(r.Connections.New)
	}
	r.BestPostingTimes = bestPostingTimes(posts)
	r.Recommendations = recommendations(r)
	return r
}

func (r *Report) summarizePosts(posts []*models.Activity) {
	var rated []*models.Activity
	sum := 0.0
	topicSum := map[string]float64{}

	for _, p := range posts {
		rate, ok := p.EngagementRate()
		if !ok {
			continue
		}
		rated = append(rated, p)
		sum += rate
		if topic := p.Topic(); topic != "" {
			topicSum[topic] += rate
			r.topicSamples[topic]++
		}
	}

	if len(rated) > 0 {
		r.Posts.AverageEngagement = sum / float64(len(rated))
	}
	for topic, total := range topicSum {
		r.TopicPerformance[topic] = total / float64(r.topicSamples[topic])
	}

	sort.SliceStable(rated, func(i, j int) bool {
		a, _ := rated[i].EngagementRate()
		b, _ := rated[j].EngagementRate()
		return a > b
	})
	if len(rated) > 3 {
		rated = rated[:3]
	}
	r.Posts.TopPerforming = rated
}

// bestPostingTimes ranks hourly slots by average engagement. At least BestTimesCount
// distinct slots must have data, otherwise nothing is recommended.
func bestPostingTimes(posts []*models.Activity) []string {
	type slot struct {
		label string
		sum   float64
		n     int
	}
	slots := map[int]*slot{}
	for _, p := range posts {
		rate, ok := p.EngagementRate()
		if !ok {
			continue
		}
		hour := p.Timestamp.Local().Hour()
		s, exists := slots[hour]
		if !exists {
			s = &slot{label: fmt.Sprintf("%02d:00", hour)}
			slots[hour] = s
		}
		s.sum += rate
		s.n++
	}
	if len(slots) < BestTimesCount {
		return nil
	}

	ranked := make([]*slot, 0, len(slots))
	for _, s := range slots {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		ai := ranked[i].sum / float64(ranked[i].n)
		aj := ranked[j].sum / float64(ranked[j].n)
		if ai != aj {
			return ai > aj
		}
		return ranked[i].label < ranked[j].label
	})

	best := make([]string, 0, BestTimesCount)
	for _, s := range ranked[:BestTimesCount] {
		best = append(best, s.label)
	}
	sort.Strings(best)
	return best
}

func recommendations(r *Report) []string {
	var recs []string

	switch {
	case r.Posts.Total < 3:
		recs = append(recs, "Consider increasing posting frequency to maintain engagement")
	case r.Posts.Total > 10:
		recs = append(recs, "Consider reducing posting frequency to avoid overwhelming your network")
	}

	switch {
	case r.Connections.New < 5:
		recs = append(recs, "Try to increase networking efforts with targeted connection requests")
	case r.Connections.New > 30:
		recs = append(recs, "Focus on quality over quantity in connection requests")
	}

	if r.Engagements.Total < 10 {
		recs = append(recs, "Increase engagement with your network's content")
	}

	return recs
}
