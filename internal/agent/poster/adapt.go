package poster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkedin-autoposter/internal/analytics"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/schedule"
	"github.com/linkedin-autoposter/internal/topic"
)

// Adjustment is the outcome of a weekly review
type Adjustment struct {
	// Schedule is the new posting schedule, nil when the current one stays
	Schedule []string
	Topics   []string
	Pruned   []string

	DailyConnectionLimit int
	LimitReduced         bool
}

// Changed reports whether the adjustment alters anything
func (a Adjustment) Changed() bool {
	return a.Schedule != nil || len(a.Pruned) > 0 || a.LimitReduced
}

// ComputeAdjustment derives the changes a weekly report calls for:
// the schedule moves to the best posting times when they differ by more than one slot,
// weak topics are pruned, and the outreach limit drops when too few requests are accepted.
func ComputeAdjustment(cfg *config.Config, catalog []string, report *analytics.Report) Adjustment {
	adj := Adjustment{DailyConnectionLimit: cfg.Outreach.DailyConnectionLimit}

	if len(report.BestPostingTimes) > 0 {
		current := cfg.Scheduler.PostingSchedule
		if entries, err := cfg.Scheduler.Entries(); err == nil {
			current = schedule.Format(entries)
		}
		if schedule.SymmetricDifference(current, report.BestPostingTimes) > 1 {
			adj.Schedule = append([]string(nil), report.BestPostingTimes...)
		}
	}

	adj.Topics, adj.Pruned = topic.Prune(catalog, report.TopicPerformance)

	if report.Connections.HasData() && report.Connections.AcceptanceRate < cfg.Outreach.AcceptanceThreshold {
		limit := cfg.Outreach.DailyConnectionLimit - cfg.Outreach.LimitStep
		if limit < cfg.Outreach.LimitFloor {
			limit = cfg.Outreach.LimitFloor
		}
		if limit < cfg.Outreach.DailyConnectionLimit {
			adj.DailyConnectionLimit = limit
			adj.LimitReduced = true
		}
	}
	return adj
}

// Adapt runs the weekly review and applies its adjustment to the live loop.
// A replaced plan fires after now, the start of the tick that ran the review.
func (s *Scheduler) Adapt(ctx context.Context, now time.Time) (Adjustment, error) {
	s.log.Info().Msg("Running weekly adaptation")

	report, err := s.deps.Store.Review(ctx)
	if err != nil {
		return Adjustment{}, fmt.Errorf("weekly review failed: %w", err)
	}

	adj := ComputeAdjustment(&s.cfg, s.catalog, report)

	if adj.Schedule != nil {
		entries, err := schedule.ParseTimes(adj.Schedule)
		if err != nil {
			return adj, fmt.Errorf("recommended schedule is invalid: %w", err)
		}
		if s.cfg.Scheduler.Mode == config.ModeTimes {
			plan, err := schedule.NewPlan(entries, now)
			if err != nil {
				return adj, err
			}
			s.plan = plan
		}
		s.cfg.Scheduler.PostingSchedule = adj.Schedule
		s.log.Info().Strs("schedule", adj.Schedule).Msg("Posting schedule updated")
	}
	if len(adj.Pruned) > 0 {
		s.catalog = adj.Topics
		s.cfg.Content.Topics = adj.Topics
		s.log.Info().Strs("pruned", adj.Pruned).Strs("topics", adj.Topics).Msg("Low-performing topics removed")
	}
	if adj.LimitReduced {
		s.cfg.Outreach.DailyConnectionLimit = adj.DailyConnectionLimit
		s.log.Info().
			Int("daily_connection_limit", adj.DailyConnectionLimit).
			Float64("acceptance_rate", report.Connections.AcceptanceRate).
			Msg("Connection limit reduced")
	}

	s.metrics.ObserveAdaptation()
	fmt.Fprintln(s.out, describe(adj))

	if err := s.deps.Store.LogActivity(ctx, models.ActivityAdaptation, uuid.NewString(), models.JSON{
		"schedule":               s.cfg.Scheduler.PostingSchedule,
		"topics":                 s.catalog,
		"pruned":                 adj.Pruned,
		"daily_connection_limit": s.cfg.Outreach.DailyConnectionLimit,
	}); err != nil {
		return adj, fmt.Errorf("failed to record adaptation: %w", err)
	}
	return adj, nil
}

func describe(adj Adjustment) string {
	if !adj.Changed() {
		return "Weekly review: no changes"
	}
	var parts []string
	if adj.Schedule != nil {
		parts = append(parts, "schedule "+strings.Join(adj.Schedule, ", "))
	}
	if len(adj.Pruned) > 0 {
		parts = append(parts, "removed topics "+strings.Join(adj.Pruned, ", "))
	}
	if adj.LimitReduced {
		parts = append(parts, fmt.Sprintf("daily connection limit %d", adj.DailyConnectionLimit))
	}
	return "Weekly review: " + strings.Join(parts, "; ")
}
