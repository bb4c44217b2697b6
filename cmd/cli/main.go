package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkedin-autoposter/internal/agent/poster"
	"github.com/linkedin-autoposter/internal/analytics"
	"github.com/linkedin-autoposter/internal/app"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/internal/schedule"
	"github.com/linkedin-autoposter/internal/storage"
	"github.com/linkedin-autoposter/internal/tracker"
)

var (
	cfgFile string
	a       *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "linkedin-autoposter",
		Short: "LinkedIn autoposter powered by AI",
		Long: `Generates and publishes LinkedIn posts on a schedule, replies to comments
and adapts the schedule and topics to what performs well.`,
		SilenceUsage:       true,
		PersistentPreRunE:  initializeApp,
		PersistentPostRunE: closeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(respondCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(adaptCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(trackerCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	cfg, log, err := app.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	a, err = app.New(cmd.Context(), cfg, log)
	return err
}

func closeApp(cmd *cobra.Command, args []string) error {
	if a == nil {
		return nil
	}
	return a.Close()
}

// ============ POST COMMANDS ============

func postCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publishing commands",
	}

	cmd.AddCommand(postOnceCmd())
	return cmd
}

func postOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Generate and publish a single post now",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.Scheduler(os.Stdout)
			if err != nil {
				return err
			}

			attempt, err := s.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			if attempt.Outcome == models.OutcomeFailed {
				return fmt.Errorf("post about %q failed: %w", attempt.Topic, attempt.Err)
			}

			fmt.Printf("\n=== Published ===\n\n")
			fmt.Printf("Topic:    %s\n", attempt.Topic)
			fmt.Printf("Post ID:  %s\n", attempt.PostID)
			fmt.Printf("Attempts: %d\n\n", attempt.Attempts)
			fmt.Println(attempt.Text)
			return nil
		},
	}
}

// ============ RESPOND COMMANDS ============

func respondCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Reply to comments on recent posts",
	}

	cmd.AddCommand(respondOnceCmd())
	cmd.AddCommand(respondRunCmd())
	return cmd
}

func respondOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Check recent posts once and reply to new comments",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.Responder(cmd.Context(), os.Stdout)
			if err != nil {
				return err
			}

			result, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Responder Results ===\n\n")
			fmt.Printf("Posts checked:  %d\n", result.PostsChecked)
			fmt.Printf("Comments found: %d\n", result.CommentsFound)
			fmt.Printf("Replies posted: %d\n", result.RepliesPosted)
			fmt.Printf("Already seen:   %d\n", result.Skipped)
			fmt.Printf("Duration:       %s\n", result.Duration.Round(time.Millisecond))
			for _, e := range result.Errors {
				fmt.Printf("Error: %v\n", e)
			}
			return nil
		},
	}
}

func respondRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep polling for new comments until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.Responder(cmd.Context(), os.Stdout)
			if err != nil {
				return err
			}

			fmt.Printf("Starting comment responder, checking every %s\n", formatDuration(a.Config.Responder.PollInterval))
			fmt.Println("Press Ctrl+C to stop")
			if err := r.Loop(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("\nStopping comment responder...")
			return nil
		},
	}
}

// ============ REPORT COMMANDS ============

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Performance reporting and data entry",
	}

	cmd.AddCommand(reportWeeklyCmd())
	cmd.AddCommand(reportEngagementCmd())
	cmd.AddCommand(reportConnectionCmd())
	cmd.AddCommand(reportActionCmd())
	return cmd
}

func reportWeeklyCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Show the report for the last seven days",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report *analytics.Report
			var err error
			if save {
				report, err = a.Store.Review(cmd.Context())
			} else {
				report, err = a.Store.WeeklyReport(cmd.Context())
			}
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Persist the refreshed topic scores")
	return cmd
}

func reportEngagementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record-engagement <post-id> <rate>",
		Short: "Record the engagement rate of a published post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid engagement rate %q: %w", args[1], err)
			}
			if err := a.Store.RecordEngagement(cmd.Context(), args[0], rate); err != nil {
				return err
			}
			fmt.Printf("Recorded engagement rate %.2f for %s\n", rate, args[0])
			return nil
		},
	}
}

func reportConnectionCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "record-connection <id>",
		Short: "Record a connection request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.Store.RecordConnection(cmd.Context(), args[0], status); err != nil {
				return err
			}
			fmt.Printf("Recorded connection %s (%s)\n", args[0], status)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "pending", "Request status: pending or accepted")
	return cmd
}

func reportActionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record-action <id> <type>",
		Short: "Record an engagement action such as a like or comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.Store.RecordEngagementAction(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Recorded %s %s\n", args[1], args[0])
			return nil
		},
	}
}

func printReport(r *analytics.Report) {
	fmt.Printf("\n=== Weekly Report (%s - %s) ===\n\n",
		r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"))

	fmt.Println("Posts")
	fmt.Printf("    Published:          %d\n", r.Posts.Total)
	fmt.Printf("    Failed:             %d\n", r.Posts.Failed)
	fmt.Printf("    Average engagement: %.2f\n", r.Posts.AverageEngagement)
	for i, p := range r.Posts.TopPerforming {
		rate, _ := p.EngagementRate()
		fmt.Printf("    %d. %s (%.2f) %s\n", i+1, p.Topic(), rate, p.ActivityID)
	}

	fmt.Println("\nConnections")
	fmt.Printf("    New:             %d\n", r.Connections.New)
	fmt.Printf("    Accepted:        %d\n", r.Connections.Accepted)
	fmt.Printf("    Acceptance rate: %.0f%%\n", r.Connections.AcceptanceRate*100)

	fmt.Println("\nEngagements")
	fmt.Printf("    Total: %d\n", r.Engagements.Total)
	for _, kind := range sortedKeys(r.Engagements.ByType) {
		fmt.Printf("    %s: %d\n", kind, r.Engagements.ByType[kind])
	}

	if len(r.BestPostingTimes) > 0 {
		fmt.Printf("\nBest posting times: %s\n", strings.Join(r.BestPostingTimes, ", "))
	}

	if len(r.TopicPerformance) > 0 {
		fmt.Println("\nTopic performance")
		topics := make([]string, 0, len(r.TopicPerformance))
		for t := range r.TopicPerformance {
			topics = append(topics, t)
		}
		sort.Slice(topics, func(i, j int) bool {
			return r.TopicPerformance[topics[i]] > r.TopicPerformance[topics[j]]
		})
		for _, t := range topics {
			fmt.Printf("    %-30s %.2f\n", t, r.TopicPerformance[t])
		}
	}

	if len(r.Recommendations) > 0 {
		fmt.Println("\nRecommendations")
		for _, rec := range r.Recommendations {
			fmt.Printf("    - %s\n", rec)
		}
	}
	fmt.Println()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============ ADAPT COMMAND ============

func adaptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapt",
		Short: "Run the weekly review and show the adjustments it calls for",
		Long: `Runs the weekly review, saves the refreshed topic scores and prints the schedule,
topic and outreach changes the scheduler would apply. The config file is not rewritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.Store.Review(cmd.Context())
			if err != nil {
				return err
			}
			adj := poster.ComputeAdjustment(a.Config, a.Config.Content.Topics, report)

			fmt.Printf("\n=== Adaptation ===\n\n")
			if !adj.Changed() {
				fmt.Println("No changes recommended")
				return nil
			}
			if adj.Schedule != nil {
				fmt.Printf("Posting schedule: %s -> %s\n",
					strings.Join(a.Config.Scheduler.PostingSchedule, ", "), strings.Join(adj.Schedule, ", "))
			}
			if len(adj.Pruned) > 0 {
				fmt.Printf("Remove topics:    %s\n", strings.Join(adj.Pruned, ", "))
				fmt.Printf("Keep topics:      %s\n", strings.Join(adj.Topics, ", "))
			}
			if adj.LimitReduced {
				fmt.Printf("Daily connection limit: %d -> %d\n", a.Config.Outreach.DailyConnectionLimit, adj.DailyConnectionLimit)
			}
			return nil
		},
	}
}

// ============ TOKEN COMMANDS ============

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "LinkedIn access token commands",
	}

	cmd.AddCommand(tokenValidateCmd())
	return cmd
}

func tokenValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the access token against the userinfo endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.LinkedIn()
			if err != nil {
				return err
			}

			profile, err := client.ValidateToken(cmd.Context())
			if err != nil {
				fmt.Println("Status: Invalid")
				return err
			}

			fmt.Println("Status:     Valid")
			fmt.Printf("Member:     %s (%s)\n", profile.Name, profile.Sub)
			if profile.Email != "" {
				fmt.Printf("Email:      %s\n", profile.Email)
			}

			tokens, err := a.Tokens()
			if err != nil {
				return err
			}
			if exp := tokens.ExpiresAt(); !exp.IsZero() {
				fmt.Printf("Expires at: %s (in %s)\n", exp.Format(time.RFC1123), formatDuration(time.Until(exp)))
			}
			if remaining, ok := client.Quota().Remaining(); ok {
				fmt.Printf("Remaining requests: %d\n", remaining)
			}
			return nil
		},
	}
}

// ============ SCHEDULE COMMANDS ============

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Posting schedule helpers",
	}

	cmd.AddCommand(scheduleGenerateCmd())
	cmd.AddCommand(scheduleShowCmd())
	return cmd
}

func scheduleGenerateCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate random posting times with matching crontab lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be positive")
			}
			rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
			entries := schedule.GenerateRandom(rng, count)

			fmt.Printf("\n=== Posting Times (%d) ===\n\n", len(entries))
			fmt.Println(strings.Join(schedule.Format(entries), ", "))

			fmt.Printf("\n=== Crontab ===\n\n")
			for _, e := range entries {
				fmt.Printf("%s linkedin-autoposter post once\n", e.CronSpec())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 20, "Number of posting times")
	return cmd
}

func scheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the configured schedule and its next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := a.Config.Scheduler
			fmt.Printf("Mode: %s\n", sc.Mode)
			if sc.Mode == config.ModeInterval {
				fmt.Printf("Interval: %d-%d minutes\n", sc.MinIntervalMinutes, sc.MaxIntervalMinutes)
				return nil
			}

			entries, err := sc.Entries()
			if err != nil {
				return err
			}
			plan, err := schedule.NewPlan(entries, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Times:    %s\n", strings.Join(schedule.Format(entries), ", "))
			fmt.Printf("Next run: %s\n", plan.NextRun().Format(time.RFC1123))
			if sc.AdaptationEnabled {
				fmt.Printf("Weekly review: %s\n", sc.AdaptationCron)
			}
			return nil
		},
	}
}

// ============ ACTIVITY COMMANDS ============

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Activity log commands",
	}

	cmd.AddCommand(activityListCmd())
	return cmd
}

func activityListCmd() *cobra.Command {
	var activityType string
	var days int
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent activity log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.Since(time.Now().AddDate(0, 0, -days))
			if activityType != "" {
				filter = filter.OfType(models.ActivityType(activityType))
			}
			filter.Limit = limit
			filter.OrderDesc = true

			activities, err := a.Repo.ListActivities(cmd.Context(), filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Activities (%d) ===\n\n", len(activities))
			for _, act := range activities {
				printActivity(act)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&activityType, "type", "", "Filter by type (post, post_failed, connection, engagement, comment_reply, adaptation)")
	cmd.Flags().IntVar(&days, "days", 7, "How many days back to look")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}

func printActivity(act *models.Activity) {
	fmt.Printf("[%s] %s | %s\n", act.Timestamp.Local().Format("2006-01-02 15:04"), act.Type, act.ActivityID)
	if topic := act.Topic(); topic != "" {
		fmt.Printf("    Topic: %s\n", topic)
	}
	if rate, ok := act.EngagementRate(); ok {
		fmt.Printf("    Engagement: %.2f\n", rate)
	}
	if msg := act.Metadata.String(models.MetaError); msg != "" {
		fmt.Printf("    Error: %s\n", truncateStr(msg, 120))
	}
	fmt.Println()
}

// ============ TRACKER COMMANDS ============

func trackerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Google Sheets activity mirror",
	}

	cmd.AddCommand(trackerInitCmd())
	cmd.AddCommand(trackerListCmd())
	return cmd
}

func sheetsTracker(ctx context.Context) (*tracker.SheetsTracker, error) {
	if !a.Config.Tracker.Enabled {
		return nil, fmt.Errorf("tracker is not enabled in config")
	}
	t, err := tracker.NewSheetsTracker(ctx, a.Config.Tracker, a.Limiter, a.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}
	return t, nil
}

func trackerInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the activity sheet and its headers",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := sheetsTracker(cmd.Context())
			if err != nil {
				return err
			}
			if err := t.InitializeSheet(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Sheet %q is ready in spreadsheet %s\n", a.Config.Tracker.SheetName, a.Config.Tracker.SpreadsheetID)
			return nil
		},
	}
}

func trackerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List activities mirrored to the Google Sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := sheetsTracker(cmd.Context())
			if err != nil {
				return err
			}

			activities, err := t.ListActivities(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get activities: %w", err)
			}

			fmt.Printf("\n=== Tracked Activities (%d) ===\n\n", len(activities))
			for _, act := range activities {
				printActivity(act)
			}
			return nil
		},
	}
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Helper function to format duration nicely
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
