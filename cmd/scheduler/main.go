package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkedin-autoposter/internal/app"
	"github.com/linkedin-autoposter/internal/metrics"
	"github.com/linkedin-autoposter/pkg/logger"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "linkedin-scheduler",
		Short: "Background scheduler for the LinkedIn autoposter",
		Long: `Runs the publishing loop in the background, optionally together with the comment responder.
This daemon should be run as a service for autonomous operation.`,
		SilenceUsage: true,
		RunE:         runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, log, err := app.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	log.Info().Msg("Starting LinkedIn autoposter scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, err := a.Scheduler(os.Stdout)
	if err != nil {
		return err
	}

	srv := newHealthServer(cfg.Health.Port, a.Metrics)
	go func() {
		log.Info().Int("port", cfg.Health.Port).Msg("Health check server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health server failed")
		}
	}()

	var wg sync.WaitGroup
	if cfg.Responder.Enabled {
		r, err := a.Responder(ctx, os.Stdout)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Loop(ctx)
		}()
	}

	runErr := scheduler.Start(ctx)

	// the loop may stop on its own, take the responder down with it
	stop()
	wg.Wait()
	shutdownHealthServer(srv, log)

	if runErr != nil {
		return fmt.Errorf("scheduler failed: %w", runErr)
	}
	log.Info().Msg("Scheduler shut down")
	return nil
}

func newHealthServer(port int, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("LinkedIn Autoposter Scheduler"))
	})

	return &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func shutdownHealthServer(srv *http.Server, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Health server shutdown failed")
	}
}
