package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/pulse-dashboard/internal/auth/token"
	"github.com/pysugar/pulse-dashboard/internal/config"
	"github.com/pysugar/pulse-dashboard/internal/db"
	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/monitor"
	"github.com/pysugar/pulse-dashboard/internal/session"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"github.com/pysugar/pulse-dashboard/internal/util"
	"github.com/pysugar/pulse-dashboard/internal/version"
	"github.com/pysugar/pulse-dashboard/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(cfg.Environment, os.Stderr)
	logging.SetDefault(logger)
	util.SetVerbose(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	database, err := db.InitDB(cfg.DBPath, cfg.Verbose)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize token store
	backend, err := token.OpenBackend(ctx, cfg, database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token backend")
	}
	store := token.NewStore(backend)
	store.Load(ctx)

	// Initialize API client
	mon := monitor.NewRequestMonitor(database)
	location := web.NewLocation()
	client := upstream.NewClient(cfg.APIBaseURL, store,
		upstream.WithNavigator(location),
		upstream.WithRecorder(mon),
		upstream.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	// Resolve the stored session
	ctrl := session.NewController(client)
	ctrl.Subscribe(func(s session.State) {
		logger.Debug().Str("phase", s.Phase.String()).Bool("loading", s.Loading).Msg("👤 Session changed")
	})
	ctrl.Init(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           web.NewServer(client, ctrl, mon, location).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("version", version.Version).Msgf("🚀 Pulse dashboard starting on http://%s", cfg.Addr())
	logger.Info().Msgf("🔌 Backend API: %s", cfg.APIBaseURL)
	logger.Info().Msgf("🔑 Token backend: %s", cfg.TokenBackend)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	mon.Flush()
	logger.Info().Msg("👋 Pulse dashboard stopped")
}
