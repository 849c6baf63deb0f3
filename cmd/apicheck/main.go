// apicheck - backend smoke checker
// Signs in with the stored session (or PULSE_EMAIL/PULSE_PASSWORD) and
// calls every read endpoint the dashboard uses, printing a status table.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pysugar/pulse-dashboard/internal/auth/token"
	"github.com/pysugar/pulse-dashboard/internal/config"
	"github.com/pysugar/pulse-dashboard/internal/db"
	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"github.com/pysugar/pulse-dashboard/internal/util"
)

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := logging.New(cfg.Environment, os.Stderr)
	logging.SetDefault(logger)
	util.SetVerbose(cfg.Verbose || os.Getenv("VERBOSE") == "1")

	ctx := context.Background()

	database, err := db.InitDB(cfg.DBPath, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	logger.Info().Msgf("📂 Using database: %s", cfg.DBPath)

	backend, err := token.OpenBackend(ctx, cfg, database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token backend")
	}
	store := token.NewStore(backend)
	store.Load(ctx)
	client := upstream.NewClient(cfg.APIBaseURL, store)

	if !store.IsAuthenticated() {
		email, password := os.Getenv("PULSE_EMAIL"), os.Getenv("PULSE_PASSWORD")
		if email == "" || password == "" {
			logger.Fatal().Msg("No stored session; set PULSE_EMAIL and PULSE_PASSWORD")
		}
		auth, err := client.Login(ctx, upstream.LoginRequest{Email: email, Password: password})
		if err != nil {
			logger.Fatal().Err(err).Msg("Login failed")
		}
		if auth.User != nil {
			logger.Info().Msgf("👤 Signed in as %s", auth.User.Email)
		} else {
			logger.Info().Msg("👤 Signed in")
		}
	}
	if tok := store.Token(); tok != nil && !tok.Expiry.IsZero() {
		logger.Info().Msgf("🔑 Token expires: %s", tok.Expiry.Format(time.RFC3339))
		if !tok.Valid() {
			logger.Warn().Msg("⚠️  Access token appears to be EXPIRED, the first call will refresh it")
		}
	}

	var accountID string
	checks := []check{
		{"profile", func(ctx context.Context) (string, error) {
			u, err := client.GetProfile(ctx)
			if err != nil {
				return "", err
			}
			return u.Email + " (" + u.Tier + ")", nil
		}},
		{"accounts", func(ctx context.Context) (string, error) {
			accounts, err := client.ListSocialAccounts(ctx)
			if err != nil {
				return "", err
			}
			if len(accounts) > 0 {
				accountID = accounts[0].ID
			}
			return fmt.Sprintf("%d connected", len(accounts)), nil
		}},
		{"usage", func(ctx context.Context) (string, error) {
			u, err := client.GetUsage(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d/%d", u.CurrentAccounts, u.MaxAccounts), nil
		}},
		{"dashboard", func(ctx context.Context) (string, error) {
			d, err := client.GetDashboard(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d metrics, %d insights", len(d.RecentMetrics), len(d.Insights)), nil
		}},
		{"insights", func(ctx context.Context) (string, error) {
			if accountID == "" {
				return "skipped (no account)", nil
			}
			list, err := client.GetInsights(ctx, accountID, false)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d stored", len(list)), nil
		}},
	}

	fmt.Printf("\n%-12s | %-4s | %-8s | %s\n", "Endpoint", "OK", "Time", "Result")
	failed := 0
	for _, c := range checks {
		start := time.Now()
		result, err := c.run(ctx)
		icon := "✅"
		if err != nil {
			icon = "❌"
			result = fmt.Sprintf("%d %s", upstream.StatusOf(err), err.Error())
			failed++
		}
		fmt.Printf("%-12s | %-4s | %-8s | %s\n", c.name, icon, time.Since(start).Round(time.Millisecond), util.TruncateLog(result, 70))
	}

	if failed > 0 {
		os.Exit(1)
	}
}
