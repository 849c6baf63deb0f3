// Package insights drives the analytics view of one social account: stored
// insights are shown first, then metrics and a generation pass replace them
// in the background. Visible insights are never lost to a failed refresh.
package insights

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
)

// ErrBusy is returned when a call is dropped because a load or generation
// is already running for the view. Calls are never queued.
var ErrBusy = errors.New("insight workflow already in progress")

// NoMetricsAdvisory is shown when an account has no metrics yet.
const NoMetricsAdvisory = "No metrics data available. Sync your account to fetch the latest data."

// API is the subset of the backend client the view needs.
type API interface {
	GetInsights(ctx context.Context, accountID string, forceRefresh bool) ([]upstream.AIInsight, error)
	GetAccountMetrics(ctx context.Context, accountID string) (*upstream.AccountAnalytics, error)
	SyncAccountData(ctx context.Context, accountID string) error
	RateInsight(ctx context.Context, insightID string, rating *bool) error
}

// State is what the analytics view renders.
type State struct {
	AccountID  string                    `json:"accountId"`
	Metrics    []upstream.AccountMetrics `json:"metrics"`
	Insights   []upstream.AIInsight      `json:"insights"`
	Summary    map[string]interface{}    `json:"summary,omitempty"`
	Loading    bool                      `json:"loading"`
	Generating bool                      `json:"generating"`
	Error      string                    `json:"error,omitempty"`
	Advisory   string                    `json:"advisory,omitempty"`
}

// View holds the state of one analytics view.
type View struct {
	api API

	mu    sync.Mutex
	state State
}

func NewView(api API) *View {
	return &View{api: api}
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.state
	s.Metrics = append([]upstream.AccountMetrics(nil), v.state.Metrics...)
	s.Insights = append([]upstream.AIInsight(nil), v.state.Insights...)
	if v.state.Summary != nil {
		s.Summary = make(map[string]interface{}, len(v.state.Summary))
		for k, val := range v.state.Summary {
			s.Summary[k] = val
		}
	}
	return s
}

func (v *View) update(fn func(s *State)) {
	v.mu.Lock()
	fn(&v.state)
	v.mu.Unlock()
}

// LoadAccountData shows stored insights for accountID, then replaces them
// with the combined metrics and generation result. It returns once both
// phases finished; Snapshot shows progress in between.
func (v *View) LoadAccountData(ctx context.Context, accountID string) error {
	logger := logging.FromContext(ctx).With().Str("account", accountID).Logger()

	v.mu.Lock()
	if v.state.Loading || v.state.Generating {
		v.mu.Unlock()
		return ErrBusy
	}
	if v.state.AccountID != accountID {
		v.state = State{AccountID: accountID}
	}
	v.state.Loading = true
	v.state.Error = ""
	v.state.Advisory = ""
	v.mu.Unlock()

	// Phase A: stored insights only. A failure shows an empty list.
	stored, err := v.api.GetInsights(ctx, accountID, false)
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ Failed to load stored insights")
		stored = nil
	}
	v.update(func(s *State) {
		s.Insights = stored
		s.Loading = false
		s.Generating = true
	})

	// Phase B: metrics plus a generation pass in one request.
	analytics, err := v.api.GetAccountMetrics(ctx, accountID)
	if err != nil {
		logger.Error().Err(err).Msg("❌ Failed to load account analytics")
		v.update(func(s *State) {
			s.Generating = false
			s.Error = upstream.Message(err, "Failed to load analytics")
		})
		return fmt.Errorf("load analytics for %s: %w", accountID, err)
	}

	fresh := markNew(stored, analytics.Insights)
	v.update(func(s *State) {
		s.Generating = false
		s.Insights = fresh
		s.Metrics = analytics.Metrics
		s.Summary = analytics.Summary
		if len(analytics.Metrics) == 0 {
			s.Advisory = NoMetricsAdvisory
		}
	})
	logger.Info().Int("insights", len(fresh)).Int("metrics", len(analytics.Metrics)).Msg("✅ Account analytics loaded")
	return nil
}

// GenerateFreshInsights syncs the account, forces a generation pass and
// reloads metrics. Any failure restores the insights visible before the call.
func (v *View) GenerateFreshInsights(ctx context.Context, accountID string) error {
	logger := logging.FromContext(ctx).With().Str("account", accountID).Logger()

	v.mu.Lock()
	if v.state.Generating || v.state.Loading {
		v.mu.Unlock()
		return ErrBusy
	}
	if v.state.AccountID != accountID {
		v.state = State{AccountID: accountID}
	}
	snapshot := append([]upstream.AIInsight(nil), v.state.Insights...)
	v.state.Generating = true
	v.state.Error = ""
	v.mu.Unlock()

	fail := func(step string, err error) error {
		logger.Error().Err(err).Str("step", step).Msg("❌ Insight refresh failed, restoring previous insights")
		v.update(func(s *State) {
			s.Insights = snapshot
			s.Generating = false
			s.Error = upstream.Message(err, "Failed to generate insights")
		})
		return fmt.Errorf("%s for %s: %w", step, accountID, err)
	}

	if err := v.api.SyncAccountData(ctx, accountID); err != nil {
		return fail("sync account", err)
	}
	generated, err := v.api.GetInsights(ctx, accountID, true)
	if err != nil {
		return fail("generate insights", err)
	}
	analytics, err := v.api.GetAccountMetrics(ctx, accountID)
	if err != nil {
		return fail("refresh metrics", err)
	}

	fresh := markNew(snapshot, generated)
	v.update(func(s *State) {
		s.Generating = false
		s.Insights = fresh
		s.Metrics = analytics.Metrics
		s.Summary = analytics.Summary
		s.Advisory = ""
		if len(analytics.Metrics) == 0 {
			s.Advisory = NoMetricsAdvisory
		}
	})
	logger.Info().Int("insights", len(fresh)).Msg("✨ Fresh insights generated")
	return nil
}

// RateInsight stores the user's rating (nil clears it). The local entry is
// changed only after the backend accepted the rating.
func (v *View) RateInsight(ctx context.Context, insightID string, rating *bool) error {
	if err := v.api.RateInsight(ctx, insightID, rating); err != nil {
		logging.FromContext(ctx).Error().Err(err).Str("insight", insightID).Msg("❌ Failed to rate insight")
		return fmt.Errorf("rate insight %s: %w", insightID, err)
	}

	v.update(func(s *State) {
		next := make([]upstream.AIInsight, len(s.Insights))
		copy(next, s.Insights)
		for i := range next {
			if next[i].ID == insightID {
				next[i].UserRating = copyBool(rating)
			}
		}
		s.Insights = next
	})
	return nil
}

// markNew flags entries of next that were not visible before, unless the
// server already flagged some itself.
func markNew(prev, next []upstream.AIInsight) []upstream.AIInsight {
	out := append([]upstream.AIInsight(nil), next...)
	for _, in := range out {
		if in.IsNew {
			return out
		}
	}

	seen := make(map[string]struct{}, len(prev))
	for _, in := range prev {
		seen[in.ID] = struct{}{}
	}
	for i := range out {
		if _, ok := seen[out[i].ID]; !ok {
			out[i].IsNew = true
		}
	}
	return out
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
