// Package dashboard builds the home view model from accounts, metrics and
// insights.
package dashboard

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"golang.org/x/sync/errgroup"
)

// NoMetricsAdvisory is shown when no account has metrics yet.
const NoMetricsAdvisory = "No metrics data available"

const emptyInsightsMessage = "No insights yet. Connect an account and sync it to get AI recommendations."

// KPICard is one headline number.
type KPICard struct {
	Label string  `json:"label"`
	Value string  `json:"value"`
	Raw   float64 `json:"raw"`
}

// InsightsPanel lists insights or, when there are none, an empty-state text.
type InsightsPanel struct {
	Insights     []upstream.AIInsight `json:"insights"`
	Empty        bool                 `json:"empty"`
	EmptyMessage string               `json:"emptyMessage,omitempty"`
}

// Overview is the dashboard view model.
type Overview struct {
	Accounts      []upstream.SocialAccount `json:"accounts"`
	Usage         *upstream.Usage          `json:"usage,omitempty"`
	Advisory      string                   `json:"advisory,omitempty"`
	KPICards      []KPICard                `json:"kpiCards"`
	InsightsPanel InsightsPanel            `json:"insightsPanel"`
}

// Build assembles the overview. metrics are newest first; KPI cards come
// from the newest entry.
func Build(accounts []upstream.SocialAccount, metrics []upstream.AccountMetrics, insights []upstream.AIInsight) Overview {
	o := Overview{
		Accounts: append([]upstream.SocialAccount{}, accounts...),
		KPICards: []KPICard{},
		InsightsPanel: InsightsPanel{
			Insights: append([]upstream.AIInsight{}, insights...),
		},
	}

	if len(metrics) == 0 {
		o.Advisory = NoMetricsAdvisory
	} else {
		latest := metrics[0]
		o.KPICards = []KPICard{
			{Label: "Followers", Value: humanize.Comma(latest.Followers), Raw: float64(latest.Followers)},
			{Label: "Following", Value: humanize.Comma(latest.Following), Raw: float64(latest.Following)},
			{Label: "Posts", Value: humanize.Comma(latest.Posts), Raw: float64(latest.Posts)},
			{Label: "Engagement Rate", Value: fmt.Sprintf("%.2f%%", latest.EngagementRate), Raw: latest.EngagementRate},
		}
	}

	if len(insights) == 0 {
		o.InsightsPanel.Empty = true
		o.InsightsPanel.EmptyMessage = emptyInsightsMessage
	}
	return o
}

// Source is what Load reads from.
type Source interface {
	ListSocialAccounts(ctx context.Context) ([]upstream.SocialAccount, error)
	GetUsage(ctx context.Context) (*upstream.Usage, error)
	GetDashboard(ctx context.Context) (*upstream.Dashboard, error)
}

// Load fetches everything the overview needs in parallel. Fetch failures
// degrade to empty values and are only logged.
func Load(ctx context.Context, src Source) Overview {
	logger := logging.FromContext(ctx)

	var (
		accounts []upstream.SocialAccount
		dash     *upstream.Dashboard
		usage    *upstream.Usage
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		if accounts, err = src.ListSocialAccounts(ctx); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Failed to load social accounts")
			accounts = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if dash, err = src.GetDashboard(ctx); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Failed to load dashboard metrics")
			dash = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if usage, err = src.GetUsage(ctx); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Failed to load usage")
			usage = nil
		}
		return nil
	})
	_ = g.Wait()

	var (
		metrics  []upstream.AccountMetrics
		insights []upstream.AIInsight
	)
	if dash != nil {
		metrics, insights = dash.RecentMetrics, dash.Insights
	}
	o := Build(accounts, metrics, insights)
	o.Usage = usage
	return o
}
