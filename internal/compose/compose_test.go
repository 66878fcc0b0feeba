package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vo-performance-bot/internal/alerts"
	"vo-performance-bot/internal/bundle"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/subscription"
)

func point(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

var today = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func TestDigestFillsMissingDays(t *testing.T) {
	rec := performance.Record{ID: 42, Name: "Node", ValidatorCount: 7, Perf24h: performance.Series{
		"2024-01-01": point("0.99"),
	}}

	got := Digest(rec, today, 3)
	want := strings.Join([]string{
		"Node (ID: 42, Validators: 7)",
		"Recent 24h Performance:",
		"- 2024-03-10: N/A",
		"- 2024-03-09: N/A",
		"- 2024-03-08: N/A",
		"30d Performance: unavailable",
	}, "\n")
	require.Equal(t, want, got)
}

func TestDigestRendersValues(t *testing.T) {
	rec := performance.Record{ID: 1, Name: "A", ValidatorCount: 2,
		Perf24h: performance.Series{
			"2024-03-10": point("0.9512"),
			"2024-03-09": {},
		},
		Perf30d: performance.Series{
			"2024-03-01": point("0.5"),
			"2024-03-10": point("0.975"),
		},
	}

	got := Digest(rec, today, 2)
	require.Contains(t, got, "- 2024-03-10: 95.12%")
	require.Contains(t, got, "- 2024-03-09: N/A")
	require.True(t, strings.HasSuffix(got, "30d Performance: 97.50%"))
}

func TestAlertBlocks(t *testing.T) {
	res := alerts.Result{Groups: []alerts.Group{
		{Horizon: performance.Horizon24h, Threshold: 0.9, Alerts: []alerts.Alert{
			{EntityID: 5, Name: "five", ValidatorCount: 3, Percent: "70.00%"},
		}},
		{Horizon: performance.Horizon24h, Threshold: 0.8},
	}}

	blocks := AlertBlocks(res, 2000)
	require.Equal(t, []string{"24h < 90%:\n- five - 70.00%    (ID: 5, Validators: 3)"}, blocks)
}

func TestAlertBlocksSplitLongGroups(t *testing.T) {
	var list []alerts.Alert
	for i := int64(1); i <= 6; i++ {
		list = append(list, alerts.Alert{EntityID: i, Name: "op", ValidatorCount: 1, Percent: "10.00%"})
	}
	res := alerts.Result{Groups: []alerts.Group{{Horizon: performance.Horizon30d, Threshold: 0.95, Alerts: list}}}

	const max = 120
	blocks := AlertBlocks(res, max)
	require.Greater(t, len(blocks), 1)
	for _, b := range blocks {
		require.True(t, strings.HasPrefix(b, "30d < 95%:\n"))
		require.LessOrEqual(t, bundle.Len(b), max)
	}
}

func TestSubscriptions(t *testing.T) {
	set := subscription.NewSet(
		subscription.Key{UserID: 1, EntityID: 9, Kind: subscription.Daily},
		subscription.Key{UserID: 1, EntityID: 3, Kind: subscription.Daily},
	)
	got := Subscriptions(set, 1)
	require.Equal(t, "Operator ID Subscriptions:\n- Daily performance direct messages: 3, 9\n- Threshold alert mentions: None", got)
}

func TestNotices(t *testing.T) {
	require.Equal(t, "No performance alerts for 2024-03-10.", NoAlerts(today))
	require.Equal(t, "Data not found for operator IDs: 4, 8", MissingIDs([]int64{4, 8}))
	require.Contains(t, Info("2024-03-09", true), "last collected on 2024-03-09")
	require.NotContains(t, Info("", false), "collected on")
}
