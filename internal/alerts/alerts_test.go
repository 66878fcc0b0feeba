package alerts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vo-performance-bot/internal/performance"
)

func point(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func TestEvaluateUsesLatestDate(t *testing.T) {
	snap := performance.Snapshot{
		1: {ID: 1, Name: "one", ValidatorCount: 4, Verified: true, Perf24h: performance.Series{
			"2024-01-01": point("0.80"),
			"2024-01-02": point("0.70"),
		}},
	}

	res := Evaluate(snap, performance.Horizon24h, ThresholdSet{0.75})
	require.Len(t, res.Groups, 1)
	require.Equal(t, []Alert{{EntityID: 1, Name: "one", ValidatorCount: 4, Period: "2024-01-02", Percent: "70.00%"}}, res.Groups[0].Alerts)
	require.Equal(t, []int64{1}, res.Breaching)
}

func TestEvaluateMultipleThresholdsAndFilters(t *testing.T) {
	snap := performance.Snapshot{
		3: {ID: 3, Name: "three", ValidatorCount: 1, Verified: true, Perf30d: performance.Series{"2024-03-01": point("0.85")}},
		2: {ID: 2, Name: "unverified", ValidatorCount: 9, Verified: false, Perf30d: performance.Series{"2024-03-01": point("0.10")}},
		4: {ID: 4, Name: "empty", ValidatorCount: 0, Verified: true, Perf30d: performance.Series{"2024-03-01": point("0.10")}},
		5: {ID: 5, Name: "null", ValidatorCount: 3, Verified: true, Perf30d: performance.Series{
			"2024-02-28": point("0.10"),
			"2024-03-01": {},
		}},
		1: {ID: 1, Name: "one", ValidatorCount: 2, Verified: true, Perf30d: performance.Series{"2024-03-01": point("0.5")}},
	}

	res := Evaluate(snap, performance.Horizon30d, ThresholdSet{0.9, 0.8})
	require.Len(t, res.Groups, 2)

	require.Len(t, res.Groups[0].Alerts, 2)
	require.Equal(t, int64(1), res.Groups[0].Alerts[0].EntityID)
	require.Equal(t, int64(3), res.Groups[0].Alerts[1].EntityID)
	require.Equal(t, "30d", res.Groups[0].Alerts[1].Period)
	require.Equal(t, "85.00%", res.Groups[0].Alerts[1].Percent)

	require.Len(t, res.Groups[1].Alerts, 1)
	require.Equal(t, "50.00%", res.Groups[1].Alerts[0].Percent)
	require.Equal(t, []int64{1, 3}, res.Breaching)
}

func TestEvaluateEqualToThresholdDoesNotBreach(t *testing.T) {
	snap := performance.Snapshot{
		1: {ID: 1, ValidatorCount: 1, Verified: true, Perf24h: performance.Series{"2024-01-01": point("0.9")}},
	}
	res := Evaluate(snap, performance.Horizon24h, ThresholdSet{0.9})
	require.Empty(t, res.Groups[0].Alerts)
	require.Empty(t, res.Breaching)
}

func TestBreachingMerge(t *testing.T) {
	require.Equal(t, []int64{1, 2, 5}, Breaching(Result{Breaching: []int64{5, 1}}, Result{Breaching: []int64{2, 5}}))
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "90%", FormatThreshold(0.9))
	require.Equal(t, "99.5%", FormatThreshold(0.995))
}

func TestThresholdSetValidate(t *testing.T) {
	require.NoError(t, ThresholdSet{0.9, 0.8}.Validate())
	require.Error(t, ThresholdSet{0.9, 0.9}.Validate())
	require.Error(t, ThresholdSet{1.5}.Validate())
}
