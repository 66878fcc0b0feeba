package performance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSeriesLatestUsesMaxDateKey(t *testing.T) {
	s := Series{
		"2024-01-01": decimal.NewNullDecimal(decimal.RequireFromString("0.80")),
		"2024-01-02": decimal.NewNullDecimal(decimal.RequireFromString("0.70")),
	}
	date, v, ok := s.Latest()
	require.True(t, ok)
	require.Equal(t, "2024-01-02", date)
	require.True(t, v.Valid)
	require.Equal(t, "0.7", v.Decimal.String())

	_, _, ok = Series{}.Latest()
	require.False(t, ok)
}

func TestParseValue(t *testing.T) {
	v, ok := ParseValue("0.985")
	require.True(t, ok)
	require.True(t, v.Valid)
	require.Equal(t, "0.985", v.Decimal.String())

	v, ok = ParseValue("97.5%")
	require.True(t, ok)
	require.Equal(t, "0.975", v.Decimal.String())

	v, ok = ParseValue("")
	require.True(t, ok)
	require.False(t, v.Valid)

	v, ok = ParseValue("n/a")
	require.False(t, ok)
	require.False(t, v.Valid)
}

func TestSnapshotOrdering(t *testing.T) {
	snap := Snapshot{7: {ID: 7}, 2: {ID: 2, Perf24h: Series{"2024-02-01": decimal.NullDecimal{}}}, 5: {ID: 5}}
	require.Equal(t, []int64{2, 5, 7}, snap.SortedIDs())

	date, ok := snap.LatestDate()
	require.True(t, ok)
	require.Equal(t, "2024-02-01", date)
}

func TestNormalizeAddress(t *testing.T) {
	require.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", NormalizeAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	require.Equal(t, "not-an-address", NormalizeAddress(" not-an-address "))
}

func TestFormatPercent(t *testing.T) {
	require.Equal(t, "70.00%", FormatPercent(decimal.RequireFromString("0.7")))
	require.Equal(t, "98.77%", FormatPercent(decimal.RequireFromString("0.98765")))
	require.Equal(t, "100.00%", FormatPercent(decimal.NewFromInt(1)))
}
