package performance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DateLayout is the ISO date layout used for series keys.
const DateLayout = "2006-01-02"

// Horizon identifies a reporting period.
type Horizon string

const (
	Horizon24h Horizon = "24h"
	Horizon30d Horizon = "30d"
)

// Valid reports whether h is a known horizon.
func (h Horizon) Valid() bool {
	return h == Horizon24h || h == Horizon30d
}

// Series maps ISO dates to a fractional score. A key whose value is not
// Valid is a recorded but absent point, which is different from zero.
type Series map[string]decimal.NullDecimal

// Latest returns the point stored under the lexicographically greatest date.
func (s Series) Latest() (string, decimal.NullDecimal, bool) {
	if len(s) == 0 {
		return "", decimal.NullDecimal{}, false
	}
	var latest string
	for date := range s {
		if date > latest {
			latest = date
		}
	}
	return latest, s[latest], true
}

// Dates returns all keys in descending order.
func (s Series) Dates() []string {
	dates := make([]string, 0, len(s))
	for date := range s {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// Record is one tracked operator with both performance series.
type Record struct {
	ID             int64
	Name           string
	ValidatorCount int
	Verified       bool
	Private        bool
	Address        string
	Perf24h        Series
	Perf30d        Series
}

// Series returns the series for the given horizon.
func (r Record) Series(h Horizon) Series {
	if h == Horizon30d {
		return r.Perf30d
	}
	return r.Perf24h
}

// Snapshot is a point-in-time read of all requested records keyed by ID.
type Snapshot map[int64]Record

// SortedIDs returns the snapshot IDs in ascending order.
func (s Snapshot) SortedIDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LatestDate returns the most recent 24h date present across the snapshot.
func (s Snapshot) LatestDate() (string, bool) {
	var latest string
	for _, rec := range s {
		if date, _, ok := rec.Perf24h.Latest(); ok && date > latest {
			latest = date
		}
	}
	return latest, latest != ""
}

// ParseValue converts a stored data point into a fraction. Plain numbers are
// taken as-is; strings carrying a percent sign are divided by 100. The second
// return value is false when raw cannot be parsed.
func ParseValue(raw string) (decimal.NullDecimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return decimal.NullDecimal{}, true
	}
	if strings.HasSuffix(raw, "%") {
		d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(raw, "%")))
		if err != nil {
			return decimal.NullDecimal{}, false
		}
		return decimal.NewNullDecimal(d.Div(decimal.NewFromInt(100))), true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(d), true
}

// FormatValue renders a point for storage. Absent points become the empty string.
func FormatValue(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.String()
}

var hundred = decimal.NewFromInt(100)

// FormatPercent renders a fraction as a percentage fixed to two decimals.
// It is the only numeric rendering used in messages.
func FormatPercent(v decimal.Decimal) string {
	return v.Mul(hundred).StringFixed(2) + "%"
}

// NormalizeAddress returns the EIP-55 checksummed form of a hex address, or the
// trimmed input when it is not a valid address.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// ParseDate validates an ISO date key.
func ParseDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	return nil
}
