// Package alerts finds operators whose most recent score falls below the
// configured cutoffs of a horizon.
package alerts

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"vo-performance-bot/internal/performance"
)

// ThresholdSet is an ordered list of distinct cutoffs for one horizon.
type ThresholdSet []float64

// Validate checks every cutoff lies in (0, 1] and appears once.
func (t ThresholdSet) Validate() error {
	seen := make(map[float64]struct{}, len(t))
	for _, v := range t {
		if v <= 0 || v > 1 {
			return fmt.Errorf("threshold %v out of range (0, 1]", v)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("duplicate threshold %v", v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// Alert is one breach of one threshold by one operator.
type Alert struct {
	EntityID       int64  `json:"entity_id"`
	Name           string `json:"name"`
	ValidatorCount int    `json:"validator_count"`
	Period         string `json:"period"`
	Percent        string `json:"percent"`
}

// Group holds the alerts raised for a single threshold.
type Group struct {
	Horizon   performance.Horizon `json:"horizon"`
	Threshold float64             `json:"threshold"`
	Alerts    []Alert             `json:"alerts"`
}

// Result is the outcome of evaluating one horizon.
type Result struct {
	Horizon   performance.Horizon `json:"horizon"`
	Groups    []Group             `json:"groups"`
	Breaching []int64             `json:"breaching"`
}

// Evaluate scans the snapshot in ascending ID order. Operators that are not
// verified or have no validators are ignored, as are operators whose latest
// point is absent.
func Evaluate(snap performance.Snapshot, horizon performance.Horizon, thresholds ThresholdSet) Result {
	res := Result{Horizon: horizon, Groups: make([]Group, len(thresholds))}
	for i, th := range thresholds {
		res.Groups[i] = Group{Horizon: horizon, Threshold: th}
	}

	breaching := make(map[int64]struct{})
	for _, id := range snap.SortedIDs() {
		rec := snap[id]
		if !rec.Verified || rec.ValidatorCount <= 0 {
			continue
		}
		date, value, ok := rec.Series(horizon).Latest()
		if !ok || !value.Valid {
			continue
		}
		period := date
		if horizon == performance.Horizon30d {
			period = string(performance.Horizon30d)
		}
		for i, th := range thresholds {
			if !value.Decimal.LessThan(decimal.NewFromFloat(th)) {
				continue
			}
			res.Groups[i].Alerts = append(res.Groups[i].Alerts, Alert{
				EntityID:       rec.ID,
				Name:           rec.Name,
				ValidatorCount: rec.ValidatorCount,
				Period:         period,
				Percent:        performance.FormatPercent(value.Decimal),
			})
			breaching[rec.ID] = struct{}{}
		}
	}

	res.Breaching = make([]int64, 0, len(breaching))
	for id := range breaching {
		res.Breaching = append(res.Breaching, id)
	}
	sort.Slice(res.Breaching, func(i, j int) bool { return res.Breaching[i] < res.Breaching[j] })
	return res
}

// Breaching merges the breaching IDs of several results, ascending and unique.
func Breaching(results ...Result) []int64 {
	seen := make(map[int64]struct{})
	for _, r := range results {
		for _, id := range r.Breaching {
			seen[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FormatThreshold renders a cutoff as a compact percentage, e.g. 0.9 -> "90%".
func FormatThreshold(th float64) string {
	return decimal.NewFromFloat(th).Mul(decimal.NewFromInt(100)).String() + "%"
}

// Thresholds pairs each horizon with its cutoffs.
type Thresholds struct {
	Daily   ThresholdSet
	Monthly ThresholdSet
}

// EvaluateAll evaluates the 24h horizon, then the 30d horizon.
func EvaluateAll(snap performance.Snapshot, th Thresholds) []Result {
	return []Result{
		Evaluate(snap, performance.Horizon24h, th.Daily),
		Evaluate(snap, performance.Horizon30d, th.Monthly),
	}
}
