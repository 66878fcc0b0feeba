// Package compose renders alert groups, digests and subscription listings as
// plain-text blocks ready for bundling.
package compose

import (
	"fmt"
	"strings"
	"time"

	"vo-performance-bot/internal/alerts"
	"vo-performance-bot/internal/bundle"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/subscription"
)

const (
	// DataUnavailable is the reply used when the repositories return nothing.
	DataUnavailable = "Performance data not available."
	// CycleFailed is the best-effort notice posted when a periodic alert cycle fails.
	CycleFailed = "An error has occurred attempting to send daily alert messages."
	// DigestFailed is the best-effort notice posted when a periodic digest cycle fails.
	DigestFailed = "An error has occurred attempting to send daily performance direct messages."
	// DMProbe is sent privately when a user subscribes, to confirm DMs reach them.
	DMProbe = "You have requested to receive direct message alerts regarding SSV operator performance. This message confirms that you can receive direct messages from the VO Performance Bot."
	// DMProbeFailed warns a subscriber that private messages could not be delivered.
	DMProbeFailed = "An attempt to send you a direct message has failed. This may mean that your direct messages are not open to the bot. Your subscriptions will still be added, but you may not receive daily performance direct messages."
	// SubscriptionsUpdated acknowledges subscribe/unsubscribe.
	SubscriptionsUpdated = "Your subscriptions have been updated."
	// SubscriptionsFailed reports a repository write failure.
	SubscriptionsFailed = "An error occurred while updating your subscriptions."
	// InvalidIDs rejects argument lists without a single positive integer.
	InvalidIDs = "Operator IDs must be positive integers."
	// NotAllowedHere rejects commands issued outside the command chat.
	NotAllowedHere = "VO Performance Bot commands are not allowed in this channel."
)

// AlertHeader is the title line of one threshold group.
func AlertHeader(h performance.Horizon, threshold float64) string {
	return fmt.Sprintf("%s < %s:", h, alerts.FormatThreshold(threshold))
}

// AlertLine renders one breaching operator.
func AlertLine(a alerts.Alert) string {
	return fmt.Sprintf("- %s - %s    (ID: %d, Validators: %d)", a.Name, a.Percent, a.EntityID, a.ValidatorCount)
}

// AlertBlocks renders every non-empty group of a result. A group whose lines
// would not fit in max is split into several blocks, each repeating the header.
func AlertBlocks(res alerts.Result, max int) []string {
	var blocks []string
	for _, g := range res.Groups {
		if len(g.Alerts) == 0 {
			continue
		}
		header := AlertHeader(g.Horizon, g.Threshold)
		lines := make([]string, len(g.Alerts))
		for i, a := range g.Alerts {
			lines[i] = AlertLine(a)
		}
		for _, body := range bundle.Pack(lines, max-bundle.Len(header)-len(bundle.Separator)) {
			blocks = append(blocks, header+bundle.Separator+body)
		}
	}
	return blocks
}

// ReportBlocks renders the alert blocks of several results in order.
func ReportBlocks(results []alerts.Result, max int) []string {
	var blocks []string
	for _, res := range results {
		blocks = append(blocks, AlertBlocks(res, max)...)
	}
	return blocks
}

// DigestHeader identifies the operator a digest block describes.
func DigestHeader(rec performance.Record) string {
	return fmt.Sprintf("%s (ID: %d, Validators: %d)", rec.Name, rec.ID, rec.ValidatorCount)
}

// Digest renders one operator's recent performance: one line per calendar
// day for the days ending today, newest first, then the latest 30d value.
func Digest(rec performance.Record, today time.Time, days int) string {
	var b strings.Builder
	b.WriteString(DigestHeader(rec))
	b.WriteString("\nRecent 24h Performance:")
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format(performance.DateLayout)
		value := "N/A"
		if v, ok := rec.Perf24h[date]; ok && v.Valid {
			value = performance.FormatPercent(v.Decimal)
		}
		fmt.Fprintf(&b, "\n- %s: %s", date, value)
	}
	if _, v, ok := rec.Perf30d.Latest(); ok && v.Valid {
		fmt.Fprintf(&b, "\n30d Performance: %s", performance.FormatPercent(v.Decimal))
	} else {
		b.WriteString("\n30d Performance: unavailable")
	}
	return b.String()
}

// Subscriptions lists a user's daily and alerts subscriptions.
func Subscriptions(set subscription.Set, userID int64) string {
	return fmt.Sprintf("Operator ID Subscriptions:\n- Daily performance direct messages: %s\n- Threshold alert mentions: %s",
		joinIDs(set.Entities(userID, subscription.Daily)),
		joinIDs(set.Entities(userID, subscription.Alerts)))
}

// NoAlerts is broadcast when nothing breaches any threshold.
func NoAlerts(today time.Time) string {
	return fmt.Sprintf("No performance alerts for %s.", today.Format(performance.DateLayout))
}

// MissingIDs lists requested operators absent from the snapshot.
func MissingIDs(ids []int64) string {
	return "Data not found for operator IDs: " + joinIDs(ids)
}

// Info describes how fresh the data is.
func Info(latest string, ok bool) string {
	if !ok {
		return "Hello! This is VO Performance Bot!\nResults are from a snapshot of 24h performance."
	}
	return fmt.Sprintf("Hello! This is VO Performance Bot!\nResults are from a snapshot of 24h performance last collected on %s.", latest)
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "None"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
