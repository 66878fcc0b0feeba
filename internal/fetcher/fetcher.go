package fetcher

import (
	"context"

	"github.com/shopspring/decimal"

	"vo-performance-bot/internal/performance"
)

// OperatorSource retrieves the current operator list with today's scores.
type OperatorSource interface {
	FetchOperators(ctx context.Context) ([]Operator, error)
}

// Operator is one operator as reported by the upstream API. Scores are
// fractions, already divided by 100.
type Operator struct {
	ID             int64
	Name           string
	ValidatorCount int
	Verified       bool
	Private        bool
	Address        string
	Perf24h        decimal.Decimal
	Perf30d        decimal.Decimal
}

// Record converts o into a record holding a single point per horizon at date.
func (o Operator) Record(date string) performance.Record {
	return performance.Record{
		ID:             o.ID,
		Name:           o.Name,
		ValidatorCount: o.ValidatorCount,
		Verified:       o.Verified,
		Private:        o.Private,
		Address:        o.Address,
		Perf24h:        performance.Series{date: decimal.NewNullDecimal(o.Perf24h)},
		Perf30d:        performance.Series{date: decimal.NewNullDecimal(o.Perf30d)},
	}
}
