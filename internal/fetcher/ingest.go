package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/storage"
)

// IngestResult summarises one ingest run.
type IngestResult struct {
	Date    string
	Fetched int
	Written int
	Failed  int
}

// IngestDate returns today's date key in UTC or in the local zone.
func IngestDate(now time.Time, utc bool) string {
	if utc {
		now = now.UTC()
	}
	return now.Format(performance.DateLayout)
}

// Ingest fetches all operators and stores one point per horizon at date.
// A failed write is logged and counted and does not stop the run.
func Ingest(ctx context.Context, src OperatorSource, w storage.OperatorWriter, date string, overwrite bool, logger zerolog.Logger) (IngestResult, error) {
	logger = logger.With().Str("component", "ingest").Str("date", date).Logger()
	res := IngestResult{Date: date}
	if err := performance.ParseDate(date); err != nil {
		return res, err
	}

	ops, err := src.FetchOperators(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch operators: %w", err)
	}
	res.Fetched = len(ops)

	var errs []error
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := w.UpsertOperator(ctx, op.Record(date), date, overwrite); err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("operator %d: %w", op.ID, err))
			logger.Error().Err(err).Int64("operator_id", op.ID).Msg("store operator failed")
			continue
		}
		res.Written++
	}

	logger.Info().Int("fetched", res.Fetched).Int("written", res.Written).Int("failed", res.Failed).Bool("overwrite", overwrite).Msg("ingest finished")
	return res, errors.Join(errs...)
}
