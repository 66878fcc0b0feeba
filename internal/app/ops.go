package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"vo-performance-bot/internal/bundle"
	"vo-performance-bot/internal/compose"
	"vo-performance-bot/internal/dispatch"
	"vo-performance-bot/internal/fetcher"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/service"
	"vo-performance-bot/internal/storage"
)

const bundleDivider = "-----"

func (a *App) today() (time.Time, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().In(loc), nil
}

func printBundles(out io.Writer, bundles []string) {
	for i, b := range bundles {
		if i > 0 {
			fmt.Fprintln(out, bundleDivider)
		}
		fmt.Fprintln(out, b)
	}
}

// Alerts composes the threshold report once. With post set it runs a full
// alert cycle against the configured broadcast destinations; otherwise the
// bundles are printed to out.
func (a *App) Alerts(ctx context.Context, post bool, out io.Writer) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var tr service.Transports
	if post {
		bot, err := a.newBot(ctx, true)
		if err != nil {
			return err
		}
		tr = a.transports(bot)
		if tr.Broadcast == nil {
			return errors.New("no broadcast transport configured; enable telegram or webhook")
		}
	}

	svc, err := service.New(a.Config, store, store, tr, nil, a.Logger)
	if err != nil {
		return err
	}
	if post {
		return svc.AlertCycle(ctx)
	}

	report, _, ok, err := svc.AlertReport(ctx, false)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, compose.DataUnavailable)
		return nil
	}
	today, err := a.today()
	if err != nil {
		return err
	}
	printBundles(out, report.Messages(a.Config.Notify.MaxMessageLength, today))
	return nil
}

// Digest runs the daily digest once. Without send it prints each recipient's
// bundles instead of delivering them.
func (a *App) Digest(ctx context.Context, send bool, out io.Writer) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var tr service.Transports
	if send {
		bot, err := a.newBot(ctx, false)
		if err != nil {
			return err
		}
		if bot == nil {
			return errors.New("digest delivery requires the telegram transport")
		}
		tr = a.transports(bot)
	}

	svc, err := service.New(a.Config, store, store, tr, nil, a.Logger)
	if err != nil {
		return err
	}
	if send {
		report, err := svc.DigestCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "delivered: %d, failed: %d, messages: %d\n", len(report.Delivered), len(report.Failed), report.Messages)
		return nil
	}

	entries, subs, err := svc.DigestEntries(ctx)
	if err != nil {
		return err
	}
	users, queues := dispatch.Queues(entries, subs, a.Config.Notify.AllowedUserIDs)
	if len(users) == 0 {
		fmt.Fprintln(out, "No digest recipients.")
		return nil
	}
	for _, userID := range users {
		fmt.Fprintf(out, "== user %d ==\n", userID)
		printBundles(out, bundle.Pack(queues[userID], a.Config.Notify.MaxMessageLength))
	}
	return nil
}

// Operator prints the recent performance blocks for the listed operators.
func (a *App) Operator(ctx context.Context, ids []int64, out io.Writer) error {
	if len(ids) == 0 {
		return errors.New("operator IDs must be positive integers")
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := service.New(a.Config, store, store, service.Transports{}, nil, a.Logger)
	if err != nil {
		return err
	}
	blocks, ok, err := svc.OperatorBlocks(ctx, ids)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, compose.DataUnavailable)
		return nil
	}
	printBundles(out, bundle.Pack(blocks, a.Config.Notify.MaxMessageLength))
	return nil
}

// Info prints data freshness and the next scheduled fire time.
func (a *App) Info(ctx context.Context, out io.Writer) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	latest, ok, err := store.LatestDate(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", service.ErrRepositoryUnavailable, err)
	}
	svc, err := service.New(a.Config, store, store, service.Transports{}, nil, a.Logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, compose.Info(latest, ok))
	fmt.Fprintf(out, "Next scheduled run: %s\n", svc.NextFire().Format(time.RFC3339))
	return nil
}

// Ingest pulls today's operator scores from the SSV API into the store. A dry
// run prints what would be written.
func (a *App) Ingest(ctx context.Context, opts IngestOptions, out io.Writer) error {
	date := opts.Date
	if date == "" {
		date = fetcher.IngestDate(time.Now(), a.Config.Ingest.UTC)
	}
	if err := performance.ParseDate(date); err != nil {
		return err
	}
	src := a.newSource()

	if opts.DryRun {
		ops, err := src.FetchOperators(ctx)
		if err != nil {
			return err
		}
		return printOperators(out, date, ops)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return a.ingestInto(ctx, src, store, date, opts.Overwrite, out)
}

func (a *App) ingestInto(ctx context.Context, src fetcher.OperatorSource, w storage.OperatorWriter, date string, overwrite bool, out io.Writer) error {
	res, err := fetcher.Ingest(ctx, src, w, date, overwrite, a.Logger)
	fmt.Fprintf(out, "date: %s, fetched: %d, written: %d, failed: %d\n", res.Date, res.Fetched, res.Written, res.Failed)
	return err
}

func printOperators(out io.Writer, date string, ops []fetcher.Operator) error {
	if len(ops) == 0 {
		fmt.Fprintln(out, "no operators found")
		return nil
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "ID\tName\tValidators\tVerified\tPrivate\t24h (%s)\t30d\n", date)
	for _, op := range ops {
		fmt.Fprintf(writer, "%d\t%s\t%d\t%t\t%t\t%s\t%s\n",
			op.ID,
			sanitizeInline(op.Name),
			op.ValidatorCount,
			op.Verified,
			op.Private,
			performance.FormatPercent(op.Perf24h),
			performance.FormatPercent(op.Perf30d),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
