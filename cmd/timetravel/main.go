package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/config"
	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/logger"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
	"github.com/dvloznov/finance-warehouse/internal/timetravel"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

const previewRows = 5

type app struct {
	engine *timetravel.Engine
	log    zerolog.Logger
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	runners := map[string]func(context.Context, *app, []string) error{
		"versions":    runVersions,
		"latest":      runLatest,
		"at-date":     runAtDate,
		"at-time":     runAtTime,
		"compare":     runCompare,
		"changes":     runChanges,
		"consolidate": runConsolidate,
		"audit":       runAudit,
	}
	run, ok := runners[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	a, err := newApp(os.Getenv("WAREHOUSE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, a.log)

	if err := run(ctx, a, os.Args[2:]); err != nil {
		a.log.Fatal().Err(err).Str("command", cmd).Msg("Command failed")
	}
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.NewWithLevel(cfg.LogLevel)
	store, err := warehouse.New(cfg.Catalog.Warehouse,
		warehouse.WithLogFile(cfg.Ingestion.LogFile),
		warehouse.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &app{
		engine: timetravel.New(store, timetravel.WithLogger(log)),
		log:    log,
	}, nil
}

func printUsage() {
	fmt.Println("Warehouse time travel")
	fmt.Println("\nUsage:")
	fmt.Println("  timetravel <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  versions     List snapshot versions, newest first")
	fmt.Println("  latest       Show the newest snapshot")
	fmt.Println("  at-date      Show the data as it was at the end of a date")
	fmt.Println("  at-time      Show the data as it was at an instant")
	fmt.Println("  compare      Compare two versions")
	fmt.Println("  changes      Summarize versions newer than a given one")
	fmt.Println("  consolidate  Merge versions, latest load winning per business key")
	fmt.Println("  audit        Trace rows across every version")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nThe config file is taken from WAREHOUSE_CONFIG (default warehouse.yaml).")
	fmt.Println("Run 'timetravel <command> -h' for more information on a command.")
}

func runVersions(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	fs.Parse(args)

	snaps, err := a.engine.Versions(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshot versions found.")
		return nil
	}
	fmt.Printf("%-60s %10s %8s  %s\n", "FILE", "SIZE_MB", "ROWS", "CREATED")
	for _, s := range snaps {
		fmt.Printf("%-60s %10.2f %8d  %s\n", s.FileName, s.SizeMB(), s.RowCount, s.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runLatest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("latest", flag.ExitOnError)
	output := fs.String("output", "", "Write the result to this Parquet file")
	fs.Parse(args)

	snap, t, err := a.engine.LatestData(ctx)
	if errors.Is(err, domain.ErrNoData) {
		fmt.Println("No snapshot versions found.")
		return nil
	}
	if err != nil {
		return err
	}
	return emitSnapshot(snap, t, *output)
}

func runAtDate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("at-date", flag.ExitOnError)
	date := fs.String("date", "", "Date as YYYY-MM-DD")
	output := fs.String("output", "", "Write the result to this Parquet file")
	accounts := fs.String("accounts", "", "Comma-separated ledger account codes to keep")
	fs.Parse(args)

	positional(fs, date)
	if *date == "" {
		return fmt.Errorf("--date is required")
	}
	d, err := civil.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("invalid --date %q: %w", *date, err)
	}

	snap, t, err := a.engine.QueryAtDate(ctx, d)
	if errors.Is(err, domain.ErrNoData) {
		fmt.Printf("No data available as of %s.\n", d)
		return nil
	}
	if err != nil {
		return err
	}
	if f := (domain.FilterState{Accounts: splitList(*accounts)}); !f.IsEmpty() {
		t = schema.ApplyFilter(t, f)
	}
	return emitSnapshot(snap, t, *output)
}

func runAtTime(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("at-time", flag.ExitOnError)
	ts := fs.String("timestamp", "", "Instant as RFC3339, e.g. 2024-01-31T18:00:00Z")
	output := fs.String("output", "", "Write the result to this Parquet file")
	fs.Parse(args)

	positional(fs, ts)
	if *ts == "" {
		return fmt.Errorf("--timestamp is required")
	}
	at, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return fmt.Errorf("invalid --timestamp %q: %w", *ts, err)
	}

	snap, t, err := a.engine.QueryAtTimestamp(ctx, at)
	if errors.Is(err, domain.ErrNoData) {
		fmt.Printf("No data available as of %s.\n", at.Format(time.RFC3339))
		return nil
	}
	if err != nil {
		return err
	}
	return emitSnapshot(snap, t, *output)
}

func runCompare(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	v1 := fs.String("v1", "", "First snapshot file name")
	v2 := fs.String("v2", "", "Second snapshot file name")
	output := fs.String("output", "", "Write the comparison to this JSON file")
	fs.Parse(args)

	positional(fs, v1, v2)
	if *v1 == "" || *v2 == "" {
		return fmt.Errorf("--v1 and --v2 are required")
	}
	cmp, err := a.engine.CompareVersions(ctx, *v1, *v2)
	if err != nil {
		return err
	}
	if *output != "" {
		return writeJSON(*output, cmp)
	}

	fmt.Printf("%s: %d rows\n", cmp.VersionA, cmp.RowsA)
	fmt.Printf("%s: %d rows\n", cmp.VersionB, cmp.RowsB)
	fmt.Printf("Row change: %+d\n", cmp.RowChange)
	fmt.Printf("New columns: %s\n", joinOrNone(cmp.NewColumns))
	fmt.Printf("Removed columns: %s\n", joinOrNone(cmp.RemovedColumns))
	fmt.Printf("Common columns: %d\n", len(cmp.CommonColumns))
	printRange("Date range A", cmp.DateRangeA)
	printRange("Date range B", cmp.DateRangeB)
	return nil
}

func runChanges(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("changes", flag.ExitOnError)
	since := fs.String("since", "", "Snapshot file name to compare from")
	output := fs.String("output", "", "Write the summary to this JSON file")
	fs.Parse(args)

	positional(fs, since)
	if *since == "" {
		return fmt.Errorf("--since is required")
	}
	ch, err := a.engine.GetChangesSince(ctx, *since)
	if err != nil {
		return err
	}
	if *output != "" {
		return writeJSON(*output, ch)
	}
	if len(ch.NewerVersions) == 0 {
		fmt.Printf("No versions newer than %s.\n", ch.Since)
		return nil
	}

	fmt.Printf("%d version(s) newer than %s:\n", len(ch.NewerVersions), ch.Since)
	for _, v := range ch.NewerVersions {
		fmt.Printf("  %s  created %s  rows %d  debit %s  credit %s\n",
			v.Snapshot.FileName, v.Snapshot.CreatedAt.Format(time.RFC3339), v.Rows,
			v.TotalDebit.StringFixed(2), v.TotalCredit.StringFixed(2))
		printRange("    dates", v.DateRange)
	}
	return nil
}

func runConsolidate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("consolidate", flag.ExitOnError)
	versions := fs.String("versions", "", "Comma-separated snapshot file names (default: all versions)")
	output := fs.String("output", "", "Write the consolidated view to this Parquet file")
	fs.Parse(args)

	names := splitList(*versions)
	if len(names) == 0 {
		snaps, err := a.engine.Versions(ctx)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			names = append(names, s.FileName)
		}
	}

	t, err := a.engine.CreateConsolidatedView(ctx, names)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		fmt.Println("Consolidated view is empty.")
		return nil
	}
	fmt.Printf("Consolidated %d version(s) into %d rows\n", len(names), t.Len())
	if *output != "" {
		return writeParquet(*output, t, "consolidated")
	}
	printPreview(t)
	return nil
}

func runAudit(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	account := fs.String("account", "", "Ledger account code")
	from := fs.String("from-date", "", "First booking date, YYYY-MM-DD")
	to := fs.String("to-date", "", "Last booking date, YYYY-MM-DD")
	output := fs.String("output", "", "Write the trail to this Parquet file")
	fs.Parse(args)

	f := timetravel.AuditFilter{Account: *account}
	for _, b := range []struct {
		raw string
		dst **civil.Date
	}{{*from, &f.From}, {*to, &f.To}} {
		if b.raw == "" {
			continue
		}
		d, err := civil.ParseDate(b.raw)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", b.raw, err)
		}
		*b.dst = &d
	}

	t, err := a.engine.AuditTrail(ctx, f)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		fmt.Println("No matching rows found in any version.")
		return nil
	}
	fmt.Printf("Found %d row(s)\n", t.Len())
	if *output != "" {
		return writeParquet(*output, t, "audit")
	}

	versions := t.Unique(schema.VersionFile)
	fmt.Printf("Versions involved (%d):\n", versions.Len())
	for i := 0; i < versions.Len(); i++ {
		name, _ := versions.Row(i).String(schema.VersionFile)
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func emitSnapshot(snap domain.Snapshot, t *table.Table, output string) error {
	fmt.Printf("Snapshot: %s (created %s)\n", snap.FileName, snap.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Rows: %d\n", t.Len())
	if first, last, ok := t.DateRange(schema.BookingDate); ok {
		fmt.Printf("Booking dates: %s .. %s\n", first, last)
	}
	if output != "" {
		return writeParquet(output, t, snap.FileName)
	}
	printPreview(t)
	return nil
}

func printPreview(t *table.Table) {
	recs := t.Records()
	if len(recs) > previewRows {
		recs = recs[:previewRows]
	}
	for _, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		fmt.Println(string(b))
	}
	if t.Len() > previewRows {
		fmt.Printf("... %d more row(s)\n", t.Len()-previewRows)
	}
}

func printRange(label string, r *timetravel.DateRange) {
	if r == nil {
		fmt.Printf("%s: n/a\n", label)
		return
	}
	fmt.Printf("%s: %s .. %s\n", label, r.Min, r.Max)
}

func writeParquet(path string, t *table.Table, source string) error {
	if err := warehouse.WriteFile(path, t, warehouse.Meta{CreatedAt: time.Now(), SourceFile: source}); err != nil {
		return err
	}
	fmt.Printf("Wrote %d rows to %s\n", t.Len(), path)
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("writeJSON: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writeJSON: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// positional fills unset flag values from the remaining arguments in order,
// so "compare a.parquet b.parquet" works like "compare -v1 a.parquet -v2 b.parquet".
func positional(fs *flag.FlagSet, dsts ...*string) {
	next := 0
	for _, dst := range dsts {
		if *dst != "" {
			continue
		}
		if next >= fs.NArg() {
			return
		}
		*dst = fs.Arg(next)
		next++
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinOrNone(xs []string) string {
	if len(xs) == 0 {
		return "none"
	}
	return strings.Join(xs, ", ")
}
