package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"agridash/internal/api"
	"agridash/internal/catalog"
	"agridash/internal/config"
	"agridash/internal/engine"
	"agridash/internal/models"
	"agridash/internal/render"
	"agridash/internal/sqlref"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/afero"
)

const verifyTolerance = 1e-9

var errMismatch = errors.New("catalog disagrees with reference SQL")

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := run(context.Background(), afero.NewOsFs(), cfg, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, fs afero.Fs, cfg config.Config, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("report", flag.ContinueOnError)
	dataFlag := flags.String("data", cfg.DataPath, "Dataset path (.csv or .parquet)")
	formatFlag := flags.String("format", "table", "Output format: table, csv, json")
	xlsxFlag := flags.String("xlsx", "", "Also write every result to this .xlsx workbook")
	verifyFlag := flags.Bool("verify", false, "Cross-check results against an in-memory SQLite copy")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: report [options]\n\n")
		fmt.Fprintf(flags.Output(), "Runs the ten dashboard queries and prints their results.\n\n")
		fmt.Fprintf(flags.Output(), "Options:\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Validate flag values
	switch *formatFlag {
	case "table", "csv", "json":
	default:
		return fmt.Errorf("-format must be table, csv or json, got %q", *formatFlag)
	}

	store, err := engine.Load(fs, *dataFlag)
	if err != nil {
		return err
	}
	defer store.Release()

	outcomes := catalog.Run(ctx, store, catalog.Entries())

	switch *formatFlag {
	case "table":
		printTables(stdout, outcomes)
	case "csv":
		err = printCSV(stdout, outcomes)
	case "json":
		err = printJSON(stdout, outcomes)
	}
	if err != nil {
		return err
	}

	if *xlsxFlag != "" {
		if err := writeWorkbook(fs, *xlsxFlag, outcomes); err != nil {
			return err
		}
		slog.Info("workbook written", "path", *xlsxFlag)
	}

	if *verifyFlag {
		return verify(ctx, stdout, store, outcomes)
	}
	return nil
}

func printTables(w io.Writer, outcomes []catalog.Outcome) {
	title := color.New(color.FgCyan, color.Bold)
	for _, o := range outcomes {
		title.Fprintf(w, "\n[%d] %s\n", o.Entry.ID, o.Entry.Title)
		switch {
		case o.Err != nil:
			color.New(color.FgRed).Fprintf(w, "error: %v\n", o.Err)
		case o.Warning != nil:
			color.New(color.FgYellow).Fprintf(w, "%v\n", o.Warning)
		default:
			render.Table(w, o.Result)
		}
	}
}

func printCSV(w io.Writer, outcomes []catalog.Outcome) error {
	formatter := render.NewCSVFormatter(w)
	for _, o := range outcomes {
		fmt.Fprintf(w, "# [%d] %s\n", o.Entry.ID, o.Entry.Title)
		if o.Err != nil {
			fmt.Fprintf(w, "# error: %v\n", o.Err)
			continue
		}
		if err := formatter.Format(o.Result); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, outcomes []catalog.Outcome) error {
	payloads := make([]models.QueryPayload, len(outcomes))
	for i, o := range outcomes {
		payloads[i] = api.Payload(o)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payloads)
}

func writeWorkbook(fs afero.Fs, path string, outcomes []catalog.Outcome) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if err := render.WriteWorkbook(f, outcomes); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func verify(ctx context.Context, w io.Writer, store *engine.ColumnStore, outcomes []catalog.Outcome) error {
	ref, err := sqlref.Open(ctx, store)
	if err != nil {
		return err
	}
	defer ref.Close()

	mismatches, err := ref.Verify(ctx, outcomes, verifyTolerance)
	if err != nil {
		return err
	}
	if len(mismatches) == 0 {
		color.New(color.FgGreen).Fprintln(w, "\nreference check passed")
		return nil
	}
	red := color.New(color.FgRed)
	for _, m := range mismatches {
		red.Fprintf(w, "\n[%d] differs from reference SQL:\n", m.ID)
		for _, p := range m.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	return fmt.Errorf("%w: %d entries", errMismatch, len(mismatches))
}
