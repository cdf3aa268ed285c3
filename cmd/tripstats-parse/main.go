// Command tripstats-parse extracts trip records from invoice workbooks on
// disk and prints the per-file outcome and the aggregated summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"tripstats/internal/export"
	applog "tripstats/internal/log"
	"tripstats/internal/services"
	"tripstats/internal/trips/memory"
)

// localUser owns every file parsed in one run.
const localUser = 1

func main() {
	exportPath := flag.String("export", "", "write the consolidated report workbook to this path")
	top := flag.Int("top", 5, "number of cars and drivers to rank")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: tripstats-parse [flags] <invoice.xlsx>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := applog.FromSettings(*logLevel, "text", applog.ComponentExtract)
	applog.SetDefault(logger)

	uploads := make([]services.Upload, 0, flag.NArg())
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
			os.Exit(1)
		}
		uploads = append(uploads, services.Upload{Name: filepath.Base(path), Data: data})
	}

	cfg := services.DefaultTripServiceConfig()
	cfg.TopN = *top
	svc := services.NewTripService(memory.New(), nil, cfg, logger)
	ctx := context.Background()

	report, err := svc.Ingest(ctx, localUser, uploads)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error ingesting files: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Files:")
	fmt.Println("------")
	for _, f := range report.Files {
		line := fmt.Sprintf("  %-40s %-12s records: %3d, dropped: %3d", f.File, f.Outcome, f.Records, f.Dropped)
		if f.Message != "" {
			line += " (" + f.Message + ")"
		}
		fmt.Println(line)
	}
	fmt.Printf("\nTotal records: %d\n\n", report.TotalRecords)

	sum, err := svc.Summary(ctx, localUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error summarising: %v\n", err)
		os.Exit(1)
	}
	ranking, err := svc.Top(ctx, localUser, *top)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error ranking: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"overview": sum.Overview, "top": ranking, "files": sum.Files}); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing summary: %v\n", err)
		os.Exit(1)
	}

	if *exportPath == "" {
		return
	}
	records, err := svc.Records(ctx, localUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing records: %v\n", err)
		os.Exit(1)
	}
	content, err := export.Workbook(records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building report: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*exportPath, content, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *exportPath, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", *exportPath)
}
