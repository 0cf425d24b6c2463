package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/RowanDark/cipherlab/internal/runstore"
)

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "path to a config file (default: standard search path)")
	attackName := fs.String("attack", "", "only show runs of this attack")
	status := fs.String("status", "", "only show runs with this status (succeeded, failed)")
	limit := fs.Int("limit", 20, "maximum number of runs to show (0 for all)")
	asJSON := fs.Bool("json", false, "print runs as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	switch runstore.Status(*status) {
	case "", runstore.StatusSucceeded, runstore.StatusFailed:
	default:
		fmt.Fprintf(os.Stderr, "unknown status %q\n", *status)
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	store, err := runstore.Open(cfg.StorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open run store: %v\n", err)
		return 1
	}
	defer store.Close()

	runs, err := store.List(context.Background(), runstore.Filter{
		Attack: *attackName,
		Status: runstore.Status(*status),
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "list runs: %v\n", err)
		return 1
	}

	if *asJSON {
		if runs == nil {
			runs = []runstore.Run{}
		}
		if err := writeJSON(os.Stdout, runs); err != nil {
			fmt.Fprintf(os.Stderr, "write runs: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tATTACK\tORACLE\tSTATUS\tQUERIES\tDURATION\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Attack, r.Oracle, r.Status, r.Queries,
			r.Duration().Round(time.Millisecond), r.StartedAt.Local().Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "write runs: %v\n", err)
		return 1
	}
	return 0
}
