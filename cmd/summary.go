package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/orbitcam/orbitcam/experiment"
	"github.com/orbitcam/orbitcam/store/sqlite"
)

var summaryIndex string // optional SQLite capture index to report as well

// summaryCmd reports per-run totals from a durable capture log
var summaryCmd = &cobra.Command{
	Use:   "summary [data-log]",
	Short: "Summarize the runs recorded in a durable capture log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := experiment.DefaultConfig(".").DataLogPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := summarizeLog(cmd.OutOrStdout(), path); err != nil {
			return err
		}
		if summaryIndex != "" {
			return summarizeIndex(cmd.OutOrStdout(), summaryIndex)
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryIndex, "index", "", "SQLite capture index to summarize as well")
}

func summarizeLog(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	runs, skipped, err := experiment.ParseDataLog(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	fmt.Fprintf(w, "=== %s: %d runs ===\n", path, len(runs))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCAPTURES\tFIRST\tLAST\tSIZE")
	for i, r := range runs {
		first, last := "-", "-"
		if n := len(r.Records); n > 0 {
			first = experiment.FormatStamp(r.Records[0].Timestamp)
			last = experiment.FormatStamp(r.Records[n-1].Timestamp)
		}
		size := "not finalized"
		if r.Ended {
			size = fmt.Sprintf("%d MB", r.SizeMB)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i+1, len(r.Records), first, last, size)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Fprintf(w, "Skipped %d unrecognized lines\n", skipped)
	}
	return nil
}

func summarizeIndex(w io.Writer, path string) error {
	idx, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer idx.Close()

	runs, err := idx.Runs()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "=== %s: %d indexed runs ===\n", path, len(runs))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCAPTURES\tFIRST\tLAST")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.RunID, r.Captures, r.First.Format("2006-01-02 15:04:05"), r.Last.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
