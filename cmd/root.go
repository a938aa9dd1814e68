package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orbitcam/orbitcam/device"
	"github.com/orbitcam/orbitcam/experiment"
	"github.com/orbitcam/orbitcam/experiment/trace"
	"github.com/orbitcam/orbitcam/position"
	"github.com/orbitcam/orbitcam/store/sqlite"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "orbitcam",
	Short: "Time-boxed camera data collection with night filtering and storage budgets",
}

// runCmd runs one experiment using config file, environment and flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a capture experiment",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := loadSettings(cmd.Flags())
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		closeLog, err := setupLogging(s.LogLevel, s.LogFile)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		res, err := runExperiment(ctx, s, runOverrides{})
		stop()

		if res != nil {
			printResult(cmd.OutOrStdout(), res)
		}
		if err != nil {
			logrus.Errorf("Experiment failed: %v", err)
		}
		if cerr := closeLog(); cerr != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", cerr)
		}
		if err != nil {
			os.Exit(1)
		}
	},
}

// runOverrides replaces collaborators that would otherwise be built from
// settings. Zero fields keep the configured implementation.
type runOverrides struct {
	camera experiment.Camera
	clock  experiment.Clock
}

// runExperiment builds the collaborators named in s and runs the supervisor.
func runExperiment(ctx context.Context, s *settings, o runOverrides) (*experiment.Result, error) {
	cam := o.camera
	if cam == nil {
		var err error
		if cam, err = device.New(s.Device, s.DeviceOpts); err != nil {
			return nil, fmt.Errorf("creating camera %q: %w", s.Device, err)
		}
	}
	pos := position.New(s.Position, s.PosOpts)

	var index []experiment.RecordSink
	if s.IndexPath != "" {
		idx, err := sqlite.Open(s.IndexPath)
		if err != nil {
			_ = cam.Close()
			return nil, err
		}
		defer func() {
			if err := idx.Close(); err != nil {
				logrus.Warnf("closing capture index: %v", err)
			}
		}()
		index = append(index, idx)
		logrus.Infof("Indexing captures in %s", s.IndexPath)
	}

	logrus.Infof("Starting experiment with device=%s, position=%s, duration=%s, cadence=%s, max size=%.0f, max images=%d",
		s.Device, s.Position, s.Experiment.Duration, s.Experiment.Cadence, s.Experiment.MaxSize, s.Experiment.MaxImages)
	start := time.Now()

	sup := experiment.NewSupervisor(s.Experiment, experiment.Deps{
		Camera:   cam,
		Position: pos,
		Clock:    o.clock,
		Index:    index,
	})
	res, err := sup.Run(ctx)
	if res != nil {
		logrus.Infof("Experiment finished after %s: %s", time.Since(start).Round(time.Second), res.Reason)
	}
	return res, err
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	registerRunFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(summaryCmd)
}

// printResult writes the end-of-run report.
func printResult(w io.Writer, res *experiment.Result) {
	sum := trace.Summarize(res.Trace)
	fmt.Fprintf(w, "=== Experiment %s ===\n", res.RunID)
	fmt.Fprintf(w, "Stop Reason          : %s\n", res.Reason)
	fmt.Fprintf(w, "Window               : %s to %s\n", res.Window.Start.Format(time.RFC3339), res.Window.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Iterations           : %d\n", sum.TotalIterations)
	fmt.Fprintf(w, "Accepted Images      : %d\n", res.Accepted)
	fmt.Fprintf(w, "Total Size           : %.2f MB\n", res.TotalSize)
	fmt.Fprintf(w, "Night Discards       : %d\n", sum.NightDiscards)
	fmt.Fprintf(w, "Size Rejections      : %d\n", sum.SizeRejections)
	fmt.Fprintf(w, "Failures             : %d\n", sum.Failures)
	for _, kind := range []experiment.ErrorKind{experiment.KindCapture, experiment.KindDecode, experiment.KindPosition, experiment.KindStorage, experiment.KindUnknown} {
		if n := sum.FailuresByKind[kind.String()]; n > 0 {
			fmt.Fprintf(w, "  %-19s: %d\n", kind, n)
		}
	}
	fmt.Fprintf(w, "Cadence Overruns     : %d (max %s)\n", sum.Overruns, sum.MaxOverrun)
	if sum.TotalIterations > 0 {
		fmt.Fprintf(w, "Mean Iteration Time  : %s\n", sum.MeanElapsed.Round(time.Millisecond))
		fmt.Fprintf(w, "Mean Brightness      : %.1f\n", sum.MeanBrightness)
	}
}
