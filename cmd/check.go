package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orbitcam/orbitcam/experiment"
)

var (
	checkThreshold float64 // night threshold for the verdict column
	checkStride    int     // sampling stride
)

// checkCmd scores existing images with the same evaluator the run loop uses
var checkCmd = &cobra.Command{
	Use:   "check <image|dir>...",
	Short: "Score images and report the day/night verdict",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandImagePaths(args)
		if err != nil {
			return err
		}
		ev := experiment.NewEvaluator(checkStride)
		report, err := checkImages(cmd.OutOrStdout(), paths, ev, checkThreshold)
		if err != nil {
			return err
		}
		logrus.Infof("Checked %d images: %d day, %d night, %d unreadable", len(paths), report.Day, report.Night, report.Failed)
		return nil
	},
}

func init() {
	checkCmd.Flags().Float64Var(&checkThreshold, "threshold", experiment.DefaultNightThreshold, "Brightness below which an image counts as night")
	checkCmd.Flags().IntVar(&checkStride, "stride", experiment.DefaultSampleStride, "Sampling stride in pixels")
}

// checkReport counts check verdicts.
type checkReport struct {
	Day, Night, Failed int
}

// imageExts are the extensions expandImagePaths picks up from directories.
var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// expandImagePaths replaces each directory argument by the images it holds,
// sorted by name. File arguments are kept as given.
func expandImagePaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// checkImages writes one line per image: path, score and verdict.
// Unreadable images are reported inline and counted, not fatal.
func checkImages(w io.Writer, paths []string, ev experiment.Evaluator, threshold float64) (checkReport, error) {
	var report checkReport
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IMAGE\tSCORE\tVERDICT")
	for _, p := range paths {
		img, err := experiment.DecodeFile(p)
		if err != nil {
			report.Failed++
			fmt.Fprintf(tw, "%s\t-\terror: %v\n", p, err)
			continue
		}
		night, score, err := ev.IsNight(img, threshold)
		if err != nil {
			report.Failed++
			fmt.Fprintf(tw, "%s\t-\terror: %v\n", p, err)
			continue
		}
		verdict := "day"
		if night {
			verdict = "night"
			report.Night++
		} else {
			report.Day++
		}
		fmt.Fprintf(tw, "%s\t%.0f\t%s\n", p, score, verdict)
	}
	return report, tw.Flush()
}
