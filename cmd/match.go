package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Identify the student in a photo",
	Long: `Identify the student in a photo and, unless --record=false is given,
record their attendance the same way the API does.

Example:
  face-attendance match --image probe.jpg
  face-attendance match --image probe.jpg --record=false --threshold 0.4`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("image", "", "Photo to identify (required)")
	matchCmd.Flags().Bool("record", true, "Record attendance when a student is recognised")
	matchCmd.Flags().Float64("threshold", 0, "Maximum cosine distance for a match (overrides MATCH_THRESHOLD)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	_ = matchCmd.MarkFlagRequired("image")
}

func runMatch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(mustGetString(cmd, "image"))
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	threshold := mustGetFloat64(cmd, "threshold")
	ctx := context.Background()
	a, err := newApp(ctx, false, func(cfg *config.Config) {
		if threshold > 0 {
			cfg.Matching.Threshold = threshold
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	var result *attendance.MatchResult
	if mustGetBool(cmd, "record") {
		result, err = a.service.Identify(ctx, data)
	} else {
		result, err = a.service.Match(ctx, data)
	}
	if err != nil {
		return describeError(err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"match":    result.Name,
			"distance": result.Distance,
			"recorded": result.Recorded,
		})
	}

	if !result.Matched {
		if result.Distance > 0 {
			fmt.Printf("No match (closest distance %.4f, threshold %.2f)\n", result.Distance, a.cfg.Matching.Threshold)
		} else {
			fmt.Println("No match (roster is empty)")
		}
		return nil
	}
	fmt.Printf("Matched: %s (ID %d, distance %.4f)\n", result.Name, result.StudentID, result.Distance)
	if result.Recorded {
		fmt.Println("Attendance recorded")
	}
	return nil
}
