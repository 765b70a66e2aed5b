package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect the attendance log",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceList,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceListCmd)

	attendanceListCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceListCmd.Flags().Int("limit", 0, "Show at most this many records (0 = all)")
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.service.ListAttendance(ctx)
	if err != nil {
		return describeError(err)
	}
	if limit := mustGetInt(cmd, "limit"); limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	if mustGetBool(cmd, "json") {
		type recordJSON struct {
			Name      string `json:"name"`
			Timestamp string `json:"timestamp"`
		}
		out := make([]recordJSON, len(records))
		for i, r := range records {
			out[i] = recordJSON{Name: r.StudentName, Timestamp: r.Timestamp.UTC().Format("2006-01-02T15:04:05Z")}
		}
		return outputJSON(out)
	}

	if len(records) == 0 {
		fmt.Println("No attendance recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTIME")
	fmt.Fprintln(w, "----\t----")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\n", r.StudentName, r.Timestamp.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d records\n", len(records))
	return nil
}
