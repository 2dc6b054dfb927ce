package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <classroom-id> <encoding-file>",
	Short: "Find the students nearest to a face encoding",
	Long: `Read a face encoding from a file and list the enrolled students of the
classroom nearest to it. The file may hold the encoding in any supported shape,
e.g. a JSON array of 128 numbers. Nothing is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Int("k", constants.DefaultIdentifyK, "Number of candidates")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	classroomID, err := parseID("classroom id", args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading encoding file: %w", err)
	}
	n := facematch.Normalize(data)
	if err := n.Err(); err != nil {
		return fmt.Errorf("encoding file %s: %w", args[1], err)
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		report, err := service.Identify(ctx, classroomID, owner, n.Embedding, mustGetInt(cmd, "k"))
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(report)
		}

		fmt.Printf("Tolerance: %.2f\n", report.Tolerance)
		if report.BestMatch != nil {
			fmt.Printf("Best match: %s (distance %.4f)\n", report.BestMatch.StudentName, report.BestMatch.Distance)
		} else {
			fmt.Println("No student within tolerance")
		}
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tROLL\tNAME\tDISTANCE\tCONFIDENCE\tMATCH")
		fmt.Fprintln(w, "--\t----\t----\t--------\t----------\t-----")
		for _, c := range report.Candidates {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.2f\t%t\n",
				c.StudentID, c.StudentRoll, c.StudentName, c.Distance, c.Confidence, c.WithinTolerance)
		}
		return w.Flush()
	})
}
