package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var encodingsCmd = &cobra.Command{
	Use:   "encodings",
	Short: "Inspect and migrate stored face encodings",
}

var encodingsCheckCmd = &cobra.Command{
	Use:   "check <classroom-id>",
	Short: "Report the stored encoding of every student of a classroom",
	Args:  cobra.ExactArgs(1),
	RunE:  runEncodingsCheck,
}

var encodingsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite every stored encoding of the owner into canonical form",
	Long: `Rewrite every stored face encoding of the owner as a flat JSON array of
128 numbers and refresh the search vector. Students whose encodings cannot be
read are reported and left untouched.`,
	Args: cobra.NoArgs,
	RunE: runEncodingsMigrate,
}

func init() {
	rootCmd.AddCommand(encodingsCmd)
	encodingsCmd.AddCommand(encodingsCheckCmd)
	encodingsCmd.AddCommand(encodingsMigrateCmd)

	encodingsCheckCmd.Flags().Bool("json", false, "Output as JSON")
	encodingsMigrateCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEncodingsCheck(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	classroomID, err := parseID("classroom id", args[0])
	if err != nil {
		return err
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		report, err := service.EncodingReport(ctx, classroomID, owner)
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(report)
		}

		fmt.Printf("Classroom: %s\n", report.ClassroomName)
		fmt.Printf("Students: %d, with encoding: %d, valid: %d\n\n",
			report.TotalStudents, report.StudentsWithEncodings, report.StudentsWithValidEncodings)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFORMAT\tLENGTH\tVALID\tREASON")
		fmt.Fprintln(w, "--\t----\t------\t------\t-----\t------")
		for _, s := range report.Students {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\t%s\n",
				s.StudentID, s.Name, s.EncodingFormat, s.EncodingLength, s.EncodingValid, s.Reason)
		}
		return w.Flush()
	})
}

func runEncodingsMigrate(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		roster, err := database.GetRosterWriter(ctx)
		if err != nil {
			return fmt.Errorf("roster storage: %w", err)
		}
		students, err := roster.ListOwnerStudents(ctx, owner)
		if err != nil {
			return fmt.Errorf("listing students: %w", err)
		}

		var bar *progressbar.ProgressBar
		if !jsonOutput {
			bar = progressbar.NewOptions(len(students),
				progressbar.OptionSetDescription("Migrating encodings"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("students"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}

		report, err := service.MigrateEncodings(ctx, owner, func() {
			if bar != nil {
				bar.Add(1)
			}
		})
		if bar != nil {
			bar.Finish()
			fmt.Println()
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(report)
		}

		fmt.Println(report.Message)
		fmt.Printf("Total: %d, migrated: %d, unchanged: %d, skipped: %d, errors: %d\n",
			report.TotalStudents, report.MigratedCount, report.UnchangedCount, report.SkippedCount, report.ErrorCount)
		for _, e := range report.Results {
			if e.Status == attendance.MigrationError {
				fmt.Printf("  student %d (%s): %s\n", e.StudentID, e.Name, e.Reason)
			}
		}
		return nil
	})
}
