package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/encoder"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Classroom roster commands",
}

var rosterListCmd = &cobra.Command{
	Use:   "list <classroom-id>",
	Short: "List the active students of a classroom",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterList,
}

var rosterImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create a classroom with its students from a YAML file",
	Long: `Create a classroom and enroll its students from a YAML file. Face
encodings may be given in any supported shape and are stored canonically.

Example file:
  name: 7.A
  subject: Mathematics
  students:
    - name: Jana Nováková
      roll_number: "01"
      face_encoding: [0.01, -0.12, ...]`,
	Args: cobra.ExactArgs(1),
	RunE: runRosterImport,
}

var rosterEnrollCmd = &cobra.Command{
	Use:   "enroll <student-id> <image>",
	Short: "Store a student's face encoding from a portrait",
	Long: `Detect the single face in a portrait photo and store its encoding for the
student, replacing any previous one. Photos with no face or with more than
one face are rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runRosterEnroll,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterListCmd)
	rosterCmd.AddCommand(rosterImportCmd)
	rosterCmd.AddCommand(rosterEnrollCmd)

	rosterListCmd.Flags().String("search", "", "Filter students by name")
	rosterListCmd.Flags().Bool("json", false, "Output as JSON")
	rosterImportCmd.Flags().Bool("json", false, "Output as JSON")
	rosterEnrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRosterList(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	classroomID, err := parseID("classroom id", args[0])
	if err != nil {
		return err
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		students, err := service.Roster(ctx, classroomID, owner, mustGetString(cmd, "search"))
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(students)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tROLL\tNAME\tEMAIL\tENCODING")
		fmt.Fprintln(w, "--\t----\t----\t-----\t--------")
		for _, s := range students {
			encoding := "no"
			if s.HasFaceEncoding {
				encoding = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Roll, s.Name, s.Email, encoding)
		}
		return w.Flush()
	})
}

// readImportFile parses a classroom import file.
func readImportFile(path string) (attendance.ClassroomImport, error) {
	var in attendance.ClassroomImport
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("reading import file: %w", err)
	}
	if err := yaml.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("parsing import file: %w", err)
	}
	return in, nil
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	in, err := readImportFile(args[0])
	if err != nil {
		return err
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		result, err := service.ImportClassroom(ctx, owner, in)
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(result)
		}

		fmt.Printf("Created classroom %q (id %d)\n", in.Name, result.ClassroomID)
		fmt.Printf("Enrolled %d students, %d with a face encoding\n", result.Students, result.WithEncoding)
		for _, inv := range result.InvalidEncoding {
			fmt.Printf("Warning: student %d enrolled without encoding: %s\n", inv.StudentID, inv.Reason)
		}
		return nil
	})
}

func runRosterEnroll(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	studentID, err := parseID("student id", args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	return withService(func(ctx context.Context, cfg *config.Config, service *attendance.Service) error {
		img, err := capture.NewIntake(&cfg.Capture).Prepare(data)
		if err != nil {
			return fmt.Errorf("image %s: %w", args[1], err)
		}

		result, err := service.EnrollFace(ctx, owner, studentID, img.Data, encoder.NewClient(&cfg.Encoder))
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(result)
		}

		action := "Stored"
		if result.Replaced {
			action = "Replaced"
		}
		fmt.Printf("%s face encoding of %s (id %d)\n", action, result.StudentName, result.StudentID)
		return nil
	})
}
