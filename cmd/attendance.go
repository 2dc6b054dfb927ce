package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/encoder"
	"github.com/spf13/cobra"
)

var markCmd = &cobra.Command{
	Use:   "mark <classroom-id> <image>",
	Short: "Mark attendance from a classroom photo",
	Long: `Send a classroom photo to the encoder service, match the detected faces
against the enrolled students and merge the result into the attendance of the
day. Students already present on the date stay present.

Examples:
  attendance mark 12 class.jpg --owner 3
  attendance mark 12 class.jpg --owner 3 --date 2026-09-01 --json`,
	Args: cobra.ExactArgs(2),
	RunE: runMark,
}

var statusCmd = &cobra.Command{
	Use:   "status <classroom-id>",
	Short: "Show the attendance of a classroom day",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var absentCmd = &cobra.Command{
	Use:   "absent <classroom-id>",
	Short: "Mark every student of a classroom day absent",
	Long: `Mark every active student of the classroom absent on the date. Use this
when a capture has no usable faces, e.g. an empty classroom.`,
	Args: cobra.ExactArgs(1),
	RunE: runAbsent,
}

var presentCmd = &cobra.Command{
	Use:   "present <classroom-id> <student-id>...",
	Short: "Mark students present by hand",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPresent,
}

var eventsCmd = &cobra.Command{
	Use:   "events <classroom-id>",
	Short: "List the writes made to a classroom day",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

var reportCmd = &cobra.Command{
	Use:   "report <classroom-id>",
	Short: "Show classroom attendance over a date range",
	Long: `Show the recorded attendance of a classroom grouped by date, newest first.
The range defaults to the last 30 days.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

var historyCmd = &cobra.Command{
	Use:   "history <student-id>",
	Short: "Show the attendance history of a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	for _, c := range []*cobra.Command{markCmd, statusCmd, absentCmd, presentCmd, eventsCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("date", "", "Attendance date (YYYY-MM-DD, default today)")
		c.Flags().Bool("json", false, "Output as JSON")
	}
	for _, c := range []*cobra.Command{reportCmd, historyCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("from", "", "Start date (YYYY-MM-DD)")
		c.Flags().String("to", "", "End date (YYYY-MM-DD)")
		c.Flags().Bool("json", false, "Output as JSON")
	}

	absentCmd.Flags().String("reason", "", "Reason recorded with the event")
}

// dayKey builds the classroom day addressed by the first argument and --date.
func dayKey(cmd *cobra.Command, classroomArg string) (database.DayKey, error) {
	owner, err := ownerID(cmd)
	if err != nil {
		return database.DayKey{}, err
	}
	classroomID, err := parseID("classroom id", classroomArg)
	if err != nil {
		return database.DayKey{}, err
	}
	date, err := dateFlag(cmd, "date", time.Now().UTC())
	if err != nil {
		return database.DayKey{}, err
	}
	return database.NewDayKey(classroomID, owner, date), nil
}

// dateRange reads --from and --to. With defaults, the end falls back to today
// and the start to the DefaultRangeDays ending there; otherwise missing bounds
// stay open.
func dateRange(cmd *cobra.Command, defaults bool) (database.DateRange, error) {
	var toFallback time.Time
	if defaults {
		toFallback = database.NewDayKey(0, 0, time.Now().UTC()).Date
	}
	to, err := dateFlag(cmd, "to", toFallback)
	if err != nil {
		return database.DateRange{}, err
	}

	var fromFallback time.Time
	if defaults {
		fromFallback = to.AddDate(0, 0, -(constants.DefaultRangeDays - 1))
	}
	from, err := dateFlag(cmd, "from", fromFallback)
	if err != nil {
		return database.DateRange{}, err
	}
	return database.DateRange{From: from, To: to}, nil
}

// withService runs fn against a service over the configured storage.
func withService(fn func(ctx context.Context, cfg *config.Config, service *attendance.Service) error) error {
	cfg := config.Load()
	ctx := context.Background()

	service, closeStorage, err := newService(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer closeStorage()

	return fn(ctx, cfg, service)
}

func emitReport(cmd *cobra.Command, report *attendance.Report) error {
	if mustGetBool(cmd, "json") {
		return outputJSON(report)
	}
	printReport(report)
	return nil
}

func runMark(cmd *cobra.Command, args []string) error {
	key, err := dayKey(cmd, args[0])
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
		if img.Resized && !mustGetBool(cmd, "json") {
			fmt.Printf("Image downscaled to %dx%d\n", img.Width, img.Height)
		}

		report, err := service.Mark(ctx, key, img.Data, encoder.NewClient(&cfg.Encoder))
		if err != nil {
			return err
		}
		return emitReport(cmd, report)
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	key, err := dayKey(cmd, args[0])
	if err != nil {
		return err
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		day, err := service.Day(ctx, key)
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(day)
		}

		fmt.Printf("Classroom: %s\nDate: %s\n\n", day.Classroom, day.Date)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tROLL\tNAME\tSTATUS\tMARKED AT")
		fmt.Fprintln(w, "--\t----\t----\t------\t---------")
		for _, e := range day.Attendance {
			status, marked := "not marked", "-"
			if e.Status != "" {
				status = string(e.Status)
			}
			if e.MarkedAt != nil {
				marked = e.MarkedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.StudentID, e.StudentRoll, e.StudentName, status, marked)
		}
		return w.Flush()
	})
}

func runAbsent(cmd *cobra.Command, args []string) error {
	key, err := dayKey(cmd, args[0])
	if err != nil {
		return err
	}
	reason := mustGetString(cmd, "reason")

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		report, err := service.ForceAbsent(ctx, key, reason)
		if err != nil {
			return err
		}
		return emitReport(cmd, report)
	})
}

func runPresent(cmd *cobra.Command, args []string) error {
	key, err := dayKey(cmd, args[0])
	if err != nil {
		return err
	}
	studentIDs := make([]int64, 0, len(args)-1)
	for _, arg := range args[1:] {
		id, err := parseID("student id", arg)
		if err != nil {
			return err
		}
		studentIDs = append(studentIDs, id)
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		report, err := service.MarkPresent(ctx, key, studentIDs)
		if err != nil {
			return err
		}
		return emitReport(cmd, report)
	})
}

func runEvents(cmd *cobra.Command, args []string) error {
	key, err := dayKey(cmd, args[0])
	if err != nil {
		return err
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		events, err := service.Events(ctx, key)
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(events)
		}
		if len(events) == 0 {
			fmt.Printf("No events for %s\n", key.DateString())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tKIND\tFACES\tMATCHED\tPRESENT\tABSENT\tREASON")
		fmt.Fprintln(w, "----\t----\t-----\t-------\t-------\t------\t------")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", e.CreatedAt.Local().Format(time.DateTime),
				e.Kind, e.FacesDetected, e.FacesMatched, e.PresentCount, e.AbsentCount, e.Reason)
		}
		return w.Flush()
	})
}

func runReport(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	classroomID, err := parseID("classroom id", args[0])
	if err != nil {
		return err
	}
	rng, err := dateRange(cmd, true)
	if err != nil {
		return err
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		report, err := service.RangeReport(ctx, classroomID, owner, rng)
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(report)
		}

		fmt.Printf("Classroom: %s (%s to %s)\n", report.Classroom, report.StartDate, report.EndDate)
		fmt.Printf("Days: %d, records: %d, overall attendance: %d%%\n\n",
			report.Stats.TotalDays, report.Stats.TotalRecords, report.Stats.OverallAttendanceRate)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tTOTAL\tPRESENT\tABSENT\tRATE")
		fmt.Fprintln(w, "----\t-----\t-------\t------\t----")
		for _, d := range report.Stats.DateWise {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d%%\n", d.Date, d.Total, d.Present, d.Absent, d.AttendanceRate)
		}
		return w.Flush()
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	owner, err := ownerID(cmd)
	if err != nil {
		return err
	}
	studentID, err := parseID("student id", args[0])
	if err != nil {
		return err
	}
	rng, err := dateRange(cmd, false)
	if err != nil {
		return err
	}

	return withService(func(ctx context.Context, _ *config.Config, service *attendance.Service) error {
		history, err := service.StudentHistory(ctx, owner, studentID, rng)
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(history)
		}

		fmt.Printf("Student: %s (%s)\n", history.Student.Name, history.Student.Roll)
		fmt.Printf("Records: %d, present: %d, absent: %d, rate: %.2f%%\n\n",
			history.Stats.TotalRecords, history.Stats.Present, history.Stats.Absent, history.Stats.AttendanceRate)
		for _, rec := range history.Attendance {
			fmt.Printf("  %s  %s\n", rec.Date, rec.Status)
		}
		return nil
	})
}
