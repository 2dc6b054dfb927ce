package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// printReport prints an attendance report as a table.
func printReport(report *attendance.Report) {
	fmt.Printf("Date: %s\n", report.Date)
	fmt.Println(report.Message)
	if report.Fallback && report.Reason != "" {
		fmt.Printf("Reason: %s\n", report.Reason)
	}
	if fd := report.FaceDetection; fd != nil {
		fmt.Printf("Faces detected: %d, decoded: %d, rejected: %d, matched: %d\n",
			fd.TotalFacesDetected, fd.ProbesDecoded, fd.ProbesRejected, fd.FacesMatched)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLL\tNAME\tSTATUS")
	fmt.Fprintln(w, "--\t----\t----\t------")
	for _, s := range report.Results.Present {
		status := "present"
		if s.AttendanceType == attendance.NewlyMarkedPresent {
			status = "present (new)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.StudentID, s.StudentRoll, s.StudentName, status)
	}
	for _, s := range report.Results.Absent {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.StudentID, s.StudentRoll, s.StudentName, "absent")
	}
	w.Flush()

	for _, inv := range report.InvalidEncodings {
		fmt.Printf("Warning: student %d has an unusable encoding: %s\n", inv.StudentID, inv.Reason)
	}
}
