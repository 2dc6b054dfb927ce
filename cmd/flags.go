package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/database"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// ownerID returns the --owner flag, which every data command requires.
func ownerID(cmd *cobra.Command) (int64, error) {
	val, err := cmd.Flags().GetInt64("owner")
	if err != nil {
		panic(fmt.Sprintf("flag error for --owner: %v", err))
	}
	if val <= 0 {
		return 0, errors.New("--owner is required")
	}
	return val, nil
}

// parseID parses a positional id argument.
func parseID(name, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return id, nil
}

// dateFlag parses a YYYY-MM-DD flag; an empty value yields fallback.
func dateFlag(cmd *cobra.Command, name string, fallback time.Time) (time.Time, error) {
	value := mustGetString(cmd, name)
	if value == "" {
		return fallback, nil
	}
	t, err := database.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: date format should be YYYY-MM-DD", name)
	}
	return t, nil
}
