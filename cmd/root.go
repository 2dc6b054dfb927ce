package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Face-recognition classroom attendance",
	Long: `Attendance marks classroom attendance from photos. Faces found by an
external encoder service are matched against the enrolled students of a
classroom and merged into the attendance of the day: once a student is
present on a date, later captures never mark them absent again.

Storage is PostgreSQL (DATABASE_URL) or an embedded SQLite file (SQLITE_PATH).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().Int64("owner", 0, "Teacher (owner) id the command acts for")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
