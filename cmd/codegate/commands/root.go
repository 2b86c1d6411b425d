// Package commands provides the CLI commands for codegate.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codegate-ai/codegate/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	printLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "codegate",
	Short: "codegate - tool authorization and execution for coding agents",
	Long: `codegate authorizes and executes the tool calls a coding agent
requests: it repairs streamed arguments, evaluates permission rules,
runs user hooks, and dispatches the approved calls.

Run 'codegate run turn.json' to execute one turn of tool calls.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		out := os.Stderr
		level := logging.ParseLevel(logLevel)
		if !printLogs {
			// Keep stderr clean for piped use; errors still surface.
			level = logging.ErrorLevel
		}
		logging.Init(logging.Config{Level: level, Output: out, Pretty: true})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("codegate %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory,
// loading a .env file from it when present.
func GetWorkDir(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	return dir, nil
}
