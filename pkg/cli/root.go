package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "respvalidator",
	Short: "Validate HTTP responses against an OpenAPI spec",
	Long: `respvalidator checks JSON HTTP responses against the response schemas
declared in an OpenAPI 3 document.

Run 'respvalidator serve' to start the validation service that test clients
talk to, or 'respvalidator validate' to check one response from the shell.

Environment:
  OPENAPI_JSON_RESPONSE_VALIDATOR_PORT  default port for serve
  RESPVALIDATOR_LOG_LEVEL               default log level
  RESPVALIDATOR_LOG_FORMAT              default log format`,
	SilenceUsage:  true,
	SilenceErrors: true, // Main prints errors
}

// exitError carries a process exit code without an extra message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Main runs the root command and returns the process exit code.
func Main() int {
	return run(os.Args[1:])
}

func run(args []string) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// Execute runs the root command and exits the process on failure.
// This is called by main.main().
func Execute() {
	if code := Main(); code != 0 {
		os.Exit(code)
	}
}
