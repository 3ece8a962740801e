package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getmockd/respvalidator/internal/cliconfig"
	"github.com/getmockd/respvalidator/pkg/cli/internal/ports"
	"github.com/getmockd/respvalidator/pkg/engine"
	"github.com/getmockd/respvalidator/pkg/logging"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds graceful shutdown of the serve command.
const shutdownTimeout = 5 * time.Second

// serveFlags holds all flags for the serve command.
type serveFlags struct {
	specPath     string
	port         int
	host         string
	printURL     bool
	logLevel     string
	logFormat    string
	readTimeout  int
	writeTimeout int
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the validation service in the foreground",
	Long: `Run the response validation service for an OpenAPI spec.

The service prepares a copy of the spec with a readiness route, binds the
port and compiles the spec in the background. It answers:

  GET  <readiness path>    202 once the spec is compiled
  POST /validate-response  {method, path, statusCode, headers, json}

The command runs until SIGINT/SIGTERM, or exits with an error if the spec
cannot be compiled.`,
	Example: `  # Serve on a fixed port
  respvalidator serve --spec api.yaml --port 3010

  # Auto-assign a port and print the base and readiness URLs
  respvalidator serve --spec api.yaml --port 0 --print-url

  # JSON logs for CI parsing
  respvalidator serve --spec api.yaml --log-format json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := &serveFlagVals
	env := cliconfig.Load()

	serveCmd.Flags().StringVarP(&f.specPath, "spec", "s", "", "Path to the OpenAPI spec (YAML or JSON) [required]")
	serveCmd.Flags().IntVarP(&f.port, "port", "p", env.Port, "HTTP server port (0 = OS auto-assign)")
	serveCmd.Flags().StringVar(&f.host, "host", engine.DefaultHost, "Bind address")
	serveCmd.Flags().BoolVar(&f.printURL, "print-url", false, "Print the base URL and readiness URL to stdout on startup")
	serveCmd.Flags().StringVar(&f.logLevel, "log-level", env.LogLevel, "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", env.LogFormat, "Log format (text, json)")
	serveCmd.Flags().IntVar(&f.readTimeout, "read-timeout", 30, "HTTP read timeout in seconds")
	serveCmd.Flags().IntVar(&f.writeTimeout, "write-timeout", 30, "HTTP write timeout in seconds")

	_ = serveCmd.MarkFlagRequired("spec")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	f := &serveFlagVals

	if _, err := os.Stat(f.specPath); os.IsNotExist(err) {
		return fmt.Errorf("spec file not found: %s", f.specPath)
	}

	cfg := resolveServeConfig(cmd, f)

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
		Output: cmd.ErrOrStderr(),
	})

	srv := engine.NewServer(engine.Config{
		SpecPath:     f.specPath,
		Host:         f.host,
		Port:         cfg.Port,
		ReadTimeout:  time.Duration(f.readTimeout) * time.Second,
		WriteTimeout: time.Duration(f.writeTimeout) * time.Second,
	}, engine.WithLogger(log.With("component", "engine")))

	if err := srv.Start(); err != nil {
		if ports.InUse(err) {
			return fmt.Errorf("port %d is already in use, try --port 0 for auto-assign", cfg.Port)
		}
		return fmt.Errorf("failed to start validation service: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Warn("shutdown incomplete", "error", err)
		}
	}()

	// The supervisor reads exactly these two lines.
	if f.printURL {
		fmt.Fprintln(cmd.OutOrStdout(), srv.URL())
		fmt.Fprintln(cmd.OutOrStdout(), srv.URL()+srv.ReadinessPath())
	}

	log.Info("validation service started",
		"port", srv.Port(),
		"port_source", cfg.Sources["port"],
		"spec", f.specPath,
		"readiness", srv.ReadinessPath(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case <-srv.Compiled():
		if err := srv.Err(); err != nil {
			return fmt.Errorf("failed to compile spec: %w", err)
		}
		<-ctx.Done()
	}

	log.Info("shutting down validation service")
	return nil
}

// resolveServeConfig layers the flags the user actually set over the
// environment and defaults.
func resolveServeConfig(cmd *cobra.Command, f *serveFlags) *cliconfig.Config {
	cfg := cliconfig.Load()
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Override("port", func(c *cliconfig.Config) { c.Port = f.port })
	}
	if flags.Changed("log-level") {
		cfg.Override("logLevel", func(c *cliconfig.Config) { c.LogLevel = f.logLevel })
	}
	if flags.Changed("log-format") {
		cfg.Override("logFormat", func(c *cliconfig.Config) { c.LogFormat = f.logFormat })
	}
	return cfg
}
