// Package logging configures the structured logger shared by the validation
// service, its supervisor and the CLI.
//
// It wraps log/slog:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	})
//	logger.Info("validation service started", "port", port)
//
// Components accept a *slog.Logger through an option and fall back to Nop.
package logging
