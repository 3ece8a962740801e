package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/getmockd/respvalidator/pkg/cli/internal/flags"
	"github.com/getmockd/respvalidator/pkg/cli/internal/output"
	"github.com/getmockd/respvalidator/pkg/cli/internal/parse"
	"github.com/getmockd/respvalidator/pkg/engine"
	"github.com/getmockd/respvalidator/pkg/validation"
	"github.com/spf13/cobra"
)

// validateFlags holds all flags for the validate command.
type validateFlags struct {
	specPath string
	method   string
	path     string
	status   int
	headers  flags.StringSlice
	body     string
	bodyFile string
}

var validateFlagVals validateFlags

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one response against a spec",
	Long: `Validate a single response against an OpenAPI spec without starting the
validation service. The result is printed as JSON:

  {"valid": true, "errors": []}

The command exits with status 1 when the response is invalid.`,
	Example: `  # Validate an inline body
  respvalidator validate --spec api.yaml --path /v1/pets --body '[{"id":1,"name":"a","type":"cat"}]'

  # Validate a recorded body with headers
  respvalidator validate --spec api.yaml --method GET --path /v1/pets/1 \
    --status 200 --header content-type=application/json --body-file pet.json

  # Read the body from stdin
  curl -s localhost:8080/v1/pets | respvalidator validate --spec api.yaml --path /v1/pets --body-file -`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	f := &validateFlagVals

	validateCmd.Flags().StringVarP(&f.specPath, "spec", "s", "", "Path to the OpenAPI spec (YAML or JSON) [required]")
	validateCmd.Flags().StringVarP(&f.method, "method", "X", "GET", "Request method")
	validateCmd.Flags().StringVar(&f.path, "path", "", "Request path, e.g. /v1/pets [required]")
	validateCmd.Flags().IntVar(&f.status, "status", 200, "Response status code")
	validateCmd.Flags().VarP(&f.headers, "header", "H", "Response header as name=value (repeatable)")
	validateCmd.Flags().StringVarP(&f.body, "body", "d", "", "Response body as JSON")
	validateCmd.Flags().StringVar(&f.bodyFile, "body-file", "", "Read the response body from a file ('-' for stdin)")

	_ = validateCmd.MarkFlagRequired("spec")
	_ = validateCmd.MarkFlagRequired("path")
	validateCmd.MarkFlagsMutuallyExclusive("body", "body-file")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	f := &validateFlagVals

	if strings.TrimSpace(f.method) == "" {
		return &validation.ArgumentError{Argument: "method"}
	}
	if strings.TrimSpace(f.path) == "" {
		return &validation.ArgumentError{Argument: "path"}
	}
	if _, err := os.Stat(f.specPath); os.IsNotExist(err) {
		return fmt.Errorf("spec file not found: %s", f.specPath)
	}

	if f.status < 100 || f.status > 599 {
		output.Warn(cmd.ErrOrStderr(), "status %d is outside the HTTP status range", f.status)
	}

	headers, err := parse.Headers(f.headers)
	if err != nil {
		return err
	}
	body, err := readBody(cmd.InOrStdin(), f.body, f.bodyFile)
	if err != nil {
		return err
	}

	eng, err := validation.LoadOpenAPIEngine(cmd.Context(), f.specPath)
	if err != nil {
		return err
	}

	req := &validation.Request{
		Method:     f.method,
		Path:       f.path,
		StatusCode: f.status,
		Headers:    headers,
		JSON:       body,
	}
	ex := &validation.Exchange{Request: req}
	_, result := engine.Normalize(req, ex, eng.ValidateResponse(cmd.Context(), ex))

	if err := output.JSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Valid {
		return &exitError{code: 1}
	}
	return nil
}

// readBody returns the response body from --body or --body-file.
// An empty body means the response had none.
func readBody(stdin io.Reader, inline, file string) (json.RawMessage, error) {
	data := []byte(inline)
	switch file {
	case "":
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
		data = b
	default:
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		data = b
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, errors.New("body is not valid JSON")
	}
	return json.RawMessage(data), nil
}
