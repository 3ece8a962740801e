package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getmockd/respvalidator/internal/cliconfig"
	"github.com/rogpeppe/go-internal/testscript"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain lets testscript run the respvalidator command in-process.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"respvalidator": Main,
	}))
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: filepath.Join("testdata", "script"),
		Setup: func(env *testscript.Env) error {
			env.Setenv("OPENAPI_JSON_RESPONSE_VALIDATOR_PORT", "")
			return nil
		},
	})
}

func TestReadBody(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "body.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"id":1}`), 0o600))

	body, err := readBody(nil, `[1, 2]`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(body))

	body, err = readBody(nil, "", file)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(body))

	body, err = readBody(strings.NewReader(`"text"`), "", "-")
	require.NoError(t, err)
	assert.Equal(t, `"text"`, string(body))

	body, err = readBody(nil, "  ", "")
	require.NoError(t, err)
	assert.Nil(t, body)

	_, err = readBody(nil, "{", "")
	assert.EqualError(t, err, "body is not valid JSON")

	_, err = readBody(nil, "", filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "failed to read body file")
}

func TestResolveServeConfig(t *testing.T) {
	t.Setenv(cliconfig.EnvPort, "4300")
	t.Setenv(cliconfig.EnvLogLevel, "")
	t.Setenv(cliconfig.EnvLogFormat, "json")

	f := &serveFlags{}
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().IntVar(&f.port, "port", 0, "")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--log-level", "debug"}))

	cfg := resolveServeConfig(cmd, f)
	assert.Equal(t, 4300, cfg.Port)
	assert.Equal(t, cliconfig.SourceEnv, cfg.Sources["port"])
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, cliconfig.SourceFlag, cfg.Sources["logLevel"])
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, cliconfig.SourceEnv, cfg.Sources["logFormat"])

	require.NoError(t, cmd.Flags().Parse([]string{"--port", "0"}))
	cfg = resolveServeConfig(cmd, f)
	assert.Equal(t, 0, cfg.Port)
	assert.Equal(t, cliconfig.SourceFlag, cfg.Sources["port"])
}

func TestExitError(t *testing.T) {
	err := &exitError{code: 3}
	assert.Equal(t, "exit status 3", err.Error())
}

func TestBuildVersion(t *testing.T) {
	out := buildVersion()
	assert.NotEmpty(t, out.Version)
	assert.NotEmpty(t, out.Commit)
	assert.True(t, strings.HasPrefix(out.Go, "go"), out.Go)
	assert.NotEmpty(t, out.OS)
	assert.NotEmpty(t, out.Arch)
}
