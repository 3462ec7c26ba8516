package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func printLine(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := fmt.Fprintln(w, s)
		return err
	}
}

func TestOutputFormatter_Respond(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Respond(map[string]int{"count": 2}, printLine("ignored")))

		var resp struct {
			Status string         `json:"status"`
			Data   map[string]int `json:"data"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 2, resp.Data["count"])
		assert.NotContains(t, buf.String(), "ignored")
		assert.Contains(t, buf.String(), "\n  \"data\"")
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Respond("unused", printLine("2 listings")))
		assert.Equal(t, "2 listings\n", buf.String())
	})

	t.Run("text without printer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Respond("unused", nil))
		assert.Empty(t, buf.String())
	})
}

func TestOutputFormatter_Fail(t *testing.T) {
	cliErr := CLIError{Code: "E_TEST_FAILED", Message: "1 scenario(s) failed"}

	t.Run("json keeps data", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Fail(cliErr, []string{"sale"}, nil))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
		assert.Equal(t, []any{"sale"}, resp.Data)
	})

	t.Run("text printer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Fail(cliErr, nil, printLine("✗ sale")))
		assert.Equal(t, "✗ sale\n", buf.String())
	})

	t.Run("text fallback", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Fail(cliErr, nil, nil))
		assert.Equal(t, "Error [E_TEST_FAILED]: 1 scenario(s) failed\n", buf.String())
	})
}

func TestOutputFormatter_Error(t *testing.T) {
	details := map[string]string{"file": "rules.cue"}

	tests := []struct {
		name    string
		format  string
		verbose bool
		want    []string
		notWant []string
	}{
		{"json", "json", false, []string{`"status": "error"`, `"code": "E110"`, `"file": "rules.cue"`}, nil},
		{"text", "text", false, []string{"Error [E110]: rule file has errors"}, []string{"Details:"}},
		{"text verbose", "text", true, []string{"Error [E110]", "Details: map[file:rules.cue]"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}

			require.NoError(t, f.Error("E110", "rule file has errors", details))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	t.Run("goes to ErrWriter", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

		f.VerboseLog("Compiled %d rule(s)", 4)
		assert.Empty(t, out.String())
		assert.Equal(t, "Compiled 4 rule(s)\n", errOut.String())
	})

	t.Run("falls back to Writer", func(t *testing.T) {
		out := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: out, Verbose: true}

		f.VerboseLog("Compiled %d rule(s)", 4)
		assert.Equal(t, "Compiled 4 rule(s)\n", out.String())
	})

	t.Run("silent without verbose", func(t *testing.T) {
		out := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: out}

		f.VerboseLog("Compiled %d rule(s)", 4)
		assert.Empty(t, out.String())
	})
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "no db")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "failed", assert.AnError)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	err := WrapExitError(ExitCommandError, "failed to open database", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "failed to open database: "+assert.AnError.Error(), err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("serve: %w", err)))
}
