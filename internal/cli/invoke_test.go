package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/testutil"
)

func runInvoke(t *testing.T, db, format, action, args string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts := &InvokeOptions{
		RootOptions: &RootOptions{Format: format},
		Args:        args,
		Database:    db,
		FlowTokens:  testutil.NewFixedFlowGenerator("cli-flow"),
	}
	cmd := NewInvokeCommand(opts.RootOptions)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.RunE = func(cmd *cobra.Command, a []string) error {
		return invokeAction(opts, a[0], cmd)
	}
	cmd.SetArgs([]string{action})
	err := cmd.Execute()
	return buf.String(), err
}

func TestInvoke_Success(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	out, err := runInvoke(t, db, "json", "UserAccount.getSchools", "{}")
	require.NoError(t, err)

	var res struct {
		FlowToken string `json:"flow_token"`
		Outcome   struct {
			Success bool           `json:"success"`
			Data    map[string]any `json:"data"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "cli-flow", res.FlowToken)
	assert.True(t, res.Outcome.Success)
	assert.Contains(t, res.Outcome.Data, "schools")
}

func TestInvoke_ActionFailure(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	out, err := runInvoke(t, db, "text", "ItemListing.getListing", `{"listingId":"nope"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "flow cli-flow")
	assert.Contains(t, out, `"error": "Listing not found"`)
}

func TestInvoke_UnknownConcept(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	_, err := runInvoke(t, db, "text", "Shipping.ship", "{}")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "Concept Shipping not found")
}

func TestInvoke_WritesActionLog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	_, err := runInvoke(t, db, "text", "UserAccount.getSchools", "{}")
	require.NoError(t, err)

	out, err := execute(t, "log", "--db", db, "--flow", "cli-flow")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 UserAccount.getSchools [included] ok (flow cli-flow)")
}

func TestInvoke_InvalidInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	tests := []struct {
		name   string
		action string
		args   string
		want   string
	}{
		{"bad json", "UserAccount.getSchools", "{invalid json}", "invalid --args JSON"},
		{"float arg", "Bidding.placeBid", `{"amount": 12.5}`, "invalid --args JSON"},
		{"array args", "UserAccount.getSchools", `[1]`, "invalid --args JSON"},
		{"bad action", "getSchools", "{}", "invalid action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runInvoke(t, db, "text", tt.action, tt.args)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInvoke_RequiresAction(t *testing.T) {
	_, err := execute(t, "invoke")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
