package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	out, err := execute(t, "log", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No dispatches recorded.\n", out)
}

func TestLog_RecentAndFlow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	_, err := runInvoke(t, db, "text", "UserAccount.getSchools", "{}")
	require.NoError(t, err)
	_, err = runInvoke(t, db, "text", "ItemListing.getListing", `{"listingId":"nope"}`)
	require.Error(t, err)

	out, err := execute(t, "log", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "UserAccount.getSchools [included] ok (flow cli-flow)")
	assert.Contains(t, out, "ItemListing.getListing [included] error: Listing not found (flow cli-flow)")

	out, err = execute(t, "log", "--db", db, "--flow", "cli-flow", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "UserAccount.getSchools", resp.Data[0].ActionURI)
	assert.Equal(t, "ItemListing.getListing", resp.Data[1].ActionURI)
	assert.Less(t, resp.Data[0].Seq, resp.Data[1].Seq)
	assert.Empty(t, resp.Data[0].Effects)
}

func TestLog_Flows(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	_, err := runInvoke(t, db, "text", "UserAccount.getSchools", "{}")
	require.NoError(t, err)

	out, err := execute(t, "log", "--db", db, "--flows")
	require.NoError(t, err)
	assert.Equal(t, "cli-flow\n", out)
}

func TestLog_UnknownFlow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cc.db")

	out, err := execute(t, "log", "--db", db, "--flow", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E_FLOW_NOT_FOUND")
}
