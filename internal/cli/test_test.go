package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schoolsScenario = `name: schools
description: "Schools can be listed without signing in"
flow_token: schools-flow

flow:
  - invoke: UserAccount.getSchools
    args: {}
`

const brokenScenario = `name: broken
description: "Expects success from a failing lookup"

flow:
  - invoke: ItemListing.getListing
    args: {listingId: nope}
`

func writeScenario(t *testing.T, dir, file, body string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bid_flow.yaml", schoolsScenario)
	writeScenario(t, dir, "sale.yml", schoolsScenario)
	writeScenario(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeScenario(t, filepath.Join(dir, "nested"), "bid_missing.yaml", schoolsScenario)

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "bid*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "sale.golden"), goldenFilePath(filepath.Join("scenarios", "sale.yaml")))
}

func TestTest_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", "../harness/testdata/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ marketplace_sale")
	assert.Contains(t, out, "✓ bid_on_missing_listing")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestTest_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "schools.yaml", schoolsScenario)

	out, err := execute(t, "test", path, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ schools (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "schools.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"flow_token":"schools-flow"`)
	assert.Contains(t, string(golden), `"action_uri":"UserAccount.getSchools"`)

	out, err = execute(t, "test", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ schools\n")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "schools.golden"), []byte("{}"), 0o644))
	out, err = execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "broken.yaml", brokenScenario)

	out, err := execute(t, "test", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	require.NotEmpty(t, resp.Data.Scenarios[0].Errors)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "Listing not found")
}

func TestTest_NoScenarios(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)

	out, err = execute(t, "test", dir, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 0`)
}

func TestTest_MissingPath(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}
