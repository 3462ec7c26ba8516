package cli

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/compiler"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRules_Text(t *testing.T) {
	out, err := execute(t, "rules")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "rules", []byte(out))
}

func TestRules_JSON(t *testing.T) {
	out, err := execute(t, "rules", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   []compiler.RuleSpec `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 4)
	assert.Equal(t, "AcceptBidAndSell", resp.Data[0].Name)
	assert.Equal(t, "Bidding.acceptBid", resp.Data[0].When)
}

func TestRules_CompileError(t *testing.T) {
	path := writeRules(t, `sync: {"R": {when: {action: 42}, then: []}}`)

	out, err := execute(t, "rules", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E100")
}
