package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(name, when string, then ...string) RuleSpec {
	r := RuleSpec{Name: name, When: when}
	for _, a := range then {
		r.Then = append(r.Then, EffectSpec{Action: a})
	}
	return r
}

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	rules := []RuleSpec{
		rule("AcceptBidAndSell", "Bidding.acceptBid", "ItemListing.setStatus"),
		rule("LogListingCreation", "ItemListing.createListing", "Requesting.log"),
		rule("LogBidPlacement", "Bidding.placeBid", "Requesting.log"),
	}
	assert.Empty(t, AnalyzeCycles(rules))
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	rules := []RuleSpec{rule("Echo", "Requesting.log", "Requesting.log")}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"Echo", "Echo"}, warnings[0].Path)
	assert.Equal(t, "rule Echo triggers itself", warnings[0].Message)
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	rules := []RuleSpec{
		rule("A", "ItemListing.setStatus", "Bidding.acceptBid"),
		rule("B", "Bidding.acceptBid", "ItemListing.setStatus"),
	}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A", "B", "A"}, warnings[0].Path)
	assert.Equal(t, "rules trigger each other: A -> B -> A", warnings[0].Message)
}

func TestAnalyzeCycles_ThreeNodeCycleWithBystander(t *testing.T) {
	rules := []RuleSpec{
		rule("A", "X.a", "X.b"),
		rule("B", "X.b", "X.c"),
		rule("C", "X.c", "X.a"),
		rule("Log", "X.a", "Requesting.log"),
	}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Len(t, warnings[0].Path, 4)
	assert.Equal(t, warnings[0].Path[0], warnings[0].Path[3])
	assert.ElementsMatch(t, []string{"A", "B", "C"}, warnings[0].Path[:3])
}

func TestAnalyzeCycles_IndependentCycles(t *testing.T) {
	rules := []RuleSpec{
		rule("A", "X.a", "X.b"),
		rule("B", "X.b", "X.a"),
		rule("Self", "Y.a", "Y.a"),
	}
	assert.Len(t, AnalyzeCycles(rules), 2)
}

func TestBuildDependencyGraph(t *testing.T) {
	rules := []RuleSpec{
		rule("First", "X.a", "X.b"),
		rule("Second", "X.b"),
		rule("Third", "X.b", "Z.z"),
	}

	graph, order := buildDependencyGraph(rules)
	assert.Equal(t, []string{"First", "Second", "Third"}, order)
	assert.Equal(t, []string{"Second", "Third"}, graph["First"])
	assert.Empty(t, graph["Second"])
	assert.Empty(t, graph["Third"])
}

func TestHasSelfLoop(t *testing.T) {
	graph := dependencyGraph{"A": {"A"}, "B": {"C"}}
	assert.True(t, hasSelfLoop("A", graph))
	assert.False(t, hasSelfLoop("B", graph))
}
