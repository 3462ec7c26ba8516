package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventInvocation, ActionURI: "ItemListing.createListing", Args: ir.IRObject{"seller": ir.IRString("u1"), "title": ir.IRString("Lamp")}, Seq: 1},
		{Type: EventCompletion, ActionURI: "ItemListing.createListing", Outcome: OutcomeSuccess, Result: ir.IRObject{"listingId": ir.IRString("l1")}, Seq: 1},
		{Type: EventEffect, ActionURI: "Requesting.log", Rule: "LogListingCreation", Args: ir.IRObject{"params": ir.IRObject{"title": ir.IRString("Lamp")}}, Outcome: OutcomeSuccess, Seq: 2},
		{Type: EventInvocation, ActionURI: "Bidding.acceptBid", Args: ir.IRObject{"listingId": ir.IRString("l1"), "bidId": ir.IRString("b1")}, Seq: 3},
		{Type: EventCompletion, ActionURI: "Bidding.acceptBid", Outcome: OutcomeSuccess, Seq: 3},
		{Type: EventEffect, ActionURI: "ItemListing.setStatus", Rule: "AcceptBidAndSell", Args: ir.IRObject{"listingId": ir.IRString("l1"), "status": ir.IRString("Sold")}, Outcome: OutcomeError, Error: "Listing not found", Seq: 4},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	captures := map[string]ir.IRValue{"listing": ir.IRString("l1")}

	tests := []struct {
		name   string
		action string
		args   map[string]any
		pass   bool
	}{
		{"invocation without args", "Bidding.acceptBid", nil, true},
		{"invocation subset", "ItemListing.createListing", map[string]any{"title": "Lamp"}, true},
		{"effect with captured arg", "ItemListing.setStatus", map[string]any{"listingId": "$listing", "status": "Sold"}, true},
		{"nested subset", "Requesting.log", map[string]any{"params": map[string]any{"title": "Lamp"}}, true},
		{"wrong value", "ItemListing.createListing", map[string]any{"title": "Desk"}, false},
		{"absent action", "Bidding.placeBid", nil, false},
		{"completion is not a call", "ItemListing.createListing", map[string]any{"listingId": "l1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, Assertion{Type: AssertTraceContains, Action: tt.action, Args: tt.args}, captures)
			if tt.pass {
				assert.NoError(t, err)
				return
			}
			var aerr *AssertionError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, AssertTraceContains, aerr.Type)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{
		"ItemListing.createListing", "Requesting.log", "Bidding.acceptBid", "ItemListing.setStatus",
	}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{
		"ItemListing.createListing", "ItemListing.setStatus",
	}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"Bidding.acceptBid", "Requesting.log"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bidding.acceptBid (pos 4) should be before Requesting.log (pos 3)")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"ItemListing.createListing", "Bidding.placeBid"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: Bidding.placeBid")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Requesting.log", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Bidding.placeBid", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "ItemListing.createListing", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences of ItemListing.createListing")
	assert.Contains(t, err.Error(), "Actual: 1 occurrences")
}

func TestAssertEffectFailed(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertEffectFailed(trace, Assertion{Rule: "AcceptBidAndSell"}))
	assert.NoError(t, assertEffectFailed(trace, Assertion{Action: "ItemListing.setStatus", ErrorContains: "not found"}))

	err := assertEffectFailed(trace, Assertion{Rule: "LogListingCreation"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed effect of LogListingCreation")

	err = assertEffectFailed(trace, Assertion{Rule: "AcceptBidAndSell", ErrorContains: "timeout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `with error containing "timeout"`)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 occurrences",
		Actual:   "1 occurrences",
		Trace:    sampleTrace(),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count\n")
	assert.Contains(t, msg, "  Expected: 2 occurrences\n")
	assert.Contains(t, msg, `[1] ItemListing.createListing {"seller":"u1","title":"Lamp"}`)
	assert.Contains(t, msg, `[3] Requesting.log {"params":{"title":"Lamp"}} (rule LogListingCreation)`)
	assert.NotContains(t, msg, "[2]")
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "Bidding.acceptBid"},
		{Type: AssertTraceCount, Action: "Requesting.log", Count: 5},
		{Type: AssertFinalState, Table: "listings", Expect: map[string]any{"status": "Sold"}},
		{Type: "trace_magic"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "final_state requires database context")
	assert.Contains(t, errs[2], `unknown assertion type "trace_magic"`)
}

func TestBuildWhereClause(t *testing.T) {
	sqlText, args, err := buildWhereClause(ir.IRObject{
		"status":    ir.IRString("Sold"),
		"id":        ir.IRString("l1"),
		"min_ask":   ir.IRNull{},
		"withdrawn": ir.IRBool(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "id = ? AND min_ask IS NULL AND status = ? AND withdrawn = ?", sqlText)
	assert.Equal(t, []any{"l1", "Sold", false}, args)

	sqlText, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sqlText)
	assert.Nil(t, args)

	_, _, err = buildWhereClause(ir.IRObject{"id; DROP TABLE listings": ir.IRString("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual(ir.IRString("Sold"), "Sold"))
	assert.True(t, stateValuesEqual(ir.IRString("Sold"), []byte("Sold")))
	assert.False(t, stateValuesEqual(ir.IRString("Sold"), "Active"))
	assert.True(t, stateValuesEqual(ir.IRInt(2000), int64(2000)))
	assert.False(t, stateValuesEqual(ir.IRInt(2000), "2000"))
	assert.True(t, stateValuesEqual(ir.IRBool(true), int64(1)))
	assert.True(t, stateValuesEqual(ir.IRBool(false), int64(0)))
	assert.True(t, stateValuesEqual(ir.IRNull{}, nil))
	assert.False(t, stateValuesEqual(ir.IRNull{}, int64(0)))
}

func TestSubsetMatch(t *testing.T) {
	actual := ir.IRObject{
		"a": ir.IRInt(1),
		"b": ir.IRObject{"c": ir.IRString("x"), "d": ir.IRBool(true)},
		"e": ir.IRArray{ir.IRInt(1), ir.IRInt(2)},
		"n": ir.IRNull{},
	}

	assert.True(t, subsetMatch(actual, ir.IRObject{}))
	assert.True(t, subsetMatch(actual, ir.IRObject{"b": ir.IRObject{"c": ir.IRString("x")}}))
	assert.True(t, subsetMatch(actual, ir.IRObject{"e": ir.IRArray{ir.IRInt(1), ir.IRInt(2)}}))
	assert.True(t, subsetMatch(actual, ir.IRObject{"n": ir.IRNull{}}))
	assert.False(t, subsetMatch(actual, ir.IRObject{"e": ir.IRArray{ir.IRInt(1)}}))
	assert.False(t, subsetMatch(actual, ir.IRObject{"a": ir.IRString("1")}))
	assert.False(t, subsetMatch(actual, ir.IRObject{"missing": ir.IRInt(1)}))
	assert.False(t, subsetMatch(ir.IRString("x"), ir.IRObject{}))
}

func TestAssertFinalState(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	_, err = st.DB().ExecContext(ctx, `
		INSERT INTO users (id, email, username, display_name, password_hash, school, created_at, verified_at)
		VALUES ('u1', 'sam@mit.edu', 'sam', 'sam', 'x', 'MIT', '2025-09-01T12:00:00Z', '2025-09-01T12:00:00Z'),
		       ('u2', 'bea@mit.edu', 'bea', 'bea', 'x', 'MIT', '2025-09-01T12:00:00Z', '2025-09-01T12:00:00Z')
	`)
	require.NoError(t, err)

	captures := map[string]ir.IRValue{"user": ir.IRString("u1")}
	check := func(a Assertion) error {
		a.Type = AssertFinalState
		return assertFinalState(ctx, st, a, captures)
	}

	assert.NoError(t, check(Assertion{Table: "users", Where: map[string]any{"id": "$user"}, Expect: map[string]any{"username": "sam", "school": "MIT"}}))

	err = check(Assertion{Table: "users", Where: map[string]any{"id": "u1"}, Expect: map[string]any{"username": "bea"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "username" = "bea"`)

	err = check(Assertion{Table: "users", Where: map[string]any{"id": "u9"}, Expect: map[string]any{"username": "sam"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")

	err = check(Assertion{Table: "users", Where: map[string]any{"school": "MIT"}, Expect: map[string]any{"username": "sam"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple rows matched")

	err = check(Assertion{Table: "users", Where: map[string]any{"id": "u1"}, Expect: map[string]any{"nickname": "s"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "nickname" not present`)

	err = check(Assertion{Table: "no_such_table", Expect: map[string]any{"x": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query error")

	err = check(Assertion{Table: "users; --", Expect: map[string]any{"x": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}
