package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fromParams copies one trigger param into the effect params.
func fromParams(from, to string) Mapper {
	return func(params, _ ir.IRObject) (ir.IRObject, error) {
		v, ok := params[from]
		if !ok {
			return nil, errors.New("missing " + from)
		}
		return ir.IRObject{to: v}, nil
	}
}

func constant(obj ir.IRObject) Mapper {
	return func(_, _ ir.IRObject) (ir.IRObject, error) { return obj, nil }
}

func TestExecuteSyncs_NoRules(t *testing.T) {
	j := testutil.NewJournal()
	reg := concept.NewRegistry(testutil.NewRecorder("B", j, "y"))
	eng := New(reg, MustRuleTable(nil), WithLogger(quietLogger()))

	report := eng.ExecuteSyncs(context.Background(), "A", "x", ir.IRObject{}, ir.IRObject{})

	assert.Empty(t, report.Effects)
	assert.True(t, report.OK())
	assert.Empty(t, j.Calls())
}

func TestExecuteSyncs_RuleAndEffectOrder(t *testing.T) {
	j := testutil.NewJournal()
	reg := concept.NewRegistry(
		testutil.NewRecorder("B", j, "first", "second"),
		testutil.NewRecorder("C", j, "third"),
	)
	rules := MustRuleTable([]SyncRule{
		{Name: "R1", Trigger: Trigger{"A", "x"}, Includes: []Effect{
			{Concept: "B", Action: "first", Map: constant(ir.IRObject{})},
			{Concept: "B", Action: "second", Map: constant(ir.IRObject{})},
		}},
		{Name: "Other", Trigger: Trigger{"A", "other"}, Includes: []Effect{
			{Concept: "C", Action: "third", Map: constant(ir.IRObject{})},
		}},
		{Name: "R2", Trigger: Trigger{"A", "x"}, Includes: []Effect{
			{Concept: "C", Action: "third", Map: constant(ir.IRObject{})},
		}},
	})
	eng := New(reg, rules, WithLogger(quietLogger()))

	report := eng.ExecuteSyncs(context.Background(), "A", "x", ir.IRObject{}, ir.IRObject{})

	assert.Equal(t, []string{"B.first", "B.second", "C.third"}, j.Refs())
	require.Len(t, report.Effects, 3)
	assert.Equal(t, "R1", report.Effects[0].Rule)
	assert.Equal(t, 1, report.Effects[1].Index)
	assert.Equal(t, "R2", report.Effects[2].Rule)
	assert.Less(t, report.Effects[0].Seq, report.Effects[1].Seq)
	assert.Less(t, report.Effects[1].Seq, report.Effects[2].Seq)
}

func TestExecuteSyncs_MapperSeesParamsAndResult(t *testing.T) {
	j := testutil.NewJournal()
	listing := testutil.NewRecorder("ItemListing", j, "setStatus")
	reg := concept.NewRegistry(listing)

	rules := MustRuleTable([]SyncRule{{
		Name:    "CompletePickupAndSell",
		Trigger: Trigger{"MessagingThread", "markPickupComplete"},
		Includes: []Effect{{
			Concept: "ItemListing",
			Action:  "setStatus",
			Map: func(params, result ir.IRObject) (ir.IRObject, error) {
				return ir.IRObject{"listingId": result["listingId"], "status": ir.IRString("Sold"), "by": params["userId"]}, nil
			},
		}},
	}})
	eng := New(reg, rules, WithLogger(quietLogger()))

	report := eng.ExecuteSyncs(context.Background(), "MessagingThread", "markPickupComplete",
		ir.IRObject{"threadId": ir.IRString("t-1"), "userId": ir.IRString("u-1")},
		ir.IRObject{"listingId": ir.IRString("l-9")},
	)

	require.True(t, report.OK())
	require.Len(t, listing.Calls(), 1)
	assert.Equal(t, ir.IRObject{
		"listingId": ir.IRString("l-9"),
		"status":    ir.IRString("Sold"),
		"by":        ir.IRString("u-1"),
	}, listing.Calls()[0].Params)
}

func TestExecuteSyncs_FailureIsolation(t *testing.T) {
	j := testutil.NewJournal()
	reg := concept.NewRegistry(
		testutil.NewRecorder("B", j, "ok", "broken").Fail("broken", errors.New("db down")),
	)
	rules := MustRuleTable([]SyncRule{{
		Name:    "Mixed",
		Trigger: Trigger{"A", "x"},
		Includes: []Effect{
			{Concept: "Ghost", Action: "y", Map: constant(ir.IRObject{})},
			{Concept: "B", Action: "absent", Map: constant(ir.IRObject{})},
			{Concept: "B", Action: "ok", Map: fromParams("missing", "x")},
			{Concept: "B", Action: "ok", Map: func(_, _ ir.IRObject) (ir.IRObject, error) { panic("bad mapper") }},
			{Concept: "B", Action: "broken", Map: constant(ir.IRObject{})},
			{Concept: "B", Action: "ok", Map: constant(ir.IRObject{"n": ir.IRInt(1)})},
		},
	}})
	eng := New(reg, rules, WithLogger(quietLogger()))

	report := eng.ExecuteSyncs(context.Background(), "A", "x", ir.IRObject{}, ir.IRObject{})

	require.Len(t, report.Effects, 6)
	assert.True(t, IsEffectError(report.Effects[0].Err, ErrCodeConceptMissing))
	assert.True(t, IsEffectError(report.Effects[1].Err, ErrCodeActionMissing))
	assert.True(t, IsEffectError(report.Effects[2].Err, ErrCodeMappingFailed))
	assert.True(t, IsEffectError(report.Effects[3].Err, ErrCodeMappingFailed))
	assert.True(t, IsEffectError(report.Effects[4].Err, ErrCodeEffectFailed))
	assert.True(t, report.Effects[5].OK())

	assert.Len(t, report.Failed(), 5)
	assert.Len(t, report.Succeeded(), 1)
	assert.False(t, report.OK())

	// Only the two effects that resolved and mapped reached the concept.
	assert.Equal(t, []string{"B.broken", "B.ok"}, j.Refs())
}

func TestExecuteSyncs_EffectCannotMutateCallerResult(t *testing.T) {
	reg := concept.NewRegistry(testutil.NewRecorder("B", nil, "y"))
	rules := MustRuleTable([]SyncRule{{
		Name:    "Mutator",
		Trigger: Trigger{"A", "x"},
		Includes: []Effect{{Concept: "B", Action: "y", Map: func(_, result ir.IRObject) (ir.IRObject, error) {
			result["listingId"] = ir.IRString("tampered")
			return ir.IRObject{}, nil
		}}},
	}})
	eng := New(reg, rules, WithLogger(quietLogger()))

	result := ir.IRObject{"listingId": ir.IRString("l-1")}
	eng.ExecuteSyncs(context.Background(), "A", "x", ir.IRObject{}, result)

	assert.Equal(t, ir.IRString("l-1"), result["listingId"])
}

func TestExecuteSyncs_ObserverAndFlow(t *testing.T) {
	reg := concept.NewRegistry(testutil.NewRecorder("B", nil, "y"))
	rules := MustRuleTable([]SyncRule{{
		Name: "R", Trigger: Trigger{"A", "x"},
		Includes: []Effect{{Concept: "B", Action: "y", Map: constant(ir.IRObject{})}},
	}})

	var seen []EffectResult
	var flows []string
	obs := ObserverFunc(func(_ context.Context, r *Report, e EffectResult) {
		seen = append(seen, e)
		flows = append(flows, r.FlowToken)
	})
	eng := New(reg, rules, WithLogger(quietLogger()), WithObserver(obs), WithClock(NewClockAt(10)))

	ctx := WithFlow(context.Background(), "flow-1", "inv-1")
	report := eng.ExecuteSyncs(ctx, "A", "x", nil, nil)

	require.Len(t, seen, 1)
	assert.Equal(t, []string{"flow-1"}, flows)
	assert.Equal(t, "inv-1", report.InvocationID)
	assert.Equal(t, int64(11), seen[0].Seq)
	assert.NotEmpty(t, seen[0].ID)
}

type slowConcept struct{}

func (slowConcept) Name() string      { return "Slow" }
func (slowConcept) Actions() []string { return []string{"wait"} }
func (slowConcept) Action(name string) (concept.Handler, bool) {
	if name != "wait" {
		return nil, false
	}
	return func(ctx context.Context, _ ir.IRObject) (ir.IRObject, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return ir.IRObject{}, nil
		}
	}, true
}

func TestExecuteSyncs_EffectTimeout(t *testing.T) {
	reg := concept.NewRegistry(slowConcept{})
	rules := MustRuleTable([]SyncRule{{
		Name: "R", Trigger: Trigger{"A", "x"},
		Includes: []Effect{{Concept: "Slow", Action: "wait", Map: constant(ir.IRObject{})}},
	}})
	eng := New(reg, rules, WithLogger(quietLogger()), WithEffectTimeout(10*time.Millisecond))

	report := eng.ExecuteSyncs(context.Background(), "A", "x", ir.IRObject{}, ir.IRObject{})

	require.Len(t, report.Effects, 1)
	assert.True(t, IsEffectError(report.Effects[0].Err, ErrCodeTimeout))
}

func TestExecuteSyncs_IgnoresCallerCancellation(t *testing.T) {
	var calls int
	reg := concept.NewRegistry(
		concept.NewSet("ItemListing").Handle("setStatus", func(ctx context.Context, _ ir.IRObject) (ir.IRObject, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			calls++
			return ir.IRObject{}, nil
		}),
		slowConcept{},
	)
	rules := MustRuleTable([]SyncRule{
		{Name: "Sell", Trigger: Trigger{"Bidding", "acceptBid"}, Includes: []Effect{
			{Concept: "ItemListing", Action: "setStatus", Map: constant(ir.IRObject{"status": ir.IRString("Sold")})},
		}},
		{Name: "Slow", Trigger: Trigger{"Bidding", "acceptBid"}, Includes: []Effect{
			{Concept: "Slow", Action: "wait", Map: constant(ir.IRObject{})},
		}},
	})
	eng := New(reg, rules, WithLogger(quietLogger()), WithEffectTimeout(10*time.Millisecond))

	ctx, cancel := context.WithCancel(WithFlow(context.Background(), "flow-1", "inv-1"))
	cancel()
	report := eng.ExecuteSyncs(ctx, "Bidding", "acceptBid", ir.IRObject{}, ir.IRObject{})

	require.Len(t, report.Effects, 2)
	assert.True(t, report.Effects[0].OK())
	assert.Equal(t, 1, calls)
	assert.Equal(t, "flow-1", report.FlowToken)
	// The effect timeout still bounds effects once the caller is gone.
	assert.True(t, IsEffectError(report.Effects[1].Err, ErrCodeTimeout))
}

func TestEffectError_Message(t *testing.T) {
	err := &EffectError{Code: ErrCodeEffectFailed, Rule: "R", Concept: "B", Action: "y", Err: errors.New("boom")}
	assert.Equal(t, "EFFECT_FAILED: B.y (sync=R): boom", err.Error())
	assert.ErrorContains(t, err, "boom")
	assert.False(t, IsEffectError(errors.New("plain"), ErrCodeEffectFailed))
}
