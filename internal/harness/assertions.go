package harness

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/store"
)

// validIdentifier matches table and column names. Identifiers cannot be
// bound as SQL parameters, so anything else is rejected.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // for context; may be nil
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if !event.Calls() {
				continue
			}
			if event.Type == EventEffect {
				fmt.Fprintf(&buf, "  [%d] %s %s (rule %s)\n", i+1, event.ActionURI, formatIR(event.Args), event.Rule)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, event.ActionURI, formatIR(event.Args))
			}
		}
	}
	return buf.String()
}

// AssertionContext provides what non-trace assertions need.
type AssertionContext struct {
	Store    *store.Store
	Ctx      context.Context
	Captures map[string]ir.IRValue
}

// EvaluateAssertions evaluates every assertion against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	var captures map[string]ir.IRValue
	if actx != nil {
		captures = actx.Captures
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, captures)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertEffectFailed:
			err = assertEffectFailed(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion, captures)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertTraceContains passes when some call to the action has args that
// contain the expected args.
func assertTraceContains(trace []TraceEvent, assertion Assertion, captures map[string]ir.IRValue) error {
	want, err := convertArgs(assertion.Args, captures)
	if err != nil {
		return fmt.Errorf("trace_contains: %w", err)
	}

	for _, event := range trace {
		if event.Calls() && event.ActionURI == assertion.Action && subsetMatch(event.Args, want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %s", assertion.Action, formatIR(want)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first call to each action appears in
// the given order. Other calls may come in between.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if !event.Calls() {
			continue
		}
		if _, seen := positions[event.ActionURI]; !seen {
			positions[event.ActionURI] = i + 1
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of calls to the action.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Calls() && event.ActionURI == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEffectFailed passes when a sync effect matching the rule and/or
// action failed with an error containing ErrorContains.
func assertEffectFailed(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != EventEffect || event.Outcome != OutcomeError {
			continue
		}
		if assertion.Rule != "" && event.Rule != assertion.Rule {
			continue
		}
		if assertion.Action != "" && event.ActionURI != assertion.Action {
			continue
		}
		if !strings.Contains(event.Error, assertion.ErrorContains) {
			continue
		}
		return nil
	}

	target := assertion.Rule
	if target == "" {
		target = assertion.Action
	}
	expected := fmt.Sprintf("failed effect of %s", target)
	if assertion.ErrorContains != "" {
		expected += fmt.Sprintf(" with error containing %q", assertion.ErrorContains)
	}
	return &AssertionError{
		Type:     AssertEffectFailed,
		Expected: expected,
		Actual:   "no matching failed effect",
		Trace:    trace,
	}
}

// assertFinalState selects exactly one row of a table and compares the
// expected columns.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion, captures map[string]ir.IRValue) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	where, err := convertArgs(assertion.Where, captures)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}

	expect, err := convertArgs(assertion.Expect, captures)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	for _, key := range expect.SortedKeys() {
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expect[key], actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %s", key, formatIR(expect[key])),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// buildWhereClause builds a parameterized AND of equality tests. Keys
// are sorted so the query text is deterministic.
func buildWhereClause(where ir.IRObject) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := where.SortedKeys()

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		v := where[key]
		if _, isNull := v.(ir.IRNull); isNull || v == nil {
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", key))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(v))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts an IR scalar to a driver value.
func toSQLValue(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRBool:
		return bool(val)
	default:
		return formatIR(val)
	}
}

func formatWhereClause(where ir.IRObject) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := where.SortedKeys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatIR(where[k])))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected IR value with a value scanned
// from SQLite. Booleans are stored as 0/1.
func stateValuesEqual(expected ir.IRValue, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case nil, ir.IRNull:
		return actual == nil
	case ir.IRString:
		s, ok := actual.(string)
		return ok && string(exp) == s
	case ir.IRInt:
		n, ok := actual.(int64)
		return ok && int64(exp) == n
	case ir.IRBool:
		switch a := actual.(type) {
		case bool:
			return bool(exp) == a
		case int64:
			return bool(exp) == (a != 0)
		}
		return false
	default:
		s, ok := actual.(string)
		return ok && formatIR(exp) == s
	}
}

// subsetMatch reports whether actual contains expected: objects match
// when every expected key matches, arrays element by element, scalars
// by equality.
func subsetMatch(actual, expected ir.IRValue) bool {
	switch exp := expected.(type) {
	case nil, ir.IRNull:
		switch actual.(type) {
		case nil, ir.IRNull:
			return true
		}
		return false
	case ir.IRObject:
		act, ok := actual.(ir.IRObject)
		if !ok {
			return false
		}
		for key, want := range exp {
			got, exists := act[key]
			if !exists || !subsetMatch(got, want) {
				return false
			}
		}
		return true
	case ir.IRArray:
		act, ok := actual.(ir.IRArray)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !subsetMatch(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return actual == expected
	}
}
