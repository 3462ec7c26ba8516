package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/queryir"
)

func TestCompile_SimpleSelect(t *testing.T) {
	sql, args, err := Compile(queryir.Select{
		From:   "listings",
		Fields: []string{"id", "title"},
		Filter: queryir.Equals{Field: "status", Value: ir.IRString("Active")},
		Limit:  20,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, title FROM listings WHERE status = ? ORDER BY id ASC COLLATE BINARY LIMIT ?", sql)
	assert.Equal(t, []any{"Active", 20}, args)
	assert.NotContains(t, sql, "Active")
}

func TestCompile_PointerSelect(t *testing.T) {
	sql, _, err := Compile(&queryir.Select{From: "listings", Fields: []string{"id"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM listings ORDER BY id ASC COLLATE BINARY LIMIT ?", sql)
}

func TestCompile_OrderByAlwaysEndsWithID(t *testing.T) {
	sql, _, err := Compile(queryir.Select{
		From:    "listings",
		Fields:  []string{"id"},
		OrderBy: []queryir.Order{{Field: "created_at", Desc: true}, {Field: "id"}, {Field: "title"}},
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM listings ORDER BY created_at DESC, title ASC, id ASC COLLATE BINARY LIMIT ?", sql)
}

func TestCompile_Predicates(t *testing.T) {
	tests := []struct {
		name     string
		filter   queryir.Predicate
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "in",
			filter:   queryir.In{Field: "tag", Values: []ir.IRValue{ir.IRString("a"), ir.IRString("b")}},
			wantSQL:  "tag IN (?, ?)",
			wantArgs: []any{"a", "b"},
		},
		{
			name:     "empty in",
			filter:   queryir.In{Field: "tag"},
			wantSQL:  "0 = 1",
			wantArgs: nil,
		},
		{
			name:     "closed range",
			filter:   queryir.Range{Field: "min_ask", Min: queryir.Int64(100), Max: queryir.Int64(900)},
			wantSQL:  "min_ask BETWEEN ? AND ?",
			wantArgs: []any{int64(100), int64(900)},
		},
		{
			name:     "lower bound",
			filter:   queryir.Range{Field: "min_ask", Min: queryir.Int64(100)},
			wantSQL:  "min_ask >= ?",
			wantArgs: []any{int64(100)},
		},
		{
			name:     "upper bound",
			filter:   queryir.Range{Field: "min_ask", Max: queryir.Int64(900)},
			wantSQL:  "min_ask <= ?",
			wantArgs: []any{int64(900)},
		},
		{
			name:     "contains",
			filter:   queryir.Contains{Field: "search_text", Substring: "coat"},
			wantSQL:  "instr(search_text, ?) > 0",
			wantArgs: []any{"coat"},
		},
		{
			name:    "is not null",
			filter:  queryir.IsNull{Field: "current_high_bid", Not: true},
			wantSQL: "current_high_bid IS NOT NULL",
		},
		{
			name: "or of and",
			filter: queryir.Or{Predicates: []queryir.Predicate{
				queryir.And{Predicates: []queryir.Predicate{
					queryir.IsNull{Field: "current_high_bid", Not: true},
					queryir.Range{Field: "current_high_bid", Min: queryir.Int64(1)},
				}},
				queryir.IsNull{Field: "min_ask"},
			}},
			wantSQL:  "((current_high_bid IS NOT NULL AND current_high_bid >= ?) OR min_ask IS NULL)",
			wantArgs: []any{int64(1)},
		},
		{
			name:    "empty and",
			filter:  queryir.And{},
			wantSQL: "1 = 1",
		},
		{
			name: "in select",
			filter: queryir.InSelect{Field: "id", Sub: queryir.Select{
				From:   "listing_tags",
				Fields: []string{"listing_id"},
				Filter: queryir.In{Field: "tag", Values: []ir.IRValue{ir.IRString("winter")}},
			}},
			wantSQL:  "id IN (SELECT listing_id FROM listing_tags WHERE tag IN (?))",
			wantArgs: []any{"winter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Compile(queryir.Select{From: "listings", Fields: []string{"id"}, Filter: tt.filter, Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, "SELECT id FROM listings WHERE "+tt.wantSQL+" ORDER BY id ASC COLLATE BINARY LIMIT ?", sql)
			assert.Equal(t, append(tt.wantArgs, 10), args)
		})
	}
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, _, err := Compile(queryir.Select{From: "listings", Fields: []string{"id; DROP TABLE users"}, Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid query")

	_, _, err = Compile(nil)
	require.Error(t, err)
}
