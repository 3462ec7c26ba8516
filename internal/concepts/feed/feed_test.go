package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/concepttest"
	"github.com/roach88/campuscloset/internal/ir"
)

// Seeded in creation order, so newest first is the reverse.
func setup(t *testing.T) *concept.Set {
	t.Helper()
	env := concepttest.New(t)
	env.SeedUser(t, "u-1", "sam", "MIT")
	env.SeedUser(t, "u-2", "hal", "Harvard")

	cents := concepttest.Cents
	for _, l := range []concepttest.Listing{
		{ID: "desk", Seller: "u-1", School: "MIT", Title: "Oak desk", Tags: []string{"furniture"}, MinAsk: cents(4000)},
		{ID: "lamp", Seller: "u-1", School: "MIT", Title: "Desk lamp", Tags: []string{"lighting", "furniture"}, MinAsk: cents(1000), HighBid: cents(2500)},
		{ID: "books", Seller: "u-1", School: "MIT", Title: "Calculus textbook", Description: "Stewart, 8th edition", Tags: []string{"books"}},
		{ID: "jacket", Seller: "u-1", School: "MIT", Title: "Rain jacket", Condition: "washed", Tags: []string{"clothing"}, MinAsk: cents(3000)},
		{ID: "sold", Seller: "u-1", School: "MIT", Title: "Desk chair", Tags: []string{"furniture"}, Status: "Sold"},
		{ID: "harvard", Seller: "u-2", School: "Harvard", Title: "Harvard desk", Tags: []string{"furniture"}},
	} {
		env.SeedListing(t, l)
	}
	return New(env.Deps).Concept()
}

func ids(t *testing.T, out ir.IRObject) []string {
	t.Helper()
	listings, ok := out["listings"].(ir.IRArray)
	require.True(t, ok)
	got := []string{}
	for _, l := range listings {
		id, _ := l.(ir.IRObject).GetString("listingId")
		got = append(got, id)
	}
	return got
}

func TestGetLatest(t *testing.T) {
	c := setup(t)

	out := concepttest.MustCall(t, c, "getLatest", ir.IRObject{"school": ir.IRString("MIT")})
	assert.Equal(t, []string{"jacket", "books", "lamp", "desk"}, ids(t, out))

	out = concepttest.MustCall(t, c, "getLatest", ir.IRObject{"school": ir.IRString("MIT"), "n": ir.IRInt(2)})
	assert.Equal(t, []string{"jacket", "books"}, ids(t, out))

	out = concepttest.MustCall(t, c, "getLatest", ir.IRObject{"school": ir.IRString("Wellesley")})
	assert.Empty(t, ids(t, out))

	_, err := concepttest.Call(t, c, "getLatest", ir.IRObject{})
	require.Error(t, err)
	assert.Equal(t, "school is required", err.Error())
}

func TestGetLatest_Filters(t *testing.T) {
	c := setup(t)

	tests := []struct {
		name    string
		filters ir.IRObject
		want    []string
	}{
		{"tags any", ir.IRObject{"tags": ir.IRArray{ir.IRString("lighting"), ir.IRString("books")}}, []string{"books", "lamp"}},
		// lamp is priced by its 2500 bid, not its 1000 ask; books has no price.
		{"min price", ir.IRObject{"minPrice": ir.IRInt(2000)}, []string{"jacket", "books", "lamp", "desk"}},
		{"max price", ir.IRObject{"maxPrice": ir.IRInt(2000)}, []string{"books"}},
		{"range", ir.IRObject{"minPrice": ir.IRInt(2500), "maxPrice": ir.IRInt(3000)}, []string{"jacket", "books", "lamp"}},
		{"tags and price", ir.IRObject{"tags": ir.IRArray{ir.IRString("furniture")}, "maxPrice": ir.IRInt(3000)}, []string{"lamp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := concepttest.MustCall(t, c, "getLatest", ir.IRObject{
				"school":  ir.IRString("MIT"),
				"filters": tt.filters,
			})
			assert.Equal(t, tt.want, ids(t, out))
		})
	}

	_, err := concepttest.Call(t, c, "getLatest", ir.IRObject{
		"school":  ir.IRString("MIT"),
		"filters": ir.IRObject{"minPrice": ir.IRInt(10), "maxPrice": ir.IRInt(5)},
	})
	require.Error(t, err)
	assert.Equal(t, "minPrice cannot exceed maxPrice", err.Error())
}

func TestGetByTag(t *testing.T) {
	c := setup(t)

	out := concepttest.MustCall(t, c, "getByTag", ir.IRObject{"school": ir.IRString("MIT"), "tag": ir.IRString("furniture")})
	assert.Equal(t, []string{"lamp", "desk"}, ids(t, out))

	_, err := concepttest.Call(t, c, "getByTag", ir.IRObject{"school": ir.IRString("MIT")})
	require.Error(t, err)
	assert.Equal(t, "tag is required", err.Error())
}

func TestGetByPrice(t *testing.T) {
	c := setup(t)

	out := concepttest.MustCall(t, c, "getByPrice", ir.IRObject{
		"school":   ir.IRString("MIT"),
		"minPrice": ir.IRInt(3500),
	})
	assert.Equal(t, []string{"books", "desk"}, ids(t, out))
}

func TestGetByMultipleTags(t *testing.T) {
	c := setup(t)

	out := concepttest.MustCall(t, c, "getByMultipleTags", ir.IRObject{
		"school": ir.IRString("MIT"),
		"tags":   ir.IRArray{ir.IRString("furniture"), ir.IRString("lighting")},
	})
	assert.Equal(t, []string{"lamp"}, ids(t, out))

	_, err := concepttest.Call(t, c, "getByMultipleTags", ir.IRObject{"school": ir.IRString("MIT")})
	require.Error(t, err)
	assert.Equal(t, "tags are required", err.Error())
}

func TestSearch(t *testing.T) {
	c := setup(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"DESK", []string{"lamp", "desk"}},
		{"stewart", []string{"books"}},
		{"washed", []string{"jacket"}},
		{"lighting", []string{"lamp"}},
		{"sofa", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			out := concepttest.MustCall(t, c, "search", ir.IRObject{
				"school": ir.IRString("MIT"),
				"query":  ir.IRString(tt.query),
			})
			assert.Equal(t, tt.want, ids(t, out))
		})
	}

	_, err := concepttest.Call(t, c, "search", ir.IRObject{"school": ir.IRString("MIT")})
	require.Error(t, err)
	assert.Equal(t, "query is required", err.Error())
}

func TestListingShape(t *testing.T) {
	c := setup(t)

	out := concepttest.MustCall(t, c, "getByTag", ir.IRObject{"school": ir.IRString("MIT"), "tag": ir.IRString("lighting")})
	lamp := out["listings"].(ir.IRArray)[0].(ir.IRObject)
	assert.Equal(t, ir.IRInt(2500), lamp["currentHighestBid"])
	assert.Equal(t, ir.IRInt(1000), lamp["minAsk"])
	assert.Equal(t, ir.IRString("u-1"), lamp["seller"])
	assert.Equal(t, ir.IRArray{ir.IRString("p.jpg")}, lamp["photos"])
}
