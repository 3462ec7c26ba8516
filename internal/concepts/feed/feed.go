// Package feed implements the Feed concept: read-only views over the
// active listings of one school. Queries are built as queryir trees and
// compiled by querysql.
package feed

import (
	"context"
	"fmt"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/queryir"
	"github.com/roach88/campuscloset/internal/querysql"
)

// Name is the concept name.
const Name = "Feed"

const defaultN = 20

// Feed owns no tables. It reads listings and listing_tags.
type Feed struct {
	base.Deps
}

// New creates the concept.
func New(deps base.Deps) *Feed {
	return &Feed{Deps: deps}
}

// Concept exposes the actions.
func (f *Feed) Concept() *concept.Set {
	return concept.NewSet(Name).
		Handle("getLatest", concept.Typed(f.GetLatest)).
		Handle("getByTag", concept.Typed(f.GetByTag)).
		Handle("getByPrice", concept.Typed(f.GetByPrice)).
		Handle("getByMultipleTags", concept.Typed(f.GetByMultipleTags)).
		Handle("search", concept.Typed(f.Search))
}

// Filters narrow getLatest. Prices are in cents and compare against the
// current high bid, or the minimum ask when there is no bid. Listings
// with neither always pass the price filter.
type Filters struct {
	Tags     []string `json:"tags"`
	MinPrice *int64   `json:"minPrice"`
	MaxPrice *int64   `json:"maxPrice"`
}

type LatestParams struct {
	School  string  `json:"school"`
	N       int     `json:"n" validate:"omitempty,gte=1,lte=500"`
	Filters Filters `json:"filters"`
}

type ListingsResult struct {
	Listings []base.ListingView `json:"listings"`
}

// GetLatest returns the newest active listings of a school.
func (f *Feed) GetLatest(ctx context.Context, p LatestParams) (ListingsResult, error) {
	if p.School == "" {
		return ListingsResult{}, concept.Invalidf("school is required")
	}
	preds := []queryir.Predicate{}
	if len(p.Filters.Tags) > 0 {
		preds = append(preds, anyTag(p.Filters.Tags))
	}
	if p.Filters.MinPrice != nil || p.Filters.MaxPrice != nil {
		if p.Filters.MinPrice != nil && p.Filters.MaxPrice != nil && *p.Filters.MinPrice > *p.Filters.MaxPrice {
			return ListingsResult{}, concept.Invalidf("minPrice cannot exceed maxPrice")
		}
		preds = append(preds, priceBetween(p.Filters.MinPrice, p.Filters.MaxPrice))
	}
	return f.run(ctx, p.School, p.N, preds...)
}

type TagParams struct {
	School string `json:"school"`
	Tag    string `json:"tag"`
	N      int    `json:"n" validate:"omitempty,gte=1,lte=500"`
}

// GetByTag is getLatest filtered to one tag.
func (f *Feed) GetByTag(ctx context.Context, p TagParams) (ListingsResult, error) {
	if p.School == "" {
		return ListingsResult{}, concept.Invalidf("school is required")
	}
	if p.Tag == "" {
		return ListingsResult{}, concept.Invalidf("tag is required")
	}
	return f.GetLatest(ctx, LatestParams{School: p.School, N: p.N, Filters: Filters{Tags: []string{p.Tag}}})
}

type PriceParams struct {
	School   string `json:"school"`
	MinPrice *int64 `json:"minPrice"`
	MaxPrice *int64 `json:"maxPrice"`
	N        int    `json:"n" validate:"omitempty,gte=1,lte=500"`
}

// GetByPrice is getLatest filtered to a price range.
func (f *Feed) GetByPrice(ctx context.Context, p PriceParams) (ListingsResult, error) {
	if p.School == "" {
		return ListingsResult{}, concept.Invalidf("school is required")
	}
	return f.GetLatest(ctx, LatestParams{
		School:  p.School,
		N:       p.N,
		Filters: Filters{MinPrice: p.MinPrice, MaxPrice: p.MaxPrice},
	})
}

type MultiTagParams struct {
	School string   `json:"school"`
	Tags   []string `json:"tags"`
	N      int      `json:"n" validate:"omitempty,gte=1,lte=500"`
}

// GetByMultipleTags returns active listings carrying every one of tags.
func (f *Feed) GetByMultipleTags(ctx context.Context, p MultiTagParams) (ListingsResult, error) {
	if p.School == "" {
		return ListingsResult{}, concept.Invalidf("school is required")
	}
	if len(p.Tags) == 0 {
		return ListingsResult{}, concept.Invalidf("tags are required")
	}
	preds := make([]queryir.Predicate, 0, len(p.Tags))
	for _, tag := range p.Tags {
		preds = append(preds, anyTag([]string{tag}))
	}
	return f.run(ctx, p.School, p.N, preds...)
}

type SearchParams struct {
	School string `json:"school"`
	Query  string `json:"query"`
	N      int    `json:"n" validate:"omitempty,gte=1,lte=500"`
}

// Search matches query case-insensitively against title, description,
// tags and condition.
func (f *Feed) Search(ctx context.Context, p SearchParams) (ListingsResult, error) {
	if p.School == "" {
		return ListingsResult{}, concept.Invalidf("school is required")
	}
	if p.Query == "" {
		return ListingsResult{}, concept.Invalidf("query is required")
	}
	return f.run(ctx, p.School, p.N, queryir.Contains{Field: "search_text", Substring: base.Fold(p.Query)})
}

// run selects active listings of school matching every extra predicate,
// newest first.
func (f *Feed) run(ctx context.Context, school string, n int, extra ...queryir.Predicate) (ListingsResult, error) {
	if n == 0 {
		n = defaultN
	}
	preds := append([]queryir.Predicate{
		queryir.Equals{Field: "status", Value: ir.IRString("Active")},
		queryir.Equals{Field: "school", Value: ir.IRString(school)},
	}, extra...)

	query, args, err := querysql.Compile(queryir.Select{
		From:    "listings",
		Fields:  base.ListingColumns,
		Filter:  queryir.And{Predicates: preds},
		OrderBy: []queryir.Order{{Field: "created_at", Desc: true}},
		Limit:   n,
	})
	if err != nil {
		return ListingsResult{}, fmt.Errorf("compile feed query: %w", err)
	}

	rows, err := f.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return ListingsResult{}, fmt.Errorf("feed query: %w", err)
	}
	views, err := base.ScanListingViews(rows)
	if err != nil {
		return ListingsResult{}, err
	}
	return ListingsResult{Listings: views}, nil
}

func anyTag(tags []string) queryir.Predicate {
	values := make([]ir.IRValue, len(tags))
	for i, t := range tags {
		values[i] = ir.IRString(t)
	}
	return queryir.InSelect{
		Field: "id",
		Sub: queryir.Select{
			From:   "listing_tags",
			Fields: []string{"listing_id"},
			Filter: queryir.In{Field: "tag", Values: values},
		},
	}
}

// priceBetween matches on the high bid when present, else on the minimum
// ask, and always matches listings with no price at all.
func priceBetween(minPrice, maxPrice *int64) queryir.Predicate {
	noBid := queryir.IsNull{Field: "current_high_bid"}
	return queryir.Or{Predicates: []queryir.Predicate{
		queryir.Range{Field: "current_high_bid", Min: minPrice, Max: maxPrice},
		queryir.And{Predicates: []queryir.Predicate{
			noBid,
			queryir.Range{Field: "min_ask", Min: minPrice, Max: maxPrice},
		}},
		queryir.And{Predicates: []queryir.Predicate{
			noBid,
			queryir.IsNull{Field: "min_ask"},
		}},
	}}
}
