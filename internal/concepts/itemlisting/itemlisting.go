// Package itemlisting implements the ItemListing concept: listings a
// seller offers to their own school.
package itemlisting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
	"github.com/roach88/campuscloset/internal/store"
)

// Name is the concept name.
const Name = "ItemListing"

// Listing statuses.
const (
	StatusActive    = "Active"
	StatusSold      = "Sold"
	StatusWithdrawn = "Withdrawn"
)

const (
	maxPhotos           = 10
	maxDescriptionWords = 100
	defaultCondition    = "pre_owned"
)

// ItemListing owns the listings and listing_tags tables.
type ItemListing struct {
	base.Deps
}

// New creates the concept.
func New(deps base.Deps) *ItemListing {
	return &ItemListing{Deps: deps}
}

// Concept exposes the actions.
func (l *ItemListing) Concept() *concept.Set {
	return concept.NewSet(Name).
		Handle("createListing", concept.Typed(l.CreateListing)).
		Handle("updateListing", concept.Typed(l.UpdateListing)).
		Handle("setStatus", concept.Typed(l.SetStatus)).
		Handle("getListing", concept.Typed(l.GetListing)).
		Handle("getListingsByUser", concept.Typed(l.GetListingsByUser))
}

type CreateParams struct {
	Seller      string   `json:"seller"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Photos      []string `json:"photos"`
	Tags        []string `json:"tags"`
	MinAsk      *int64   `json:"minAsk" validate:"omitempty,gte=0"`
	Condition   string   `json:"condition" validate:"omitempty,oneof=new_with_tags pre_owned washed"`
}

type CreateResult struct {
	ListingID string `json:"listingId"`
}

// CreateListing creates an Active listing in the seller's school. A zero
// minAsk is stored as no minimum.
func (l *ItemListing) CreateListing(ctx context.Context, p CreateParams) (CreateResult, error) {
	if p.Seller == "" || p.Title == "" || p.Description == "" {
		return CreateResult{}, concept.Invalidf("seller, title, and description are required")
	}
	if err := checkPhotos(p.Photos); err != nil {
		return CreateResult{}, err
	}
	if err := checkDescription(p.Description); err != nil {
		return CreateResult{}, err
	}
	if p.Condition == "" {
		p.Condition = defaultCondition
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.MinAsk != nil && *p.MinAsk == 0 {
		p.MinAsk = nil
	}

	seller, err := base.LoadUser(ctx, l.DB(), p.Seller)
	if err != nil && !errors.Is(err, base.ErrNotFound) {
		return CreateResult{}, err
	}
	if seller.School == "" {
		return CreateResult{}, concept.Invalidf("Seller must have a school affiliation")
	}

	photos, err := store.MarshalStrings(p.Photos)
	if err != nil {
		return CreateResult{}, err
	}
	tags, err := store.MarshalStrings(p.Tags)
	if err != nil {
		return CreateResult{}, err
	}

	id := l.NewID()
	now := l.Timestamp()
	err = l.Store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO listings (id, seller_id, school, title, description, photos, tags, condition,
				min_ask, status, current_high_bid, current_high_bidder, search_text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?)
		`, id, seller.ID, seller.School, p.Title, p.Description, photos, tags, p.Condition,
			p.MinAsk, StatusActive, base.SearchText(p.Title, p.Description, p.Condition, p.Tags), now, now); err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}
		return replaceTags(ctx, tx, id, p.Tags)
	})
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{ListingID: id}, nil
}

// Fields are the editable listing fields. Absent fields are unchanged.
type Fields struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Photos      []string `json:"photos"`
	Tags        []string `json:"tags"`
	MinAsk      *int64   `json:"minAsk" validate:"omitempty,gte=0"`
	Condition   *string  `json:"condition" validate:"omitempty,oneof=new_with_tags pre_owned washed"`
}

func (f Fields) empty() bool {
	return f.Title == nil && f.Description == nil && f.Photos == nil &&
		f.Tags == nil && f.MinAsk == nil && f.Condition == nil
}

type UpdateParams struct {
	ListingID string `json:"listingId"`
	Fields    Fields `json:"fields"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

// UpdateListing applies a partial update under the same rules as creation.
func (l *ItemListing) UpdateListing(ctx context.Context, p UpdateParams) (SuccessResult, error) {
	if p.ListingID == "" {
		return SuccessResult{}, concept.Invalidf("listingId is required")
	}
	f := p.Fields
	if f.empty() {
		return SuccessResult{}, concept.Invalidf("fields are required")
	}
	if f.Title != nil && *f.Title == "" {
		return SuccessResult{}, concept.Invalidf("title cannot be empty")
	}
	if f.Description != nil {
		if *f.Description == "" {
			return SuccessResult{}, concept.Invalidf("description cannot be empty")
		}
		if err := checkDescription(*f.Description); err != nil {
			return SuccessResult{}, err
		}
	}
	if f.Photos != nil {
		if err := checkPhotos(f.Photos); err != nil {
			return SuccessResult{}, err
		}
	}

	err := l.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var (
			cur     current
			tagsRaw string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT title, description, condition, tags FROM listings WHERE id = ?
		`, p.ListingID).Scan(&cur.title, &cur.description, &cur.condition, &tagsRaw)
		if errors.Is(err, sql.ErrNoRows) {
			return concept.NotFoundf("Listing not found")
		}
		if err != nil {
			return fmt.Errorf("load listing: %w", err)
		}
		if cur.tags, err = store.UnmarshalStrings(tagsRaw); err != nil {
			return err
		}

		sets, args := []string{}, []any{}
		set := func(col string, v any) {
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
		if f.Title != nil {
			cur.title = *f.Title
			set("title", cur.title)
		}
		if f.Description != nil {
			cur.description = *f.Description
			set("description", cur.description)
		}
		if f.Condition != nil {
			cur.condition = *f.Condition
			set("condition", cur.condition)
		}
		if f.Photos != nil {
			photos, err := store.MarshalStrings(f.Photos)
			if err != nil {
				return err
			}
			set("photos", photos)
		}
		if f.Tags != nil {
			cur.tags = f.Tags
			tags, err := store.MarshalStrings(f.Tags)
			if err != nil {
				return err
			}
			set("tags", tags)
		}
		if f.MinAsk != nil {
			if *f.MinAsk == 0 {
				set("min_ask", nil)
			} else {
				set("min_ask", *f.MinAsk)
			}
		}
		set("search_text", base.SearchText(cur.title, cur.description, cur.condition, cur.tags))
		set("updated_at", l.Timestamp())

		args = append(args, p.ListingID)
		if _, err := tx.ExecContext(ctx,
			`UPDATE listings SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return fmt.Errorf("update listing: %w", err)
		}
		if f.Tags != nil {
			return replaceTags(ctx, tx, p.ListingID, f.Tags)
		}
		return nil
	})
	if err != nil {
		return SuccessResult{}, err
	}
	return SuccessResult{Success: true}, nil
}

type current struct {
	title, description, condition string
	tags                          []string
}

type SetStatusParams struct {
	ListingID string `json:"listingId"`
	Status    string `json:"status"`
}

// SetStatus moves a listing to Active, Sold or Withdrawn.
func (l *ItemListing) SetStatus(ctx context.Context, p SetStatusParams) (SuccessResult, error) {
	if p.ListingID == "" || p.Status == "" {
		return SuccessResult{}, concept.Invalidf("listingId and status are required")
	}
	switch p.Status {
	case StatusActive, StatusSold, StatusWithdrawn:
	default:
		return SuccessResult{}, concept.Invalidf("Invalid status")
	}

	res, err := l.DB().ExecContext(ctx, `
		UPDATE listings SET status = ?, updated_at = ? WHERE id = ?
	`, p.Status, l.Timestamp(), p.ListingID)
	if err != nil {
		return SuccessResult{}, fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return SuccessResult{}, concept.NotFoundf("Listing not found")
	}
	return SuccessResult{Success: true}, nil
}

type ListingIDParams struct {
	ListingID string `json:"listingId" validate:"required"`
}

// GetListing returns one listing in any status.
func (l *ItemListing) GetListing(ctx context.Context, p ListingIDParams) (base.ListingView, error) {
	row := l.DB().QueryRowContext(ctx,
		`SELECT `+strings.Join(base.ListingColumns, ", ")+` FROM listings WHERE id = ?`, p.ListingID)
	v, err := base.ScanListingView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return base.ListingView{}, concept.NotFoundf("Listing not found")
	}
	if err != nil {
		return base.ListingView{}, fmt.Errorf("get listing: %w", err)
	}
	return v, nil
}

type UserIDParams struct {
	UserID string `json:"userId" validate:"required"`
}

type ListingsResult struct {
	Listings []base.ListingView `json:"listings"`
}

// GetListingsByUser returns every listing of a seller, newest first.
func (l *ItemListing) GetListingsByUser(ctx context.Context, p UserIDParams) (ListingsResult, error) {
	rows, err := l.DB().QueryContext(ctx, `
		SELECT `+strings.Join(base.ListingColumns, ", ")+` FROM listings
		WHERE seller_id = ?
		ORDER BY created_at DESC, id ASC
	`, p.UserID)
	if err != nil {
		return ListingsResult{}, fmt.Errorf("listings by user: %w", err)
	}
	views, err := base.ScanListingViews(rows)
	if err != nil {
		return ListingsResult{}, err
	}
	return ListingsResult{Listings: views}, nil
}

func checkPhotos(photos []string) error {
	if len(photos) == 0 {
		return concept.Invalidf("At least one photo is required")
	}
	if len(photos) > maxPhotos {
		return concept.Invalidf("Maximum %d photos allowed", maxPhotos)
	}
	return nil
}

func checkDescription(description string) error {
	if len(strings.Fields(description)) > maxDescriptionWords {
		return concept.Invalidf("Description must be %d words or less", maxDescriptionWords)
	}
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, listingID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM listing_tags WHERE listing_id = ?`, listingID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO listing_tags (listing_id, tag) VALUES (?, ?)`, listingID, tag); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}
