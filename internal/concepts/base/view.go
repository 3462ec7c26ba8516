package base

import (
	"database/sql"
	"fmt"

	"github.com/roach88/campuscloset/internal/store"
)

// ListingView is the listing shape returned to callers.
type ListingView struct {
	ListingID         string   `json:"listingId"`
	Seller            string   `json:"seller"`
	School            string   `json:"school"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Photos            []string `json:"photos"`
	Tags              []string `json:"tags"`
	Condition         string   `json:"condition"`
	MinAsk            *int64   `json:"minAsk"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"createdAt"`
	UpdatedAt         string   `json:"updatedAt"`
	CurrentHighestBid *int64   `json:"currentHighestBid"`
	CurrentHighBidder *string  `json:"currentHighBidder"`
}

// ListingColumns are the listings columns ScanListingView expects, in order.
var ListingColumns = []string{
	"id", "seller_id", "school", "title", "description", "photos", "tags", "condition",
	"min_ask", "status", "created_at", "updated_at", "current_high_bid", "current_high_bidder",
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanListingView scans one row selected with ListingColumns.
func ScanListingView(s Scanner) (ListingView, error) {
	var (
		v            ListingView
		photos, tags string
		minAsk, bid  sql.NullInt64
		bidder       sql.NullString
	)
	err := s.Scan(&v.ListingID, &v.Seller, &v.School, &v.Title, &v.Description, &photos, &tags,
		&v.Condition, &minAsk, &v.Status, &v.CreatedAt, &v.UpdatedAt, &bid, &bidder)
	if err != nil {
		return ListingView{}, err
	}
	if v.Photos, err = store.UnmarshalStrings(photos); err != nil {
		return ListingView{}, fmt.Errorf("listing %s photos: %w", v.ListingID, err)
	}
	if v.Tags, err = store.UnmarshalStrings(tags); err != nil {
		return ListingView{}, fmt.Errorf("listing %s tags: %w", v.ListingID, err)
	}
	v.MinAsk = NullInt(minAsk)
	v.CurrentHighestBid = NullInt(bid)
	v.CurrentHighBidder = NullString(bidder)
	return v, nil
}

// ScanListingViews drains rows into views. It closes rows.
func ScanListingViews(rows *sql.Rows) ([]ListingView, error) {
	defer rows.Close()
	out := []ListingView{}
	for rows.Next() {
		v, err := ScanListingView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
