// Package bidding implements the Bidding concept: bids on listings from
// the bidder's own school, amounts in cents.
package bidding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
)

// Name is the concept name.
const Name = "Bidding"

const statusActive = "Active"

// Bidding owns the bids table and maintains the listing's current high bid.
type Bidding struct {
	base.Deps
}

// New creates the concept.
func New(deps base.Deps) *Bidding {
	return &Bidding{Deps: deps}
}

// Concept exposes the actions.
func (b *Bidding) Concept() *concept.Set {
	return concept.NewSet(Name).
		Handle("placeBid", concept.Typed(b.PlaceBid)).
		Handle("acceptBid", concept.Typed(b.AcceptBid)).
		Handle("withdrawBid", concept.Typed(b.WithdrawBid)).
		Handle("getBids", concept.Typed(b.GetBids)).
		Handle("getBidHistory", concept.Typed(b.GetBidHistory)).
		Handle("getCurrentHigh", concept.Typed(b.GetCurrentHigh)).
		Handle("getBidsByUser", concept.Typed(b.GetBidsByUser))
}

// Bid is one bid as returned to callers.
type Bid struct {
	BidID     string `json:"bidId"`
	ListingID string `json:"listingId"`
	Bidder    string `json:"bidder"`
	Amount    int64  `json:"amount"`
	Timestamp string `json:"timestamp"`
}

type PlaceBidParams struct {
	Bidder    string `json:"bidder"`
	ListingID string `json:"listingId"`
	Amount    int64  `json:"amount"`
}

type PlaceBidResult struct {
	BidID string `json:"bidId"`
}

// PlaceBid records a bid. Any bid at or above the minimum ask is accepted;
// it need not beat the current high bid.
func (b *Bidding) PlaceBid(ctx context.Context, p PlaceBidParams) (PlaceBidResult, error) {
	if p.Bidder == "" || p.ListingID == "" || p.Amount == 0 {
		return PlaceBidResult{}, concept.Invalidf("bidder, listingId, and amount are required")
	}
	if p.Amount < 0 {
		return PlaceBidResult{}, concept.Invalidf("Bid amount must be positive")
	}

	id := b.NewID()
	err := b.Store.WithTx(ctx, func(tx *sql.Tx) error {
		listing, err := base.LoadListing(ctx, tx, p.ListingID)
		if errors.Is(err, base.ErrNotFound) {
			return concept.NotFoundf("Listing not found")
		}
		if err != nil {
			return err
		}
		if listing.Status != statusActive {
			return concept.Invalidf("Cannot bid on inactive listings")
		}

		bidder, err := base.LoadUser(ctx, tx, p.Bidder)
		if err != nil && !errors.Is(err, base.ErrNotFound) {
			return err
		}
		if bidder.School == "" {
			return concept.Forbiddenf("Bidder must have a school affiliation")
		}
		if bidder.School != listing.School {
			return concept.Forbiddenf("Can only bid on listings from your school (%s)", bidder.School)
		}
		if listing.SellerID == p.Bidder {
			return concept.Forbiddenf("Cannot bid on your own listing")
		}
		if listing.MinAsk.Valid && p.Amount < listing.MinAsk.Int64 {
			return concept.Invalidf("Bid must be at least minimum ask of %s", base.FormatCents(listing.MinAsk.Int64))
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bids (id, listing_id, bidder_id, amount, withdrawn, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, id, p.ListingID, p.Bidder, p.Amount, b.Timestamp()); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		return refreshHigh(ctx, tx, p.ListingID)
	})
	if err != nil {
		return PlaceBidResult{}, err
	}
	return PlaceBidResult{BidID: id}, nil
}

type AcceptBidParams struct {
	ListingID string `json:"listingId"`
	BidID     string `json:"bidId"`
}

// AcceptBid confirms that a live bid on an active listing is accepted and
// records its amount and bidder as the listing's current high bid. Marking the
// listing sold is left to the AcceptBidAndSell rule.
func (b *Bidding) AcceptBid(ctx context.Context, p AcceptBidParams) (Bid, error) {
	if p.ListingID == "" || p.BidID == "" {
		return Bid{}, concept.Invalidf("listingId and bidId are required")
	}

	bid, withdrawn, err := b.loadBid(ctx, p.BidID)
	if err != nil {
		return Bid{}, err
	}
	if bid == nil || bid.ListingID != p.ListingID {
		return Bid{}, concept.NotFoundf("Bid not found")
	}
	if withdrawn {
		return Bid{}, concept.Invalidf("Cannot accept a withdrawn bid")
	}

	listing, err := base.LoadListing(ctx, b.DB(), p.ListingID)
	if errors.Is(err, base.ErrNotFound) {
		return Bid{}, concept.NotFoundf("Listing not found")
	}
	if err != nil {
		return Bid{}, err
	}
	if listing.Status != statusActive {
		return Bid{}, concept.Invalidf("Cannot accept bids on inactive listings")
	}

	if _, err := b.DB().ExecContext(ctx, `
		UPDATE listings SET current_high_bid = ?, current_high_bidder = ? WHERE id = ?
	`, bid.Amount, bid.Bidder, p.ListingID); err != nil {
		return Bid{}, fmt.Errorf("record accepted bid: %w", err)
	}
	return *bid, nil
}

type WithdrawBidParams struct {
	BidID  string `json:"bidId"`
	Bidder string `json:"bidder"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

// WithdrawBid retracts the bidder's own bid and recomputes the listing's
// current high bid.
func (b *Bidding) WithdrawBid(ctx context.Context, p WithdrawBidParams) (SuccessResult, error) {
	if p.BidID == "" || p.Bidder == "" {
		return SuccessResult{}, concept.Invalidf("bidId and bidder are required")
	}

	bid, withdrawn, err := b.loadBid(ctx, p.BidID)
	if err != nil {
		return SuccessResult{}, err
	}
	if bid == nil {
		return SuccessResult{}, concept.NotFoundf("Bid not found")
	}
	if bid.Bidder != p.Bidder {
		return SuccessResult{}, concept.Forbiddenf("Only the bidder can withdraw this bid")
	}
	if withdrawn {
		return SuccessResult{}, concept.Conflictf("Bid already withdrawn")
	}

	err = b.Store.WithTx(ctx, func(tx *sql.Tx) error {
		listing, err := base.LoadListing(ctx, tx, bid.ListingID)
		if err != nil {
			return err
		}
		if listing.Status != statusActive {
			return concept.Invalidf("Cannot withdraw bids on inactive listings")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE bids SET withdrawn = 1 WHERE id = ?`, p.BidID); err != nil {
			return fmt.Errorf("withdraw bid: %w", err)
		}
		return refreshHigh(ctx, tx, bid.ListingID)
	})
	if err != nil {
		return SuccessResult{}, err
	}
	return SuccessResult{Success: true}, nil
}

type ListingIDParams struct {
	ListingID string `json:"listingId" validate:"required"`
}

type BidsResult struct {
	Bids []Bid `json:"bids"`
}

// GetBids returns the live bids on a listing, highest first.
func (b *Bidding) GetBids(ctx context.Context, p ListingIDParams) (BidsResult, error) {
	bids, err := b.queryBids(ctx, `
		SELECT id, listing_id, bidder_id, amount, created_at FROM bids
		WHERE listing_id = ? AND withdrawn = 0
		ORDER BY amount DESC, created_at ASC, id ASC
	`, p.ListingID)
	if err != nil {
		return BidsResult{}, err
	}
	return BidsResult{Bids: bids}, nil
}

// HistoryEntry is a bid with the bidder's username.
type HistoryEntry struct {
	BidID      string `json:"bidId"`
	Bidder     string `json:"bidder"`
	BidderName string `json:"bidderName"`
	Amount     int64  `json:"amount"`
	Timestamp  string `json:"timestamp"`
}

type HistoryResult struct {
	Bids      []HistoryEntry `json:"bids"`
	MaxBid    *int64         `json:"maxBid"`
	TotalBids int            `json:"totalBids"`
}

// GetBidHistory returns the live bids newest first with bidder names.
// Bidders without an account are named "Unknown".
func (b *Bidding) GetBidHistory(ctx context.Context, p ListingIDParams) (HistoryResult, error) {
	rows, err := b.DB().QueryContext(ctx, `
		SELECT b.id, b.bidder_id, COALESCE(u.username, 'Unknown'), b.amount, b.created_at
		FROM bids b LEFT JOIN users u ON u.id = b.bidder_id
		WHERE b.listing_id = ? AND b.withdrawn = 0
		ORDER BY b.created_at DESC, b.id ASC
	`, p.ListingID)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("bid history: %w", err)
	}
	defer rows.Close()

	res := HistoryResult{Bids: []HistoryEntry{}}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.BidID, &e.Bidder, &e.BidderName, &e.Amount, &e.Timestamp); err != nil {
			return HistoryResult{}, fmt.Errorf("scan bid: %w", err)
		}
		if res.MaxBid == nil || e.Amount > *res.MaxBid {
			amount := e.Amount
			res.MaxBid = &amount
		}
		res.Bids = append(res.Bids, e)
	}
	if err := rows.Err(); err != nil {
		return HistoryResult{}, err
	}
	res.TotalBids = len(res.Bids)
	return res, nil
}

type CurrentHighResult struct {
	Bid *Bid `json:"bid"`
}

// GetCurrentHigh returns the highest live bid, or a null bid when there
// is none. Ties go to the earlier bid.
func (b *Bidding) GetCurrentHigh(ctx context.Context, p ListingIDParams) (CurrentHighResult, error) {
	bids, err := b.queryBids(ctx, `
		SELECT id, listing_id, bidder_id, amount, created_at FROM bids
		WHERE listing_id = ? AND withdrawn = 0
		ORDER BY amount DESC, created_at ASC, id ASC
		LIMIT 1
	`, p.ListingID)
	if err != nil {
		return CurrentHighResult{}, err
	}
	if len(bids) == 0 {
		return CurrentHighResult{}, nil
	}
	return CurrentHighResult{Bid: &bids[0]}, nil
}

type UserIDParams struct {
	UserID string `json:"userId" validate:"required"`
}

// GetBidsByUser returns a user's live bids, newest first.
func (b *Bidding) GetBidsByUser(ctx context.Context, p UserIDParams) (BidsResult, error) {
	bids, err := b.queryBids(ctx, `
		SELECT id, listing_id, bidder_id, amount, created_at FROM bids
		WHERE bidder_id = ? AND withdrawn = 0
		ORDER BY created_at DESC, id ASC
	`, p.UserID)
	if err != nil {
		return BidsResult{}, err
	}
	return BidsResult{Bids: bids}, nil
}

func (b *Bidding) queryBids(ctx context.Context, query string, args ...any) ([]Bid, error) {
	rows, err := b.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bids: %w", err)
	}
	defer rows.Close()

	out := []Bid{}
	for rows.Next() {
		var bid Bid
		if err := rows.Scan(&bid.BidID, &bid.ListingID, &bid.Bidder, &bid.Amount, &bid.Timestamp); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		out = append(out, bid)
	}
	return out, rows.Err()
}

// loadBid returns nil when the bid does not exist.
func (b *Bidding) loadBid(ctx context.Context, bidID string) (*Bid, bool, error) {
	var (
		bid       Bid
		withdrawn bool
	)
	err := b.DB().QueryRowContext(ctx, `
		SELECT id, listing_id, bidder_id, amount, created_at, withdrawn FROM bids WHERE id = ?
	`, bidID).Scan(&bid.BidID, &bid.ListingID, &bid.Bidder, &bid.Amount, &bid.Timestamp, &withdrawn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load bid: %w", err)
	}
	return &bid, withdrawn, nil
}

// refreshHigh sets the listing's current high bid from its live bids.
func refreshHigh(ctx context.Context, tx *sql.Tx, listingID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listings SET
			current_high_bid = (
				SELECT amount FROM bids WHERE listing_id = ?1 AND withdrawn = 0
				ORDER BY amount DESC, created_at ASC, id ASC LIMIT 1),
			current_high_bidder = (
				SELECT bidder_id FROM bids WHERE listing_id = ?1 AND withdrawn = 0
				ORDER BY amount DESC, created_at ASC, id ASC LIMIT 1)
		WHERE id = ?1
	`, listingID)
	if err != nil {
		return fmt.Errorf("refresh high bid: %w", err)
	}
	return nil
}
