// Package messaging implements the MessagingThread concept: one thread per
// buyer and listing, and pickup confirmation by the seller.
package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
	"github.com/roach88/campuscloset/internal/store"
)

// Name is the concept name.
const Name = "MessagingThread"

// Messaging owns the threads and messages tables.
type Messaging struct {
	base.Deps
}

// New creates the concept.
func New(deps base.Deps) *Messaging {
	return &Messaging{Deps: deps}
}

// Concept exposes the actions.
func (m *Messaging) Concept() *concept.Set {
	return concept.NewSet(Name).
		Handle("startThread", concept.Typed(m.StartThread)).
		Handle("postMessage", concept.Typed(m.PostMessage)).
		Handle("markPickupComplete", concept.Typed(m.MarkPickupComplete)).
		Handle("getThread", concept.Typed(m.GetThread)).
		Handle("getThreadsByUser", concept.Typed(m.GetThreadsByUser)).
		Handle("getThreadsByListing", concept.Typed(m.GetThreadsByListing))
}

// Message is one posted message.
type Message struct {
	Sender      string   `json:"sender"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
	Timestamp   string   `json:"timestamp"`
}

// Thread is a conversation between a buyer and a listing's seller.
// Participants are [buyer, seller].
type Thread struct {
	ThreadID       string    `json:"threadId"`
	ListingID      string    `json:"listingId"`
	Participants   []string  `json:"participants"`
	Messages       []Message `json:"messages"`
	PickupComplete bool      `json:"pickupComplete"`
	CreatedAt      string    `json:"createdAt"`
}

type StartThreadParams struct {
	UserID    string `json:"userId"`
	ListingID string `json:"listingId"`
}

type ThreadIDResult struct {
	ThreadID string `json:"threadId"`
}

// StartThread opens a thread between the buyer and the listing's seller,
// or returns the one that already exists.
func (m *Messaging) StartThread(ctx context.Context, p StartThreadParams) (ThreadIDResult, error) {
	if p.UserID == "" || p.ListingID == "" {
		return ThreadIDResult{}, concept.Invalidf("userId and listingId are required")
	}

	var threadID string
	err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		listing, err := base.LoadListing(ctx, tx, p.ListingID)
		if errors.Is(err, base.ErrNotFound) {
			return concept.NotFoundf("Listing not found")
		}
		if err != nil {
			return err
		}
		buyer, err := base.LoadUser(ctx, tx, p.UserID)
		if err != nil && !errors.Is(err, base.ErrNotFound) {
			return err
		}
		if buyer.School == "" {
			return concept.Forbiddenf("Buyer must have a school affiliation")
		}
		if buyer.School != listing.School {
			return concept.Forbiddenf("Can only message about listings from your school (%s)", buyer.School)
		}
		if listing.SellerID == p.UserID {
			return concept.Invalidf("Cannot start a thread on your own listing")
		}

		err = tx.QueryRowContext(ctx, `
			SELECT id FROM threads WHERE listing_id = ? AND buyer_id = ? AND seller_id = ?
		`, p.ListingID, p.UserID, listing.SellerID).Scan(&threadID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find thread: %w", err)
		}

		threadID = m.NewID()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO threads (id, listing_id, buyer_id, seller_id, pickup_complete, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, threadID, p.ListingID, p.UserID, listing.SellerID, m.Timestamp()); err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
		return nil
	})
	if err != nil {
		return ThreadIDResult{}, err
	}
	return ThreadIDResult{ThreadID: threadID}, nil
}

type PostMessageParams struct {
	ThreadID    string   `json:"threadId"`
	UserID      string   `json:"userId"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

// PostMessage appends a message from a participant.
func (m *Messaging) PostMessage(ctx context.Context, p PostMessageParams) (SuccessResult, error) {
	if p.ThreadID == "" || p.UserID == "" || p.Text == "" {
		return SuccessResult{}, concept.Invalidf("threadId, userId, and text are required")
	}
	th, err := m.participant(ctx, p.ThreadID, p.UserID)
	if err != nil {
		return SuccessResult{}, err
	}

	attachments, err := store.MarshalStrings(p.Attachments)
	if err != nil {
		return SuccessResult{}, err
	}
	if _, err := m.DB().ExecContext(ctx, `
		INSERT INTO messages (thread_id, sender_id, text, attachments, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, th.id, p.UserID, p.Text, attachments, m.Timestamp()); err != nil {
		return SuccessResult{}, fmt.Errorf("insert message: %w", err)
	}
	return SuccessResult{Success: true}, nil
}

type PickupParams struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId"`
}

type PickupResult struct {
	Success   bool   `json:"success"`
	ThreadID  string `json:"threadId"`
	ListingID string `json:"listingId"`
}

// MarkPickupComplete records that the item changed hands. Only the seller
// may do this. The result carries the listing so a rule can mark it sold.
func (m *Messaging) MarkPickupComplete(ctx context.Context, p PickupParams) (PickupResult, error) {
	if p.ThreadID == "" || p.UserID == "" {
		return PickupResult{}, concept.Invalidf("threadId and userId are required")
	}
	th, err := m.participant(ctx, p.ThreadID, p.UserID)
	if err != nil {
		return PickupResult{}, err
	}
	if th.sellerID != p.UserID {
		return PickupResult{}, concept.Forbiddenf("Only the seller can mark pickup as complete")
	}

	if _, err := m.DB().ExecContext(ctx, `UPDATE threads SET pickup_complete = 1 WHERE id = ?`, th.id); err != nil {
		return PickupResult{}, fmt.Errorf("mark pickup: %w", err)
	}
	return PickupResult{Success: true, ThreadID: th.id, ListingID: th.listingID}, nil
}

type ThreadIDParams struct {
	ThreadID string `json:"threadId" validate:"required"`
}

// GetThread returns a thread with its messages in posting order.
func (m *Messaging) GetThread(ctx context.Context, p ThreadIDParams) (Thread, error) {
	threads, err := m.queryThreads(ctx, `WHERE id = ?`, p.ThreadID)
	if err != nil {
		return Thread{}, err
	}
	if len(threads) == 0 {
		return Thread{}, concept.NotFoundf("Thread not found")
	}
	return threads[0], nil
}

type UserIDParams struct {
	UserID string `json:"userId" validate:"required"`
}

type ThreadsResult struct {
	Threads []Thread `json:"threads"`
}

// GetThreadsByUser returns threads the user takes part in, newest first.
func (m *Messaging) GetThreadsByUser(ctx context.Context, p UserIDParams) (ThreadsResult, error) {
	threads, err := m.queryThreads(ctx, `WHERE buyer_id = ?1 OR seller_id = ?1`, p.UserID)
	if err != nil {
		return ThreadsResult{}, err
	}
	return ThreadsResult{Threads: threads}, nil
}

type ListingIDParams struct {
	ListingID string `json:"listingId" validate:"required"`
}

// GetThreadsByListing returns the threads about a listing, newest first.
func (m *Messaging) GetThreadsByListing(ctx context.Context, p ListingIDParams) (ThreadsResult, error) {
	threads, err := m.queryThreads(ctx, `WHERE listing_id = ?`, p.ListingID)
	if err != nil {
		return ThreadsResult{}, err
	}
	return ThreadsResult{Threads: threads}, nil
}

type threadRow struct {
	id, listingID, buyerID, sellerID string
}

// participant loads a thread and checks that userID is in it.
func (m *Messaging) participant(ctx context.Context, threadID, userID string) (threadRow, error) {
	var th threadRow
	err := m.DB().QueryRowContext(ctx, `
		SELECT id, listing_id, buyer_id, seller_id FROM threads WHERE id = ?
	`, threadID).Scan(&th.id, &th.listingID, &th.buyerID, &th.sellerID)
	if errors.Is(err, sql.ErrNoRows) {
		return threadRow{}, concept.NotFoundf("Thread not found")
	}
	if err != nil {
		return threadRow{}, fmt.Errorf("load thread: %w", err)
	}
	if userID != th.buyerID && userID != th.sellerID {
		return threadRow{}, concept.Forbiddenf("User is not a participant in this thread")
	}
	return th, nil
}

// queryThreads loads the threads matching where, then their messages.
// Thread rows are drained before messages are read.
func (m *Messaging) queryThreads(ctx context.Context, where string, args ...any) ([]Thread, error) {
	rows, err := m.DB().QueryContext(ctx, `
		SELECT id, listing_id, buyer_id, seller_id, pickup_complete, created_at
		FROM threads `+where+`
		ORDER BY created_at DESC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}

	threads := []Thread{}
	for rows.Next() {
		var (
			t             Thread
			buyer, seller string
		)
		if err := rows.Scan(&t.ThreadID, &t.ListingID, &buyer, &seller, &t.PickupComplete, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		t.Participants = []string{buyer, seller}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range threads {
		msgs, err := m.messages(ctx, threads[i].ThreadID)
		if err != nil {
			return nil, err
		}
		threads[i].Messages = msgs
	}
	return threads, nil
}

func (m *Messaging) messages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := m.DB().QueryContext(ctx, `
		SELECT sender_id, text, attachments, created_at FROM messages
		WHERE thread_id = ? ORDER BY id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			msg         Message
			attachments string
		)
		if err := rows.Scan(&msg.Sender, &msg.Text, &attachments, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if msg.Attachments, err = store.UnmarshalStrings(attachments); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
