// Package concepttest sets up concepts against a throwaway database.
package concepttest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/store"
	"github.com/roach88/campuscloset/internal/testutil"
)

// Env is an in-memory store with deterministic time and IDs.
// Every call to Now advances the clock by one second.
type Env struct {
	Store *store.Store
	Clock *testutil.FakeClock
	Deps  base.Deps
}

// New opens a fresh in-memory store. IDs are "id-1", "id-2", ... and
// tokens "token-1", "token-2", ...
func New(t testing.TB) *Env {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewFakeClock(testutil.DefaultTime)
	deps := base.New(st,
		base.WithClock(clock.Tick),
		base.WithIDs(testutil.SequentialIDs("id")),
		base.WithTokens(testutil.SequentialIDs("token")),
		base.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &Env{Store: st, Clock: clock, Deps: deps}
}

// Options returns base options reproducing this Env's deps.
func (e *Env) Options() []base.Option {
	return []base.Option{
		base.WithClock(e.Deps.Now),
		base.WithIDs(e.Deps.NewID),
		base.WithTokens(e.Deps.NewToken),
		base.WithLogger(e.Deps.Logger),
	}
}

// SeedUser inserts a verified user. An empty school leaves it NULL.
func (e *Env) SeedUser(t testing.TB, id, username, school string) {
	t.Helper()
	var schoolArg any
	if school != "" {
		schoolArg = school
	}
	_, err := e.Store.DB().Exec(`
		INSERT INTO users (id, email, username, display_name, password_hash, school, created_at, verified_at)
		VALUES (?, ?, ?, ?, 'x', ?, ?, ?)
	`, id, username+"@example.edu", username, username, schoolArg, e.Deps.Timestamp(), e.Deps.Timestamp())
	require.NoError(t, err)
}

// Listing describes a listing row to seed.
type Listing struct {
	ID          string
	Seller      string
	School      string
	Title       string
	Description string
	Tags        []string
	Condition   string
	MinAsk      *int64
	HighBid     *int64
	Status      string
}

// SeedListing inserts a listing row and its tags. Empty fields get
// defaults: status Active, condition pre_owned.
func (e *Env) SeedListing(t testing.TB, l Listing) {
	t.Helper()
	if l.Status == "" {
		l.Status = "Active"
	}
	if l.Condition == "" {
		l.Condition = "pre_owned"
	}
	if l.Description == "" {
		l.Description = l.Title
	}
	tags, err := store.MarshalStrings(l.Tags)
	require.NoError(t, err)
	now := e.Deps.Timestamp()
	_, err = e.Store.DB().Exec(`
		INSERT INTO listings (id, seller_id, school, title, description, photos, tags, condition,
			min_ask, status, current_high_bid, search_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '["p.jpg"]', ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.Seller, l.School, l.Title, l.Description, tags, l.Condition,
		l.MinAsk, l.Status, l.HighBid, base.SearchText(l.Title, l.Description, l.Condition, l.Tags), now, now)
	require.NoError(t, err)
	for _, tag := range l.Tags {
		_, err := e.Store.DB().Exec(`INSERT INTO listing_tags (listing_id, tag) VALUES (?, ?)`, l.ID, tag)
		require.NoError(t, err)
	}
}

// Call runs one action of c.
func Call(t testing.TB, c concept.Concept, action string, params ir.IRObject) (ir.IRObject, error) {
	t.Helper()
	h, ok := c.Action(action)
	require.True(t, ok, "%s has no action %s", c.Name(), action)
	return concept.Call(context.Background(), h, params)
}

// MustCall runs one action of c and fails the test on error.
func MustCall(t testing.TB, c concept.Concept, action string, params ir.IRObject) ir.IRObject {
	t.Helper()
	out, err := Call(t, c, action, params)
	require.NoError(t, err, "%s.%s", c.Name(), action)
	return out
}

// Cents returns a pointer to n.
func Cents(n int64) *int64 { return &n }
