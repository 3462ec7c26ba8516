package base

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/campuscloset/internal/store"
)

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$12.50", FormatCents(1250))
	assert.Equal(t, "$0.05", FormatCents(5))
	assert.Equal(t, "$100.00", FormatCents(10000))
	assert.Equal(t, "-$3.01", FormatCents(-301))
}

func TestTimeLayout_SortsLexically(t *testing.T) {
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	a := FormatTime(base)
	b := FormatTime(base.Add(500 * time.Millisecond))
	c := FormatTime(base.Add(time.Second))

	assert.Less(t, a, b)
	assert.Less(t, b, c)
	assert.Equal(t, "2025-09-01T12:00:00.000000000Z", a)

	back, err := ParseTime(b)
	require.NoError(t, err)
	assert.True(t, back.Equal(base.Add(500*time.Millisecond)))
}

func TestNew_Defaults(t *testing.T) {
	d := New(nil)
	assert.NotEmpty(t, d.NewID())
	assert.NotEqual(t, d.NewToken(), d.NewToken())
	assert.NotNil(t, d.Logger)

	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	d = New(nil, WithClock(func() time.Time { return fixed }), WithIDs(func() string { return "id-1" }))
	assert.Equal(t, "2025-01-02T03:04:05.000000000Z", d.Timestamp())
	assert.Equal(t, "id-1", d.NewID())
}

func TestLoadUserAndListing(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	_, err = st.DB().Exec(`INSERT INTO users (id, email, username, display_name, password_hash, school, created_at, verified_at)
		VALUES ('u-1', 'a@mit.edu', 'alice', 'alice', 'x', 'MIT', 't', 't')`)
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO listings (id, seller_id, school, title, description, photos, tags, condition, min_ask, status, created_at, updated_at)
		VALUES ('l-1', 'u-1', 'MIT', 'Coat', 'Warm', '[]', '[]', 'pre_owned', 1500, 'Active', 't', 't')`)
	require.NoError(t, err)

	u, err := LoadUser(ctx, st.DB(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u-1", Username: "alice", School: "MIT"}, u)

	_, err = LoadUser(ctx, st.DB(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	l, err := LoadListing(ctx, st.DB(), "l-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", l.SellerID)
	assert.Equal(t, sql.NullInt64{Int64: 1500, Valid: true}, l.MinAsk)
	assert.Nil(t, NullInt(l.CurrentHighBid))

	_, err = LoadListing(ctx, st.DB(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFoldAndSearchText(t *testing.T) {
	assert.Equal(t, Fold("\u00e9cole"), Fold("\u00c9COLE"))
	assert.Equal(t, "north face\nwarm\npre_owned\nwinter\njackets", SearchText("North Face", "Warm", "pre_owned", []string{"Winter", "jackets"}))
}
