// Package base holds what every CampusCloset concept needs: the store,
// time and ID sources, and lookups over tables that several concepts read.
package base

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/roach88/campuscloset/internal/store"
)

// TimeLayout is the stored timestamp format. Fixed width so that string
// order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Deps are the shared dependencies of a concept.
type Deps struct {
	Store    *store.Store
	Now      func() time.Time
	NewID    func() string
	NewToken func() string
	Logger   *slog.Logger
}

// Option configures Deps.
type Option func(*Deps)

// WithClock sets the wall clock. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Deps) { d.Now = now }
}

// WithIDs sets the entity ID source. Default: UUIDv7.
func WithIDs(next func() string) Option {
	return func(d *Deps) { d.NewID = next }
}

// WithTokens sets the secret token source. Default: random UUIDv4.
func WithTokens(next func() string) Option {
	return func(d *Deps) { d.NewToken = next }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Deps) { d.Logger = l }
}

// New builds Deps over st.
func New(st *store.Store, opts ...Option) Deps {
	d := Deps{
		Store:    st,
		Now:      time.Now,
		NewID:    func() string { return uuid.Must(uuid.NewV7()).String() },
		NewToken: uuid.NewString,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// DB returns the store's database handle.
func (d Deps) DB() *sql.DB { return d.Store.DB() }

// Timestamp returns the current time in TimeLayout.
func (d Deps) Timestamp() string { return FormatTime(d.Now()) }

// FormatTime formats t in UTC with TimeLayout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatCents renders an amount in cents as dollars, e.g. 1250 -> "$12.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrNotFound is returned by the lookups below when the row does not exist.
var ErrNotFound = errors.New("not found")

// User is the subset of a user row other concepts read.
type User struct {
	ID       string
	Username string
	School   string // empty when the user has no school affiliation
}

// LoadUser reads a user by ID.
func LoadUser(ctx context.Context, q Querier, userID string) (User, error) {
	var (
		u      User
		school sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT id, username, school FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Username, &school)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	u.School = school.String
	return u, nil
}

// Listing is the subset of a listing row other concepts read.
type Listing struct {
	ID             string
	SellerID       string
	School         string
	Status         string
	MinAsk         sql.NullInt64
	CurrentHighBid sql.NullInt64
}

// LoadListing reads a listing by ID.
func LoadListing(ctx context.Context, q Querier, listingID string) (Listing, error) {
	var l Listing
	err := q.QueryRowContext(ctx, `
		SELECT id, seller_id, school, status, min_ask, current_high_bid
		FROM listings WHERE id = ?
	`, listingID).Scan(&l.ID, &l.SellerID, &l.School, &l.Status, &l.MinAsk, &l.CurrentHighBid)
	if errors.Is(err, sql.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	if err != nil {
		return Listing{}, fmt.Errorf("load listing %s: %w", listingID, err)
	}
	return l, nil
}

// NullInt returns a pointer for a nullable integer column, nil when NULL.
func NullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// NullString returns a pointer for a nullable text column, nil when NULL.
func NullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Fold case-folds s for case-insensitive matching, beyond ASCII.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// SearchText is the folded text a listing is searched by: title,
// description, condition and tags, one per line.
func SearchText(title, description, condition string, tags []string) string {
	parts := append([]string{title, description, condition}, tags...)
	return Fold(strings.Join(parts, "\n"))
}
