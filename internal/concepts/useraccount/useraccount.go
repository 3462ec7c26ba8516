// Package useraccount implements the UserAccount concept: email and SSO
// verification, password login, and profiles.
package useraccount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
	"github.com/roach88/campuscloset/internal/store"
)

// Name is the concept name.
const Name = "UserAccount"

// ExistingUserToken is returned in place of a verification token when the
// email already belongs to a verified user.
const ExistingUserToken = "existing_user"

const minPasswordLength = 8

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserAccount owns users and pending verifications.
type UserAccount struct {
	base.Deps
	tokenTTL time.Duration
	hashCost int
}

// Option configures a UserAccount.
type Option func(*UserAccount)

// WithTokenTTL sets how long verification and SSO tokens stay valid.
// Default: 24h.
func WithTokenTTL(d time.Duration) Option {
	return func(u *UserAccount) { u.tokenTTL = d }
}

// WithHashCost sets the bcrypt cost. Default: bcrypt.DefaultCost.
func WithHashCost(cost int) Option {
	return func(u *UserAccount) { u.hashCost = cost }
}

// New creates the concept.
func New(deps base.Deps, opts ...Option) *UserAccount {
	u := &UserAccount{Deps: deps, tokenTTL: 24 * time.Hour, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Concept exposes the actions.
func (u *UserAccount) Concept() *concept.Set {
	return concept.NewSet(Name).
		Handle("requestVerification", concept.Typed(u.RequestVerification)).
		Handle("confirmVerification", concept.Typed(u.ConfirmVerification)).
		Handle("loginByEmail", concept.Typed(u.LoginByEmail)).
		Handle("requestSSOLogin", concept.Typed(u.RequestSSOLogin)).
		Handle("confirmSSOLogin", concept.Typed(u.ConfirmSSOLogin)).
		Handle("lookupUser", concept.Typed(u.LookupUser)).
		Handle("viewProfile", concept.Typed(u.LookupUser)).
		Handle("updateAvatar", concept.Typed(u.UpdateAvatar)).
		Handle("getSchools", concept.Typed(u.GetSchools))
}

type RequestVerificationParams struct {
	Email string `json:"email"`
}

type VerificationResult struct {
	Token           string `json:"token"`
	UserID          string `json:"userId,omitempty"`
	Username        string `json:"username,omitempty"`
	AlreadyVerified bool   `json:"alreadyVerified"`
}

// RequestVerification starts email signup. A verified email gets its user
// back instead of a token.
func (u *UserAccount) RequestVerification(ctx context.Context, p RequestVerificationParams) (VerificationResult, error) {
	if p.Email == "" {
		return VerificationResult{}, concept.Invalidf("Email is required")
	}
	if !emailRe.MatchString(p.Email) {
		return VerificationResult{}, concept.Invalidf("Invalid email format")
	}

	if existing, err := u.userByEmail(ctx, p.Email); err != nil {
		return VerificationResult{}, err
	} else if existing != nil {
		return VerificationResult{
			Token:           ExistingUserToken,
			UserID:          existing.id,
			Username:        existing.username,
			AlreadyVerified: true,
		}, nil
	}

	token := u.NewToken()
	if err := u.upsertPending(ctx, p.Email, token, "email", ""); err != nil {
		return VerificationResult{}, err
	}

	// No mail transport is configured; the token is returned to the caller.
	u.Logger.Info("verification requested", "email", p.Email)
	return VerificationResult{Token: token}, nil
}

type ConfirmVerificationParams struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserIDResult struct {
	UserID string `json:"userId"`
}

// ConfirmVerification creates the user for a pending email verification.
// The school is derived from the email domain and may be empty.
func (u *UserAccount) ConfirmVerification(ctx context.Context, p ConfirmVerificationParams) (UserIDResult, error) {
	if p.Token == "" || p.Username == "" || p.Password == "" {
		return UserIDResult{}, concept.Invalidf("Token, username, and password are required")
	}
	if len(p.Password) < minPasswordLength {
		return UserIDResult{}, concept.Invalidf("Password must be at least %d characters long", minPasswordLength)
	}

	pend, err := u.pendingByToken(ctx, p.Token, "")
	if err != nil {
		return UserIDResult{}, err
	}
	if pend == nil {
		return UserIDResult{}, concept.NotFoundf("Invalid verification token")
	}
	if u.expired(pend) {
		u.deletePending(ctx, p.Token)
		return UserIDResult{}, concept.Invalidf("Verification token expired")
	}

	school := ""
	if s, ok := SchoolForEmail(pend.email); ok {
		school = s.Name
	}
	id, err := u.createUser(ctx, pend, p.Username, p.Password, school)
	if err != nil {
		return UserIDResult{}, err
	}
	return UserIDResult{UserID: id}, nil
}

type LoginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	UserID      string  `json:"userId"`
	Email       string  `json:"email"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	School      *string `json:"school"`
}

// LoginByEmail checks a password. Unknown email and wrong password fail
// with the same message.
func (u *UserAccount) LoginByEmail(ctx context.Context, p LoginParams) (LoginResult, error) {
	if p.Email == "" || p.Password == "" {
		return LoginResult{}, concept.Invalidf("Email and password are required")
	}
	if !emailRe.MatchString(p.Email) {
		return LoginResult{}, concept.Invalidf("Invalid email format")
	}

	var (
		r      LoginResult
		hash   string
		school sql.NullString
	)
	err := u.DB().QueryRowContext(ctx, `
		SELECT id, email, username, display_name, password_hash, school
		FROM users WHERE email = ?
	`, p.Email).Scan(&r.UserID, &r.Email, &r.Username, &r.DisplayName, &hash, &school)
	if errors.Is(err, sql.ErrNoRows) {
		return LoginResult{}, concept.Forbiddenf("Invalid email or password")
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if hash == "" {
		return LoginResult{}, concept.Forbiddenf("No password set for this account")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(p.Password)) != nil {
		return LoginResult{}, concept.Forbiddenf("Invalid email or password")
	}
	r.School = base.NullString(school)
	return r, nil
}

type SSOLoginParams struct {
	School string `json:"school"`
	Email  string `json:"email"`
}

type SSOLoginResult struct {
	SSOToken        string `json:"ssoToken"`
	UserID          string `json:"userId,omitempty"`
	Username        string `json:"username,omitempty"`
	School          string `json:"school"`
	AlreadyVerified bool   `json:"alreadyVerified"`
}

// RequestSSOLogin starts a school SSO signup. The email domain must be
// the school's domain.
func (u *UserAccount) RequestSSOLogin(ctx context.Context, p SSOLoginParams) (SSOLoginResult, error) {
	if p.School == "" || p.Email == "" {
		return SSOLoginResult{}, concept.Invalidf("School and email are required")
	}
	school, ok := SchoolByName(p.School)
	if !ok {
		return SSOLoginResult{}, concept.Invalidf("Invalid school selected")
	}
	if !emailRe.MatchString(p.Email) {
		return SSOLoginResult{}, concept.Invalidf("Invalid email format")
	}
	if emailDomain(p.Email) != school.Domain {
		return SSOLoginResult{}, concept.Invalidf("Email must be from %s domain (@%s)", school.Name, school.Domain)
	}

	if existing, err := u.userByEmail(ctx, p.Email); err != nil {
		return SSOLoginResult{}, err
	} else if existing != nil {
		return SSOLoginResult{
			SSOToken:        ExistingUserToken,
			UserID:          existing.id,
			Username:        existing.username,
			School:          existing.school,
			AlreadyVerified: true,
		}, nil
	}

	token := u.NewToken()
	if err := u.upsertPending(ctx, p.Email, token, "sso", school.Name); err != nil {
		return SSOLoginResult{}, err
	}
	return SSOLoginResult{SSOToken: token, School: school.Name}, nil
}

type ConfirmSSOParams struct {
	SSOToken string `json:"ssoToken"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type ConfirmSSOResult struct {
	UserID string `json:"userId"`
	School string `json:"school"`
}

// ConfirmSSOLogin creates the user for a pending SSO verification.
func (u *UserAccount) ConfirmSSOLogin(ctx context.Context, p ConfirmSSOParams) (ConfirmSSOResult, error) {
	if p.SSOToken == "" || p.Username == "" || p.Password == "" {
		return ConfirmSSOResult{}, concept.Invalidf("SSO token, username, and password are required")
	}
	if len(p.Password) < minPasswordLength {
		return ConfirmSSOResult{}, concept.Invalidf("Password must be at least %d characters long", minPasswordLength)
	}

	pend, err := u.pendingByToken(ctx, p.SSOToken, "sso")
	if err != nil {
		return ConfirmSSOResult{}, err
	}
	if pend == nil {
		return ConfirmSSOResult{}, concept.NotFoundf("Invalid SSO token")
	}
	if u.expired(pend) {
		u.deletePending(ctx, p.SSOToken)
		return ConfirmSSOResult{}, concept.Invalidf("SSO token expired")
	}

	id, err := u.createUser(ctx, pend, p.Username, p.Password, pend.school)
	if err != nil {
		return ConfirmSSOResult{}, err
	}
	return ConfirmSSOResult{UserID: id, School: pend.school}, nil
}

type UserIDParams struct {
	UserID string `json:"userId" validate:"required"`
}

type ProfileListing struct {
	ListingID         string   `json:"listingId"`
	Title             string   `json:"title"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"createdAt"`
	Photos            []string `json:"photos"`
	MinAsk            *int64   `json:"minAsk"`
	CurrentHighestBid *int64   `json:"currentHighestBid"`
}

type Profile struct {
	UserID      string           `json:"userId"`
	Email       string           `json:"email"`
	Username    string           `json:"username"`
	DisplayName string           `json:"displayName"`
	School      *string          `json:"school"`
	AvatarURL   *string          `json:"avatarUrl"`
	VerifiedAt  string           `json:"verifiedAt"`
	CreatedAt   string           `json:"createdAt"`
	Listings    []ProfileListing `json:"listings"`
}

// LookupUser returns a profile with the user's listings, newest first.
// viewProfile is the same action.
func (u *UserAccount) LookupUser(ctx context.Context, p UserIDParams) (Profile, error) {
	var (
		pr             Profile
		school, avatar sql.NullString
	)
	err := u.DB().QueryRowContext(ctx, `
		SELECT id, email, username, display_name, school, avatar_url, verified_at, created_at
		FROM users WHERE id = ?
	`, p.UserID).Scan(&pr.UserID, &pr.Email, &pr.Username, &pr.DisplayName, &school, &avatar, &pr.VerifiedAt, &pr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, concept.NotFoundf("User not found")
	}
	if err != nil {
		return Profile{}, fmt.Errorf("lookup user: %w", err)
	}
	pr.School = base.NullString(school)
	pr.AvatarURL = base.NullString(avatar)

	listings, err := u.profileListings(ctx, p.UserID)
	if err != nil {
		return Profile{}, err
	}
	pr.Listings = listings
	return pr, nil
}

func (u *UserAccount) profileListings(ctx context.Context, userID string) ([]ProfileListing, error) {
	rows, err := u.DB().QueryContext(ctx, `
		SELECT id, title, status, created_at, photos, min_ask, current_high_bid
		FROM listings WHERE seller_id = ?
		ORDER BY created_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("profile listings: %w", err)
	}
	defer rows.Close()

	out := []ProfileListing{}
	for rows.Next() {
		var (
			l           ProfileListing
			photos      string
			minAsk, bid sql.NullInt64
		)
		if err := rows.Scan(&l.ListingID, &l.Title, &l.Status, &l.CreatedAt, &photos, &minAsk, &bid); err != nil {
			return nil, fmt.Errorf("scan profile listing: %w", err)
		}
		if l.Photos, err = store.UnmarshalStrings(photos); err != nil {
			return nil, err
		}
		l.MinAsk, l.CurrentHighestBid = base.NullInt(minAsk), base.NullInt(bid)
		out = append(out, l)
	}
	return out, rows.Err()
}

type UpdateAvatarParams struct {
	UserID    string  `json:"userId" validate:"required"`
	AvatarURL *string `json:"avatarUrl"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

// UpdateAvatar sets or clears (null) the avatar URL.
func (u *UserAccount) UpdateAvatar(ctx context.Context, p UpdateAvatarParams) (SuccessResult, error) {
	res, err := u.DB().ExecContext(ctx, `UPDATE users SET avatar_url = ? WHERE id = ?`, p.AvatarURL, p.UserID)
	if err != nil {
		return SuccessResult{}, fmt.Errorf("update avatar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return SuccessResult{}, concept.NotFoundf("User not found")
	}
	return SuccessResult{Success: true}, nil
}

type SchoolsResult struct {
	Schools []School `json:"schools"`
}

// GetSchools lists the supported schools.
func (u *UserAccount) GetSchools(context.Context, struct{}) (SchoolsResult, error) {
	return SchoolsResult{Schools: Schools}, nil
}

type existingUser struct {
	id, username, school string
}

func (u *UserAccount) userByEmail(ctx context.Context, email string) (*existingUser, error) {
	var (
		e      existingUser
		school sql.NullString
	)
	err := u.DB().QueryRowContext(ctx, `SELECT id, username, school FROM users WHERE email = ?`, email).
		Scan(&e.id, &e.username, &school)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	e.school = school.String
	return &e, nil
}

type pending struct {
	email     string
	school    string
	createdAt time.Time
}

func (u *UserAccount) upsertPending(ctx context.Context, email, token, method, school string) error {
	var schoolArg any
	if school != "" {
		schoolArg = school
	}
	_, err := u.DB().ExecContext(ctx, `
		INSERT INTO pending_verifications (email, token, school, auth_method, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			token = excluded.token,
			school = excluded.school,
			auth_method = excluded.auth_method,
			created_at = excluded.created_at
	`, email, token, schoolArg, method, u.Timestamp())
	if err != nil {
		return fmt.Errorf("store pending verification: %w", err)
	}
	return nil
}

// pendingByToken finds a pending verification. An empty method matches
// either kind.
func (u *UserAccount) pendingByToken(ctx context.Context, token, method string) (*pending, error) {
	var (
		p         pending
		school    sql.NullString
		createdAt string
	)
	err := u.DB().QueryRowContext(ctx, `
		SELECT email, school, created_at FROM pending_verifications
		WHERE token = ? AND (? = '' OR auth_method = ?)
	`, token, method, method).Scan(&p.email, &school, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending verification: %w", err)
	}
	p.school = school.String
	if p.createdAt, err = base.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (u *UserAccount) expired(p *pending) bool {
	return u.Now().Sub(p.createdAt) > u.tokenTTL
}

func (u *UserAccount) deletePending(ctx context.Context, token string) {
	if _, err := u.DB().ExecContext(ctx, `DELETE FROM pending_verifications WHERE token = ?`, token); err != nil {
		u.Logger.Warn("delete pending verification failed", "error", err)
	}
}

// createUser inserts the user and consumes the pending verification in
// one transaction.
func (u *UserAccount) createUser(ctx context.Context, p *pending, username, password, school string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id := u.NewID()
	now := u.Timestamp()
	var schoolArg any
	if school != "" {
		schoolArg = school
	}

	err = u.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var taken int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&taken); err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken > 0 {
			return concept.Conflictf("Username already taken")
		}
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, p.email).Scan(&taken); err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken > 0 {
			return concept.Conflictf("Email already registered")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, username, display_name, password_hash, school, avatar_url, created_at, verified_at)
			VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
		`, id, p.email, username, username, string(hash), schoolArg, now, now); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_verifications WHERE email = ?`, p.email); err != nil {
			return fmt.Errorf("consume pending verification: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func emailDomain(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}
