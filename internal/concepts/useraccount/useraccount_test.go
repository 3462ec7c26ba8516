package useraccount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/concepttest"
	"github.com/roach88/campuscloset/internal/ir"
)

func setup(t *testing.T, opts ...Option) (*concepttest.Env, *concept.Set) {
	t.Helper()
	env := concepttest.New(t)
	opts = append([]Option{WithHashCost(bcrypt.MinCost)}, opts...)
	return env, New(env.Deps, opts...).Concept()
}

func signUp(t *testing.T, c *concept.Set, email, username string) string {
	t.Helper()
	req := concepttest.MustCall(t, c, "requestVerification", ir.IRObject{"email": ir.IRString(email)})
	token, _ := req.GetString("token")
	out := concepttest.MustCall(t, c, "confirmVerification", ir.IRObject{
		"token":    ir.IRString(token),
		"username": ir.IRString(username),
		"password": ir.IRString("correct-horse"),
	})
	id, _ := out.GetString("userId")
	return id
}

func TestRequestVerification_Validation(t *testing.T) {
	_, c := setup(t)

	tests := []struct {
		email string
		want  string
	}{
		{"", "Email is required"},
		{"not-an-email", "Invalid email format"},
		{"a b@mit.edu", "Invalid email format"},
		{"alice@mit", "Invalid email format"},
	}
	for _, tt := range tests {
		_, err := concepttest.Call(t, c, "requestVerification", ir.IRObject{"email": ir.IRString(tt.email)})
		require.Error(t, err, tt.email)
		assert.Equal(t, tt.want, err.Error())
		assert.True(t, concept.IsKind(err, concept.KindInvalid))
	}
}

func TestEmailSignup(t *testing.T) {
	_, c := setup(t)

	req := concepttest.MustCall(t, c, "requestVerification", ir.IRObject{"email": ir.IRString("alice@mit.edu")})
	assert.Equal(t, ir.IRString("token-1"), req["token"])
	assert.Equal(t, ir.IRBool(false), req["alreadyVerified"])

	out := concepttest.MustCall(t, c, "confirmVerification", ir.IRObject{
		"token":    ir.IRString("token-1"),
		"username": ir.IRString("alice"),
		"password": ir.IRString("correct-horse"),
	})
	assert.Equal(t, ir.IRString("id-1"), out["userId"])

	profile := concepttest.MustCall(t, c, "lookupUser", ir.IRObject{"userId": ir.IRString("id-1")})
	assert.Equal(t, ir.IRString("MIT"), profile["school"])
	assert.Equal(t, ir.IRString("alice"), profile["displayName"])
	assert.Equal(t, ir.IRArray{}, profile["listings"])

	// The token is consumed.
	_, err := concepttest.Call(t, c, "confirmVerification", ir.IRObject{
		"token":    ir.IRString("token-1"),
		"username": ir.IRString("alice2"),
		"password": ir.IRString("correct-horse"),
	})
	require.Error(t, err)
	assert.Equal(t, "Invalid verification token", err.Error())
}

func TestEmailSignup_UnknownDomainHasNoSchool(t *testing.T) {
	_, c := setup(t)
	id := signUp(t, c, "bob@gmail.com", "bob")

	profile := concepttest.MustCall(t, c, "viewProfile", ir.IRObject{"userId": ir.IRString(id)})
	assert.Equal(t, ir.IRNull{}, profile["school"])
}

func TestRequestVerification_ExistingUser(t *testing.T) {
	_, c := setup(t)
	id := signUp(t, c, "alice@mit.edu", "alice")

	out := concepttest.MustCall(t, c, "requestVerification", ir.IRObject{"email": ir.IRString("alice@mit.edu")})
	assert.Equal(t, ir.IRString(ExistingUserToken), out["token"])
	assert.Equal(t, ir.IRString(id), out["userId"])
	assert.Equal(t, ir.IRString("alice"), out["username"])
	assert.Equal(t, ir.IRBool(true), out["alreadyVerified"])
}

func TestConfirmVerification_Errors(t *testing.T) {
	_, c := setup(t)
	signUp(t, c, "alice@mit.edu", "alice")
	concepttest.MustCall(t, c, "requestVerification", ir.IRObject{"email": ir.IRString("carol@mit.edu")})

	tests := []struct {
		name     string
		token    string
		username string
		password string
		want     string
	}{
		{"missing", "", "carol", "correct-horse", "Token, username, and password are required"},
		{"short password", "token-2", "carol", "short", "Password must be at least 8 characters long"},
		{"bad token", "nope", "carol", "correct-horse", "Invalid verification token"},
		{"taken username", "token-2", "alice", "correct-horse", "Username already taken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := concepttest.Call(t, c, "confirmVerification", ir.IRObject{
				"token":    ir.IRString(tt.token),
				"username": ir.IRString(tt.username),
				"password": ir.IRString(tt.password),
			})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestConfirmVerification_Expired(t *testing.T) {
	env, c := setup(t, WithTokenTTL(time.Hour))

	concepttest.MustCall(t, c, "requestVerification", ir.IRObject{"email": ir.IRString("alice@mit.edu")})
	env.Clock.Advance(2 * time.Hour)

	params := ir.IRObject{
		"token":    ir.IRString("token-1"),
		"username": ir.IRString("alice"),
		"password": ir.IRString("correct-horse"),
	}
	_, err := concepttest.Call(t, c, "confirmVerification", params)
	require.Error(t, err)
	assert.Equal(t, "Verification token expired", err.Error())

	_, err = concepttest.Call(t, c, "confirmVerification", params)
	require.Error(t, err)
	assert.Equal(t, "Invalid verification token", err.Error())
}

func TestLoginByEmail(t *testing.T) {
	_, c := setup(t)
	id := signUp(t, c, "alice@mit.edu", "alice")

	out := concepttest.MustCall(t, c, "loginByEmail", ir.IRObject{
		"email":    ir.IRString("alice@mit.edu"),
		"password": ir.IRString("correct-horse"),
	})
	assert.Equal(t, ir.IRString(id), out["userId"])
	assert.Equal(t, ir.IRString("MIT"), out["school"])

	for _, creds := range []ir.IRObject{
		{"email": ir.IRString("alice@mit.edu"), "password": ir.IRString("wrong-password")},
		{"email": ir.IRString("nobody@mit.edu"), "password": ir.IRString("correct-horse")},
	} {
		_, err := concepttest.Call(t, c, "loginByEmail", creds)
		require.Error(t, err)
		assert.Equal(t, "Invalid email or password", err.Error())
		assert.True(t, concept.IsKind(err, concept.KindForbidden))
	}

	_, err := concepttest.Call(t, c, "loginByEmail", ir.IRObject{"email": ir.IRString("alice@mit.edu")})
	require.Error(t, err)
	assert.Equal(t, "Email and password are required", err.Error())
}

func TestSSOSignup(t *testing.T) {
	_, c := setup(t)

	out := concepttest.MustCall(t, c, "requestSSOLogin", ir.IRObject{
		"school": ir.IRString("Wellesley"),
		"email":  ir.IRString("dana@wellesley.edu"),
	})
	assert.Equal(t, ir.IRString("token-1"), out["ssoToken"])
	assert.Equal(t, ir.IRString("Wellesley"), out["school"])
	assert.Equal(t, ir.IRBool(false), out["alreadyVerified"])

	conf := concepttest.MustCall(t, c, "confirmSSOLogin", ir.IRObject{
		"ssoToken": ir.IRString("token-1"),
		"username": ir.IRString("dana"),
		"password": ir.IRString("correct-horse"),
	})
	assert.Equal(t, ir.IRString("Wellesley"), conf["school"])
	userID := conf["userId"]

	again := concepttest.MustCall(t, c, "requestSSOLogin", ir.IRObject{
		"school": ir.IRString("Wellesley"),
		"email":  ir.IRString("dana@wellesley.edu"),
	})
	assert.Equal(t, ir.IRBool(true), again["alreadyVerified"])
	assert.Equal(t, userID, again["userId"])
}

func TestRequestSSOLogin_Errors(t *testing.T) {
	_, c := setup(t)

	tests := []struct {
		school, email, want string
	}{
		{"", "a@mit.edu", "School and email are required"},
		{"Yale", "a@yale.edu", "Invalid school selected"},
		{"MIT", "a@harvard.edu", "Email must be from MIT domain (@mit.edu)"},
		{"MIT", "a@alum.mit.edu", "Email must be from MIT domain (@mit.edu)"},
	}
	for _, tt := range tests {
		_, err := concepttest.Call(t, c, "requestSSOLogin", ir.IRObject{
			"school": ir.IRString(tt.school),
			"email":  ir.IRString(tt.email),
		})
		require.Error(t, err)
		assert.Equal(t, tt.want, err.Error())
	}
}

func TestConfirmSSOLogin_RejectsEmailTokens(t *testing.T) {
	_, c := setup(t)
	concepttest.MustCall(t, c, "requestVerification", ir.IRObject{"email": ir.IRString("alice@mit.edu")})

	_, err := concepttest.Call(t, c, "confirmSSOLogin", ir.IRObject{
		"ssoToken": ir.IRString("token-1"),
		"username": ir.IRString("alice"),
		"password": ir.IRString("correct-horse"),
	})
	require.Error(t, err)
	assert.Equal(t, "Invalid SSO token", err.Error())
}

func TestConfirmSSOLogin_Expired(t *testing.T) {
	env, c := setup(t, WithTokenTTL(time.Minute))
	concepttest.MustCall(t, c, "requestSSOLogin", ir.IRObject{
		"school": ir.IRString("MIT"),
		"email":  ir.IRString("erin@mit.edu"),
	})
	env.Clock.Advance(time.Hour)

	_, err := concepttest.Call(t, c, "confirmSSOLogin", ir.IRObject{
		"ssoToken": ir.IRString("token-1"),
		"username": ir.IRString("erin"),
		"password": ir.IRString("correct-horse"),
	})
	require.Error(t, err)
	assert.Equal(t, "SSO token expired", err.Error())
}

func TestLookupUser_IncludesListings(t *testing.T) {
	env, c := setup(t)
	id := signUp(t, c, "alice@mit.edu", "alice")
	env.SeedListing(t, concepttest.Listing{ID: "l-1", Seller: id, School: "MIT", Title: "Lamp", MinAsk: concepttest.Cents(500)})
	env.SeedListing(t, concepttest.Listing{ID: "l-2", Seller: id, School: "MIT", Title: "Desk"})

	profile := concepttest.MustCall(t, c, "lookupUser", ir.IRObject{"userId": ir.IRString(id)})
	listings, ok := profile["listings"].(ir.IRArray)
	require.True(t, ok)
	require.Len(t, listings, 2)

	newest := listings[0].(ir.IRObject)
	assert.Equal(t, ir.IRString("l-2"), newest["listingId"])
	assert.Equal(t, ir.IRNull{}, newest["minAsk"])
	assert.Equal(t, ir.IRInt(500), listings[1].(ir.IRObject)["minAsk"])

	_, err := concepttest.Call(t, c, "lookupUser", ir.IRObject{"userId": ir.IRString("ghost")})
	require.Error(t, err)
	assert.Equal(t, "User not found", err.Error())
}

func TestUpdateAvatar(t *testing.T) {
	_, c := setup(t)
	id := signUp(t, c, "alice@mit.edu", "alice")

	out := concepttest.MustCall(t, c, "updateAvatar", ir.IRObject{
		"userId":    ir.IRString(id),
		"avatarUrl": ir.IRString("https://img.example/a.png"),
	})
	assert.Equal(t, ir.IRBool(true), out["success"])

	profile := concepttest.MustCall(t, c, "lookupUser", ir.IRObject{"userId": ir.IRString(id)})
	assert.Equal(t, ir.IRString("https://img.example/a.png"), profile["avatarUrl"])

	concepttest.MustCall(t, c, "updateAvatar", ir.IRObject{"userId": ir.IRString(id), "avatarUrl": ir.IRNull{}})
	profile = concepttest.MustCall(t, c, "lookupUser", ir.IRObject{"userId": ir.IRString(id)})
	assert.Equal(t, ir.IRNull{}, profile["avatarUrl"])

	_, err := concepttest.Call(t, c, "updateAvatar", ir.IRObject{"userId": ir.IRString("ghost")})
	require.Error(t, err)
	assert.Equal(t, "User not found", err.Error())
}

func TestGetSchools(t *testing.T) {
	_, c := setup(t)

	out := concepttest.MustCall(t, c, "getSchools", nil)
	schools, ok := out["schools"].(ir.IRArray)
	require.True(t, ok)
	require.Len(t, schools, len(Schools))
	first := schools[0].(ir.IRObject)
	assert.Equal(t, ir.IRString("MIT"), first["name"])
	assert.Equal(t, ir.IRString("mit.edu"), first["domain"])
}

func TestSchoolForEmail(t *testing.T) {
	s, ok := SchoolForEmail("x@bu.edu")
	require.True(t, ok)
	assert.Equal(t, "Boston University", s.Name)

	_, ok = SchoolForEmail("x@cs.bu.edu")
	assert.False(t, ok)
}
