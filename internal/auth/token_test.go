package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssuerRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, err := NewIssuer([]byte("secret"), "", 0, fixedClock(now))
	require.NoError(t, err)

	token, issued, err := iss.Issue("id-1", "co-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(defaultSessionTTL), issued.ExpiresAt)
	assert.NotEmpty(t, issued.TokenID)

	got, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.IdentityID)
	assert.Equal(t, "co-1", got.CompanyID)
	assert.Equal(t, issued.TokenID, got.TokenID)
	assert.False(t, got.Personal())
}

func TestIssuerPersonalOmitsCompany(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, err := NewIssuer([]byte("secret"), "orbit", time.Hour, fixedClock(now))
	require.NoError(t, err)

	token, _, err := iss.Issue("id-1", "")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	_, hasCompany := claims["cid"]
	assert.False(t, hasCompany)
	_, hasRoles := claims["role"]
	assert.False(t, hasRoles)

	s, err := iss.Verify(token)
	require.NoError(t, err)
	assert.True(t, s.Personal())
}

func TestIssuerRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, err := NewIssuer([]byte("secret"), "orbit", time.Hour, fixedClock(now))
	require.NoError(t, err)
	token, _, err := iss.Issue("id-1", "co-1")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later, err := NewIssuer([]byte("secret"), "orbit", time.Hour, fixedClock(now.Add(2*time.Hour)))
		require.NoError(t, err)
		_, err = later.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("other secret", func(t *testing.T) {
		other, err := NewIssuer([]byte("other"), "orbit", time.Hour, fixedClock(now))
		require.NoError(t, err)
		_, err = other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("other issuer", func(t *testing.T) {
		other, err := NewIssuer([]byte("secret"), "elsewhere", time.Hour, fixedClock(now))
		require.NoError(t, err)
		_, err = other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("issued in the future", func(t *testing.T) {
		early, err := NewIssuer([]byte("secret"), "orbit", time.Hour, fixedClock(now.Add(-time.Minute)))
		require.NoError(t, err)
		_, err = early.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("unsigned", func(t *testing.T) {
		claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "orbit",
			Subject:   "id-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = iss.Verify(none)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("garbage", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "a.b.c"} {
			_, err := iss.Verify(raw)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		}
	})
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(nil, "", 0, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPendingVerification, StatusPendingApproval, true},
		{StatusPendingVerification, StatusActive, true},
		{StatusPendingApproval, StatusActive, true},
		{StatusPendingApproval, StatusPendingVerification, false},
		{StatusPendingVerification, StatusRejected, true},
		{StatusPendingApproval, StatusRejected, true},
		{StatusRejected, StatusPendingApproval, true},
		{StatusRejected, StatusPendingVerification, true},
		{StatusRejected, StatusActive, false},
		{StatusActive, StatusRejected, false},
		{StatusActive, StatusPendingApproval, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, statusTransitionAllowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPasswordHelpers(t *testing.T) {
	_, err := HashPassword("short")
	require.Error(t, err)

	hash, err := HashPassword("long enough")
	require.NoError(t, err)
	require.NoError(t, VerifyPassword(hash, "long enough"))
	require.Error(t, VerifyPassword(hash, "wrong one"))
	require.Error(t, VerifyPassword("", "long enough"))
}

func TestSessionContext(t *testing.T) {
	_, err := RequireSession(t.Context())
	assert.ErrorIs(t, err, ErrSessionInvalid)

	ctx := ContextWithSession(t.Context(), Session{IdentityID: "id-1", CompanyID: "co-1"})
	s, err := RequireSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "co-1", s.CompanyID)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "acme-corp", Slugify("  Acme Corp!! "))
	assert.Equal(t, "", Slugify("!!!"))
}
