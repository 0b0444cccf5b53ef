package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *Issuer {
	return &Issuer{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "compliance-api",
	}
}

func TestIssuer_NewAccess_SetsExpectedClaims(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer()
	userID := uuid.NewString()
	now := time.Now().UTC()

	token, exp, err := iss.NewAccess(userID, "user@example.com", now)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := iss.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.Equal(t, "compliance-api", claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
	assert.WithinDuration(t, now.Add(15*time.Minute), exp, time.Second)
}

func TestIssuer_NewRefresh_SetsJTI(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer()
	userID := uuid.NewString()

	token, jti, exp, err := iss.NewRefresh(userID, time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	claims, err := iss.ParseRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, userID, claims.Subject)
	assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)

	_, jti2, _, err := iss.NewRefresh(userID, time.Now().UTC())
	require.NoError(t, err)
	assert.NotEqual(t, jti, jti2)
}

func TestAccessClaimsFromToken_Expired(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer()
	token, _, err := iss.NewAccess(uuid.NewString(), "user@example.com", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	claims, err := iss.ParseAccess(token)
	require.Error(t, err)
	assert.Nil(t, claims)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestAccessClaimsFromToken_ExpiredSecondsAgo(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer()
	iss.AccessTTL = time.Minute
	token, exp, err := iss.NewAccess(uuid.NewString(), "user@example.com", time.Now().Add(-61*time.Second))
	require.NoError(t, err)
	require.True(t, exp.Before(time.Now()))

	_, err = iss.ParseAccess(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRefreshClaimsFromToken_ToleratesSmallSkew(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer()
	iss.RefreshTTL = time.Minute
	token, _, _, err := iss.NewRefresh(uuid.NewString(), time.Now().Add(-61*time.Second))
	require.NoError(t, err)

	_, err = iss.ParseRefresh(token)
	assert.NoError(t, err)
}

func TestAccessClaimsFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer()
	token, _, err := iss.NewAccess(uuid.NewString(), "user@example.com", time.Now())
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(token, []byte("another-secret"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid))
}

func TestTokenTypes_AreNotInterchangeable(t *testing.T) {
	t.Parallel()

	shared := []byte("shared-secret")
	iss := &Issuer{AccessSecret: shared, RefreshSecret: shared, AccessTTL: time.Minute, RefreshTTL: time.Hour}

	access, _, err := iss.NewAccess(uuid.NewString(), "a@example.com", time.Now())
	require.NoError(t, err)
	refresh, _, _, err := iss.NewRefresh(uuid.NewString(), time.Now())
	require.NoError(t, err)

	_, err = iss.ParseRefresh(access)
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = iss.ParseAccess(refresh)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestAccessClaimsFromToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	claims := AccessClaims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-jwt-secret"))
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(token, []byte("test-jwt-secret"))
	require.Error(t, err)
}

func TestAccessClaimsFromToken_Malformed(t *testing.T) {
	t.Parallel()

	_, err := AccessClaimsFromToken("not-a-valid-jwt", []byte("test-jwt-secret"))
	require.Error(t, err)
}

func TestSign_EmptySecret(t *testing.T) {
	t.Parallel()

	iss := &Issuer{AccessTTL: time.Minute}
	_, _, err := iss.NewAccess("id", "e@example.com", time.Now())
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestHashToken_Stable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
