package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
)

func testSigner(t *testing.T, issuer string) *Signer {
	t.Helper()
	s, err := NewSigner(config.JWTConfig{Secret: "secret", Issuer: issuer, ExpirationMinutes: 30})
	require.NoError(t, err)
	return s
}

func TestMintAndParse(t *testing.T) {
	s := testSigner(t, "beatstore")
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := s.Mint(now, Subject{UserID: userID, Email: " buyer@example.com "})
	require.NoError(t, err)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "buyer@example.com", claims.Email)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "beatstore", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseRejections(t *testing.T) {
	s := testSigner(t, "beatstore")
	token, err := s.Mint(time.Now(), Subject{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = s.Parse(token + "x")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = testSigner(t, "someone-else").Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	stale, err := s.Mint(time.Now().Add(-time.Hour), Subject{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = s.Parse(stale)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseRejectsUnsignedAndForeignSubject(t *testing.T) {
	s := testSigner(t, "beatstore")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: uuid.New()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Parse(none)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "beatstore",
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Parse(forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewSignerValidatesConfig(t *testing.T) {
	for _, cfg := range []config.JWTConfig{
		{Issuer: "i", ExpirationMinutes: 5},
		{Secret: "s", ExpirationMinutes: 5},
		{Secret: "s", Issuer: "i"},
	} {
		_, err := NewSigner(cfg)
		assert.Error(t, err)
	}

	_, err := testSigner(t, "beatstore").Mint(time.Now(), Subject{})
	assert.Error(t, err)
}
