package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"accountId":     "u1",
		"clientId":      "c1",
		"grantType":     "password",
		"creation_date": time.Now().UTC().Format(time.RFC3339),
		"hours_expire":  float64(8),
	}
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	result := v.Verify(signToken(t, testSecret, validClaims()))

	assert.True(t, result.Valid)
	assert.Equal(t, "u1", result.AccountID)
}

func TestVerifyStripsPrefix(t *testing.T) {
	v := NewVerifier(testSecret)
	result := v.Verify("eg1~" + signToken(t, testSecret, validClaims()))

	assert.True(t, result.Valid)
	assert.Equal(t, "u1", result.AccountID)
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	result := v.Verify(signToken(t, "other-secret", validClaims()))

	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInvalid, result.Reason)
}

func TestVerifyGarbage(t *testing.T) {
	v := NewVerifier(testSecret)
	for _, token := range []string{"", "eg1~", "not.a.token", "eg1~garbage"} {
		result := v.Verify(token)
		assert.False(t, result.Valid, "token %q", token)
		assert.Equal(t, ReasonInvalid, result.Reason)
	}
}

func TestVerifyExpired(t *testing.T) {
	claims := validClaims()
	claims["creation_date"] = time.Now().UTC().Add(-10 * time.Hour).Format(time.RFC3339)
	claims["hours_expire"] = float64(8)

	v := NewVerifier(testSecret)
	result := v.Verify(signToken(t, testSecret, claims))

	assert.False(t, result.Valid)
	assert.Equal(t, ReasonExpired, result.Reason)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	v := NewVerifier(testSecret)
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return fixed }

	claims := validClaims()
	claims["creation_date"] = fixed.Add(-8 * time.Hour).Format(time.RFC3339)
	claims["hours_expire"] = float64(8)

	// Expiry exactly at now counts as expired.
	result := v.Verify(signToken(t, testSecret, claims))
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonExpired, result.Reason)
}

func TestVerifyMissingAccountID(t *testing.T) {
	claims := validClaims()
	delete(claims, "accountId")

	v := NewVerifier(testSecret)
	result := v.Verify(signToken(t, testSecret, claims))

	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInvalid, result.Reason)
}

func TestVerifyMissingExpiryClaims(t *testing.T) {
	claims := validClaims()
	delete(claims, "creation_date")

	v := NewVerifier(testSecret)
	result := v.Verify(signToken(t, testSecret, claims))

	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInvalid, result.Reason)
}

func TestVerifyFractionalSecondsCreationDate(t *testing.T) {
	claims := validClaims()
	// Matches the issuer's ISO format with milliseconds.
	claims["creation_date"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")

	v := NewVerifier(testSecret)
	result := v.Verify(signToken(t, testSecret, claims))
	assert.True(t, result.Valid)
}

func TestVerifyRejectsUnsignedAlg(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := NewVerifier(testSecret)
	result := v.Verify(token)
	assert.False(t, result.Valid)
}
