package assertion

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMinter(t *testing.T, secret string) *Minter {
	t.Helper()
	signer, err := NewHMACSigner([]byte(secret))
	require.NoError(t, err)
	m, err := NewMinter(signer, "edge-bridge", 5*time.Minute)
	require.NoError(t, err)
	return m
}

func TestMinter_ClaimShape(t *testing.T) {
	m := newTestMinter(t, "assertion-secret")

	token, err := m.Mint("user-42")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "edge-bridge", claims.Issuer)
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.Equal(t, 5*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	assert.NotEmpty(t, claims.ID)
}

func TestMinter_UsesHS256(t *testing.T) {
	m := newTestMinter(t, "assertion-secret")

	token, err := m.Mint("user-42")
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS256", parsed.Method.Alg())
}

func TestMinter_FreshPerCall(t *testing.T) {
	m := newTestMinter(t, "assertion-secret")

	a, err := m.Mint("user-42")
	require.NoError(t, err)
	b, err := m.Mint("user-42")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestMinter_RejectsEmptySubject(t *testing.T) {
	m := newTestMinter(t, "assertion-secret")

	_, err := m.Mint("")
	assert.Error(t, err)
}

func TestMinter_VerifyFailures(t *testing.T) {
	m := newTestMinter(t, "assertion-secret")
	other := newTestMinter(t, "some-other-secret")

	token, err := other.Mint("user-42")
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.Error(t, err, "signature from a different secret")

	m.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	stale, err := m.Mint("user-42")
	require.NoError(t, err)
	m.now = time.Now

	_, err = m.Verify(stale)
	assert.Error(t, err, "expired assertion")
}

func TestNewMinter_Validation(t *testing.T) {
	signer, err := NewHMACSigner([]byte("s"))
	require.NoError(t, err)

	_, err = NewMinter(nil, "iss", time.Minute)
	assert.Error(t, err)
	_, err = NewMinter(signer, "", time.Minute)
	assert.Error(t, err)
	_, err = NewMinter(signer, "iss", 0)
	assert.Error(t, err)

	_, err = NewHMACSigner(nil)
	assert.Error(t, err)
}
