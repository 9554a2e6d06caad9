package http

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func TestTokenVerifier_Claims(t *testing.T) {
	v, err := NewTokenVerifier(AuthConfig{Secret: testSecret})
	require.NoError(t, err)

	actor, err := v.Verify(sign(t, Claims{
		PreferredUsername: "hana",
		RealmAccess:       RealmAccess{Roles: []string{"Manager", " HR", "HR", ""}},
		RegisteredClaims:  jwt.RegisteredClaims{Subject: "f3a1"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "hana", actor.ID)
	assert.Equal(t, []string{"HR", "Manager"}, actor.Roles)

	actor, err = v.Verify(sign(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "f3a1"}}))
	require.NoError(t, err)
	assert.Equal(t, "f3a1", actor.ID, "subject is the fallback identity")
	assert.Empty(t, actor.Roles)

	_, err = v.Verify(sign(t, Claims{}))
	assert.True(t, errors.Is(err, ErrInvalidToken), "a token without identity is rejected")
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v, err := NewTokenVerifier(AuthConfig{Secret: testSecret, Issuer: "https://sso", Audience: "forms"})
	require.NoError(t, err)

	valid := jwt.RegisteredClaims{
		Subject:   "emma",
		Issuer:    "https://sso",
		Audience:  jwt.ClaimStrings{"forms"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	_, err = v.Verify(sign(t, Claims{RegisteredClaims: valid}))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *jwt.RegisteredClaims)
	}{
		{"expired", func(c *jwt.RegisteredClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) }},
		{"wrong issuer", func(c *jwt.RegisteredClaims) { c.Issuer = "https://evil" }},
		{"wrong audience", func(c *jwt.RegisteredClaims) { c.Audience = jwt.ClaimStrings{"billing"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := valid
			tt.mutate(&claims)
			_, err := v.Verify(sign(t, Claims{RegisteredClaims: claims}))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("unsigned", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: valid}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTokenVerifier_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "realm.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	pub, err := LoadPublicKey(path)
	require.NoError(t, err)
	v, err := NewTokenVerifier(AuthConfig{PublicKey: pub})
	require.NoError(t, err)

	claims := Claims{PreferredUsername: "mark", RealmAccess: RealmAccess{Roles: []string{"Manager"}}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	actor, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "mark", actor.ID)
	assert.Equal(t, []string{"Manager"}, actor.Roles)

	// An HS256 token must not pass as RS256
	_, err = v.Verify(sign(t, claims))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenVerifier_RequiresKey(t *testing.T) {
	_, err := NewTokenVerifier(AuthConfig{})
	assert.Error(t, err)

	_, err = LoadPublicKey(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}
