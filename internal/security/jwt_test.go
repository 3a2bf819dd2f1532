package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwrk-planet/roomchat/internal/domain"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func sign(t *testing.T, k *rsa.PrivateKey, claims jwt.StandardClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k)
	require.NoError(t, err)
	return s
}

func validClaims(now time.Time) jwt.StandardClaims {
	return jwt.StandardClaims{
		Subject:   "user-1",
		Issuer:    "cwrk-auth",
		Audience:  "roomchat",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(15 * time.Minute).Unix(),
	}
}

func TestVerify_OK(t *testing.T) {
	k := newKey(t)
	v := NewJWTVerifier(&k.PublicKey, "cwrk-auth", "roomchat", 30*time.Second)

	uid, err := v.Verify(context.Background(), sign(t, k, validClaims(time.Now())))
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), uid)
}

func TestVerify_Rejects(t *testing.T) {
	k := newKey(t)
	other := newKey(t)
	v := NewJWTVerifier(&k.PublicKey, "cwrk-auth", "roomchat", time.Second)
	now := time.Now()

	expired := validClaims(now)
	expired.ExpiresAt = now.Add(-time.Minute).Unix()

	wrongIss := validClaims(now)
	wrongIss.Issuer = "someone-else"

	wrongAud := validClaims(now)
	wrongAud.Audience = "billing"

	noSub := validClaims(now)
	noSub.Subject = ""

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"foreign key", sign(t, other, validClaims(now)), ErrInvalidToken},
		{"expired", sign(t, k, expired), ErrTokenExpired},
		{"issuer", sign(t, k, wrongIss), ErrInvalidIssuer},
		{"audience", sign(t, k, wrongAud), ErrInvalidAudience},
		{"subject", sign(t, k, noSub), ErrInvalidSubject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tc.token)
			require.ErrorIs(t, err, domain.ErrUnauthenticated)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVerify_HS256Rejected(t *testing.T) {
	k := newKey(t)
	v := NewJWTVerifier(&k.PublicKey, "cwrk-auth", "", 0)

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(time.Now())).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), s)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_ClockSkew(t *testing.T) {
	k := newKey(t)
	v := NewJWTVerifier(&k.PublicKey, "cwrk-auth", "roomchat", time.Minute)
	now := time.Now()

	c := validClaims(now)
	c.ExpiresAt = now.Add(-30 * time.Second).Unix()

	_, err := v.Verify(context.Background(), sign(t, k, c))
	require.NoError(t, err)
}

func TestLoadRSAPublicKeyFromPEM(t *testing.T) {
	k := newKey(t)
	der, err := x509.MarshalPKIXPublicKey(&k.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	pub, err := LoadRSAPublicKeyFromPEM(path)
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey.N, pub.N)

	_, err = LoadRSAPublicKeyFromPEM(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)
}
