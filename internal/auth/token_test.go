package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/championcart/backend/internal/common"
)

var tokenNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := NewTokens(TokensConfig{
		Secret:   "test-secret",
		Issuer:   "championcart",
		Audience: "championcart-admin",
		Now:      func() time.Time { return tokenNow },
	})
	require.NoError(t, err)
	return tokens
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := newTestTokens(t)
	raw, err := tokens.Issue("ops@championcart", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "ops@championcart", claims.Subject)
	require.Equal(t, RoleAdmin, claims.Role)
	require.True(t, claims.ExpiresAt.Equal(tokenNow.Add(time.Hour)))
}

func TestTokensRejects(t *testing.T) {
	tokens := newTestTokens(t)
	other, err := NewTokens(TokensConfig{Secret: "other-secret", Issuer: "championcart", Audience: "championcart-admin", Now: tokens.now})
	require.NoError(t, err)
	foreign, err := other.Issue("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	expired, err := tokens.Issue("ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)

	wrongAudience, err := jwt.NewBuilder().Issuer("championcart").Audience([]string{"shoppers"}).
		IssuedAt(tokenNow).Expiration(tokenNow.Add(time.Hour)).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(wrongAudience, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	unsigned, err := jwt.NewSerializer().Serialize(wrongAudience)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"foreign secret": foreign,
		"expired":        expired,
		"wrong audience": string(signed),
		"not signed":     string(unsigned),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Parse(raw)
			require.Error(t, err)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
		})
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens(TokensConfig{Secret: "  "})
	require.Error(t, err)
}

func signClaims(t *testing.T, alg jwa.SignatureAlgorithm, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	tok, err := build(jwt.NewBuilder().Issuer("championcart").Audience([]string{"championcart-admin"})).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, []byte("test-secret")))
	require.NoError(t, err)
	return string(signed)
}

func TestTokensRegisteredClaims(t *testing.T) {
	tokens := newTestTokens(t)

	noSubject := signClaims(t, jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
		return b.Expiration(tokenNow.Add(time.Hour))
	})
	_, err := tokens.Parse(noSubject)
	require.Error(t, err, "sub is mandatory")

	noExpiry := signClaims(t, jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
		return b.Subject("ops")
	})
	_, err = tokens.Parse(noExpiry)
	require.Error(t, err, "exp is mandatory")

	otherAlg := signClaims(t, jwa.HS512, func(b *jwt.Builder) *jwt.Builder {
		return b.Subject("ops").Expiration(tokenNow.Add(time.Hour))
	})
	_, err = tokens.Parse(otherAlg)
	require.Error(t, err, "only HS256 is accepted")

	wrongIssuer, err := jwt.NewBuilder().Issuer("elsewhere").Audience([]string{"championcart-admin"}).
		Subject("ops").Expiration(tokenNow.Add(time.Hour)).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(wrongIssuer, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)
	_, err = tokens.Parse(string(signed))
	require.Error(t, err)
}

func TestTokensClockSkew(t *testing.T) {
	lenient, err := NewTokens(TokensConfig{
		Secret:    "test-secret",
		Issuer:    "championcart",
		Audience:  "championcart-admin",
		ClockSkew: 2 * time.Minute,
		Now:       func() time.Time { return tokenNow },
	})
	require.NoError(t, err)

	justExpired := signClaims(t, jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
		return b.Subject("ops").Expiration(tokenNow.Add(-time.Minute)).Claim("role", RoleAdmin)
	})
	claims, err := lenient.Parse(justExpired)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, claims.Role)

	_, err = newTestTokens(t).Parse(justExpired)
	require.Error(t, err)
}
