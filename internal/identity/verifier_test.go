package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rtmcdo/schedulecoaches-web/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKid = "test-kid"

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	doc := map[string]interface{}{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"kid": testKid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x00, 0x01}),
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey) *identity.Verifier {
	t.Helper()
	jwksURL := newJWKSServer(t, key).URL
	providers := map[identity.Provider]identity.ProviderConfig{
		identity.ProviderEntra: {
			Issuers:   []string{"https://tenant.ciamlogin.com/tenant.onmicrosoft.com/v2.0"},
			JWKSURL:   jwksURL,
			Audiences: []string{"entra-client"},
		},
		identity.ProviderGoogle: {
			Issuers:   []string{"https://accounts.google.com", "accounts.google.com"},
			JWKSURL:   jwksURL,
			Audiences: []string{"google-client"},
		},
		identity.ProviderMicrosoft: {
			Issuers:   []string{"https://login.microsoftonline.com/9188040d-6c67-4c5b-b112-36a304b66dad/v2.0"},
			JWKSURL:   jwksURL,
			Audiences: []string{"microsoft-client"},
		},
	}
	return identity.NewVerifierWith(providers, identity.NewJWKSClient(5*time.Second))
}

func TestVerifyGoogleToken(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	raw := signToken(t, key, jwt.MapClaims{
		"iss":         "https://accounts.google.com",
		"aud":         "google-client",
		"sub":         "google-sub-1",
		"email":       "pat@gmail.com",
		"name":        "Pat Coach",
		"given_name":  "Pat",
		"family_name": "Coach",
	})

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderGoogle, claims.Provider)
	assert.Equal(t, "google-sub-1", claims.ProviderID)
	assert.Equal(t, "pat@gmail.com", claims.Email)
	assert.Equal(t, "Pat", claims.FirstName)
	assert.Equal(t, "Coach", claims.LastName)
}

func TestVerifyEntraToken(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	raw := signToken(t, key, jwt.MapClaims{
		"iss":                 "https://tenant.ciamlogin.com/tenant.onmicrosoft.com/v2.0",
		"aud":                 "entra-client",
		"oid":                 "entra-oid-1",
		"sub":                 "pairwise-sub",
		"emails":              []string{"pat@example.com"},
		"extension_FirstName": "Pat",
		"extension_LastName":  "Coach",
		"groups":              []string{"group-a", "group-b"},
	})

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderEntra, claims.Provider)
	// oid wins over sub for the stable account key.
	assert.Equal(t, "entra-oid-1", claims.ProviderID)
	assert.Equal(t, "pat@example.com", claims.Email)
	assert.Equal(t, "Pat", claims.FirstName)
	assert.Equal(t, "Coach", claims.LastName)
	assert.Equal(t, []string{"group-a", "group-b"}, claims.Groups)
}

func TestVerifyMicrosoftTokenSplitsDisplayName(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	raw := signToken(t, key, jwt.MapClaims{
		"iss":   "https://login.microsoftonline.com/9188040d-6c67-4c5b-b112-36a304b66dad/v2.0",
		"aud":   "microsoft-client",
		"sub":   "msa-sub-1",
		"email": "pat@outlook.com",
		"name":  "Pat Q Coach",
	})

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderMicrosoft, claims.Provider)
	assert.Equal(t, "msa-sub-1", claims.ProviderID)
	assert.Equal(t, "Pat", claims.FirstName)
	assert.Equal(t, "Q Coach", claims.LastName)
}

func TestVerifyRejections(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	t.Run("expired token", func(t *testing.T) {
		raw := signToken(t, key, jwt.MapClaims{
			"iss": "https://accounts.google.com",
			"aud": "google-client",
			"sub": "google-sub-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, identity.ErrTokenExpired)
	})

	t.Run("wrong audience", func(t *testing.T) {
		raw := signToken(t, key, jwt.MapClaims{
			"iss": "https://accounts.google.com",
			"aud": "someone-elses-client",
			"sub": "google-sub-1",
		})
		_, err := v.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		otherKey := newSigningKey(t)
		raw := signToken(t, otherKey, jwt.MapClaims{
			"iss": "https://accounts.google.com",
			"aud": "google-client",
			"sub": "google-sub-1",
		})
		_, err := v.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		raw := signToken(t, key, jwt.MapClaims{
			"iss": "https://appleid.apple.com",
			"aud": "apple-client",
			"sub": "apple-sub-1",
		})
		_, err := v.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, identity.ErrProviderNotConfigured)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})
}
