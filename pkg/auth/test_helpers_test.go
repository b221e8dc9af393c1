package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func generateRSAKeyPair(t testing.TB) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

func createJWKS(t testing.TB, publicKey *rsa.PublicKey) jwk.Set {
	t.Helper()
	key, err := jwk.FromRaw(publicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	keyset := jwk.NewSet()
	require.NoError(t, keyset.AddKey(key))
	return keyset
}

type tokenSpec struct {
	issuer   string
	audience string
	subject  string
	expires  time.Time
	claims   map[string]interface{}
}

func signTestJWT(t testing.TB, privateKey *rsa.PrivateKey, spec tokenSpec) string {
	t.Helper()

	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, spec.issuer))
	require.NoError(t, token.Set(jwt.AudienceKey, spec.audience))
	require.NoError(t, token.Set(jwt.SubjectKey, spec.subject))
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))

	expires := spec.expires
	if expires.IsZero() {
		expires = time.Now().Add(time.Hour)
	}
	require.NoError(t, token.Set(jwt.ExpirationKey, expires))

	for key, value := range spec.claims {
		require.NoError(t, token.Set(key, value))
	}

	key, err := jwk.FromRaw(privateKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key-id"))

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

// setupTestValidator spins up a JWKS endpoint backed by a fresh keypair and
// returns a validator pointed at it.
func setupTestValidator(t testing.TB) (*JWTValidator, *rsa.PrivateKey, string, string) {
	t.Helper()

	privateKey, publicKey := generateRSAKeyPair(t)
	keyset := createJWKS(t, publicKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keyset)
	}))
	t.Cleanup(server.Close)

	issuer := "https://test-issuer.example.com"
	audience := "omniforge-api"

	validator, err := NewJWTValidator(server.URL+"/.well-known/jwks.json", issuer, audience)
	require.NoError(t, err)

	return validator, privateKey, issuer, audience
}
