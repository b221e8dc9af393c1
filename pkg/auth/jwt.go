package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Validator checks a bearer token and returns the caller's claims.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// JWTValidator validates JWTs issued by an external identity provider. The
// provider's JWKS is fetched once at construction and auto-refreshed to
// handle key rotation.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWTValidator creates a validator backed by the provider's JWKS
// endpoint.
func NewJWTValidator(jwksURL, issuer, audience string) (*JWTValidator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	// Initial fetch validates the configuration up front.
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWTValidator{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken verifies the signature, expiry, issuer, and audience, and
// extracts the claims the runtime cares about.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims := &Claims{
		Subject: token.Subject(),
		Custom:  make(map[string]interface{}),
	}
	if email, ok := token.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if role, ok := token.Get("role"); ok {
		claims.Role, _ = role.(string)
	}
	if tenantID, ok := token.Get("tenant_id"); ok {
		claims.TenantID, _ = tenantID.(string)
	}

	for iter := token.Iterate(ctx); iter.Next(ctx); {
		pair := iter.Pair()
		key := pair.Key.(string)
		switch key {
		case "sub", "email", "role", "tenant_id", "iss", "aud", "exp", "iat", "nbf":
		default:
			claims.Custom[key] = pair.Value
		}
	}

	return claims, nil
}

// StaticValidator maps opaque tokens to fixed claims. Meant for local
// development and tests, never production.
type StaticValidator struct {
	tokens map[string]*Claims
}

// NewStaticValidator creates a validator over a fixed token table.
func NewStaticValidator(tokens map[string]*Claims) *StaticValidator {
	return &StaticValidator{tokens: tokens}
}

func (v *StaticValidator) ValidateToken(_ context.Context, token string) (*Claims, error) {
	claims, ok := v.tokens[token]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
