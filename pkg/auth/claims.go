// Package auth validates caller identity and exposes it to handlers. Every
// request carries a tenant id and a role; downstream layers treat a tenant
// mismatch as not-found.
package auth

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const claimsContextKey contextKey = "claims"

// Claims is the validated caller identity.
type Claims struct {
	// Subject is the unique user id (sub claim).
	Subject string `json:"sub"`

	// Email is the user's email address, when the provider supplies one.
	Email string `json:"email,omitempty"`

	// Role drives visibility filtering and authorization decisions.
	Role string `json:"role,omitempty"`

	// TenantID scopes every repository lookup the caller makes.
	TenantID string `json:"tenant_id,omitempty"`

	// Custom holds any additional claims not mapped to struct fields.
	Custom map[string]interface{} `json:"-"`
}

// HasAnyRole reports whether the caller holds one of the given roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// ContextWithClaims returns a context carrying the claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts claims, or nil when the request was not
// authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}
