package access

import "context"

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyIdentity contextKey = "_identity_"

// Identity is the caller of a request, as resolved from its access token
type Identity struct {
	// Subject is the user id from the sub claim
	Subject string `json:"sub"`
	// Metadata is the user_metadata claim
	Metadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// ContextWithIdentity returns a new context with the identity added to it
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext retrieves the identity from the context. Returns nil for
// requests to allow-listed paths.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(contextKeyIdentity).(*Identity)
	return identity
}
