package auth

import "context"

// principalKey is a private type for the principal context key.
type principalKey struct{}

// WithPrincipal stores the verified user id in the context.
func WithPrincipal(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, principalKey{}, userID)
}

// PrincipalFromContext retrieves the verified user id. The second return
// is false on anonymous requests and on requests that carried a known
// username with a wrong password.
func PrincipalFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(principalKey{}).(int64)
	return id, ok
}
