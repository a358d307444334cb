package auth

import (
	"context"
	"fmt"
)

// GetUserIDFromContext extracts the user id from the claims in ctx.
// Returns 0 and false when the request is not authenticated.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, false
	}
	return id, true
}

// RequireUserIDFromContext is GetUserIDFromContext for handlers that cannot
// proceed without a user.
func RequireUserIDFromContext(ctx context.Context) (int64, error) {
	id, ok := GetUserIDFromContext(ctx)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return id, nil
}
