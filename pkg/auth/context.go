package auth

import (
	"context"
)

// GetUserLabel returns something human readable for the current user:
// the name, else the email, else the subject. Empty when unauthenticated.
func GetUserLabel(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	switch {
	case claims.Name != "":
		return claims.Name
	case claims.Email != "":
		return claims.Email
	default:
		return claims.Subject
	}
}
