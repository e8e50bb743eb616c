// Package testhelpers provides utilities for testing ekaya-projections components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT creates an unsigned (alg: none) JWT for use when
// verification is disabled. roles end up in the "roles" claim.
func GenerateTestJWT(sub, email string, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := map[string]any{"sub": sub}
	if email != "" {
		payload["email"] = email
	}
	if len(roles) > 0 {
		payload["roles"] = roles
	}
	data, _ := json.Marshal(payload)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(data))
}

// GenerateTestJWTWithBearer returns the token with a "Bearer " prefix for the Authorization header.
func GenerateTestJWTWithBearer(sub, email string, roles ...string) string {
	return "Bearer " + GenerateTestJWT(sub, email, roles...)
}
