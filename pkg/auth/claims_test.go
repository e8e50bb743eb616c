package auth

import (
	"context"
	"testing"
)

func TestGetClaims_Success(t *testing.T) {
	claims := &Claims{Email: "admin@example.com"}
	claims.Subject = "user-123"

	ctx := context.WithValue(context.Background(), ClaimsKey, claims)

	got, ok := GetClaims(ctx)
	if !ok {
		t.Fatal("expected claims to be found")
	}
	if got.Subject != "user-123" {
		t.Errorf("expected subject 'user-123', got %q", got.Subject)
	}
	if got.Email != "admin@example.com" {
		t.Errorf("expected email 'admin@example.com', got %q", got.Email)
	}
}

func TestGetClaims_NotFound(t *testing.T) {
	_, ok := GetClaims(context.Background())
	if ok {
		t.Error("expected claims to not be found")
	}
}

func TestGetClaims_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClaimsKey, "not-a-claims-struct")

	_, ok := GetClaims(ctx)
	if ok {
		t.Error("expected claims to not be found for wrong type")
	}
}

func TestWithClaims(t *testing.T) {
	claims := &Claims{}
	ctx := WithClaims(context.Background(), claims, "raw-token")

	got, ok := GetClaims(ctx)
	if !ok || got != claims {
		t.Error("expected claims to round-trip through context")
	}
	token, ok := GetToken(ctx)
	if !ok || token != "raw-token" {
		t.Errorf("expected token 'raw-token', got %q", token)
	}
}

func TestClaims_HasRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  []string
		match bool
	}{
		{"single match", []string{"admin"}, []string{"admin"}, true},
		{"second wanted role matches", []string{"editor"}, []string{"admin", "editor"}, true},
		{"no match", []string{"user"}, []string{"admin"}, false},
		{"no roles", nil, []string{"admin"}, false},
		{"nothing wanted", []string{"admin"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Claims{Roles: tt.roles}
			if got := c.HasRole(tt.want...); got != tt.match {
				t.Errorf("HasRole(%v) with roles %v = %v, want %v", tt.want, tt.roles, got, tt.match)
			}
		})
	}
}

func TestGetUserLabel(t *testing.T) {
	base := func() *Claims {
		c := &Claims{}
		c.Subject = "sub-1"
		return c
	}

	if got := GetUserLabel(context.Background()); got != "" {
		t.Errorf("expected empty label without claims, got %q", got)
	}

	c := base()
	if got := GetUserLabel(WithClaims(context.Background(), c, "")); got != "sub-1" {
		t.Errorf("expected subject fallback, got %q", got)
	}

	c.Email = "a@example.com"
	if got := GetUserLabel(WithClaims(context.Background(), c, "")); got != "a@example.com" {
		t.Errorf("expected email, got %q", got)
	}

	c.Name = "Ada"
	if got := GetUserLabel(WithClaims(context.Background(), c, "")); got != "Ada" {
		t.Errorf("expected name, got %q", got)
	}
}
