package auth

import "testing"

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("op-1", []string{"admin"}, "test-secret")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := ParseAccessToken(token, "test-secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "op-1" {
		t.Fatalf("expected subject op-1, got %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("expected roles [admin], got %v", claims.Roles)
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("op-1", nil, "secret-a")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseAccessToken(token, "secret-b"); err == nil {
		t.Fatal("expected parse to fail with the wrong secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !CheckPassword("hunter2", hash) {
		t.Fatal("expected correct password to verify")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestOperatorIsAdmin(t *testing.T) {
	if (&Operator{Roles: []string{"viewer"}}).IsAdmin() {
		t.Fatal("viewer must not be admin")
	}
	if !(&Operator{Roles: []string{"viewer", "admin"}}).IsAdmin() {
		t.Fatal("expected admin role to be detected")
	}
}

func TestExtractRoles(t *testing.T) {
	if got := extractRoles(`["admin","viewer"]`); len(got) != 2 || got[0] != "admin" {
		t.Fatalf("expected roles from JSON text, got %v", got)
	}
	if got := extractRoles([]any{"admin"}); len(got) != 1 || got[0] != "admin" {
		t.Fatalf("expected roles from decoded array, got %v", got)
	}
	if got := extractRoles(42); got != nil {
		t.Fatalf("expected nil for unsupported type, got %v", got)
	}
}
