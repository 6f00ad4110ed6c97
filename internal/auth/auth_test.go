package auth

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func setTestSecret(t *testing.T) {
	t.Helper()
	t.Setenv(secretEnvVariable, "unit-test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateToken("employer-1", []string{"Employer", "employer", ""}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "employer-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !slices.Contains(claims.Roles, RoleEmployer) {
		t.Fatalf("employer role missing: %v", claims.Roles)
	}
	if len(claims.Roles) != 1 {
		t.Fatalf("roles were not deduplicated: %v", claims.Roles)
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	setTestSecret(t)

	if _, err := GenerateToken("", []string{RoleEmployer}, time.Minute); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := GenerateToken("employer-1", nil, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestParseRejectsTampered(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateToken("employer-1", []string{RoleEmployer}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := ParseAndValidate(tampered); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	setTestSecret(t)

	now := time.Now().UTC()
	claims := Claims{
		Roles: []string{RoleEmployer},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "employer-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			ID:        "expired",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAndValidate(signed); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseRejectsUnsignedMethod(t *testing.T) {
	setTestSecret(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "employer-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAndValidate(signed); err == nil {
		t.Fatal("unsigned token accepted")
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("employer-1", []string{RoleEmployer}, time.Minute); err == nil {
		t.Fatal("expected error when secret is not configured")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithUser(ctx, "employer-7", []string{"Employer", "Employer", "auditor"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "employer-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
	if !HasRole(ctx, "auditor") || !IsEmployer(ctx) {
		t.Fatalf("expected roles missing: %v", roles)
	}
	if HasRole(ctx, "operator") {
		t.Fatal("unexpected role found")
	}
	if IsEmployer(context.Background()) {
		t.Fatal("empty context must not carry the employer role")
	}
}
