package security

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var testKeyProvider = func() *EphemeralKeyProvider {
	provider, err := NewEphemeralKeyProvider(2048)
	if err != nil {
		panic(err)
	}
	return provider
}()

func TestJWTManagerIssueAndParse(t *testing.T) {
	mgr := NewJWTManager(testKeyProvider, "deadline-jail", time.Hour)

	token, expiresAt, err := mgr.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected signed token")
	}
	if remaining := time.Until(expiresAt); remaining < 59*time.Minute || remaining > time.Hour {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	claims, err := mgr.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Subject != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "deadline-jail" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestJWTManagerRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewJWTManager(testKeyProvider, "deadline-jail", time.Hour).WithClock(func() time.Time { return issuedAt })

	token, _, err := issuer.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	verifier := NewJWTManager(testKeyProvider, "deadline-jail", time.Hour).
		WithClock(func() time.Time { return issuedAt.Add(2 * time.Hour) })
	if _, err := verifier.ParseAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTManagerRejectsForeignSignature(t *testing.T) {
	other, err := NewEphemeralKeyProvider(2048)
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}
	token, _, err := NewJWTManager(other, "deadline-jail", time.Hour).IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	mgr := NewJWTManager(testKeyProvider, "deadline-jail", time.Hour)
	if _, err := mgr.ParseAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTManagerRejectsWrongIssuerAndGarbage(t *testing.T) {
	token, _, err := NewJWTManager(testKeyProvider, "someone-else", time.Hour).IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	mgr := NewJWTManager(testKeyProvider, "deadline-jail", time.Hour)
	if _, err := mgr.ParseAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for issuer mismatch, got %v", err)
	}
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := mgr.ParseAccessToken(raw); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", raw, err)
		}
	}
}

func TestJWTManagerJWKS(t *testing.T) {
	mgr := NewJWTManager(testKeyProvider, "deadline-jail", time.Hour)

	payload, err := mgr.JWKS()
	if err != nil {
		t.Fatalf("JWKS returned error: %v", err)
	}

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("unmarshal jwks: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(doc.Keys))
	}
	if doc.Keys[0]["kid"] != ephemeralKeyID || doc.Keys[0]["alg"] != "RS256" {
		t.Fatalf("unexpected jwk: %+v", doc.Keys[0])
	}
}

func TestDirKeyProviderLoadsWrittenKey(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteKeyPair(dir, "primary", 2048)
	if err != nil {
		t.Fatalf("WriteKeyPair returned error: %v", err)
	}
	if filepath.Base(path) != "primary.pem" {
		t.Fatalf("unexpected key path %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected key permissions %v", info.Mode().Perm())
	}

	provider, err := NewDirKeyProvider(dir)
	if err != nil {
		t.Fatalf("NewDirKeyProvider returned error: %v", err)
	}
	kid, key, err := provider.SigningKey()
	if err != nil || key == nil {
		t.Fatalf("SigningKey returned %v, %v", key, err)
	}
	if kid != "primary" {
		t.Fatalf("expected kid primary, got %s", kid)
	}

	mgr := NewJWTManager(provider, "deadline-jail", time.Hour)
	token, _, err := mgr.IssueAccessToken("user-2")
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	if _, err := mgr.ParseAccessToken(token); err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
}

func TestNewKeyProviderFallsBackOutsideProduction(t *testing.T) {
	provider, err := NewKeyProvider("development", filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("NewKeyProvider returned error: %v", err)
	}
	if _, ok := provider.(*EphemeralKeyProvider); !ok {
		t.Fatalf("expected ephemeral provider, got %T", provider)
	}

	if _, err := NewKeyProvider("production", ""); err == nil {
		t.Fatal("expected production without key directory to fail")
	}
}
