package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestManagerRoundTripEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "linton-auth",
		Audience:      "linton-api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := m.CreateAccess(Subject{UserID: "u1", VendorID: "v1", PortalType: "admin", SessionID: "s1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UserID != "u1" || claims.VendorID != "v1" || claims.PortalType != "admin" || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	exp, err := ExpiresAt(tok)
	if err != nil {
		t.Fatalf("expires at: %v", err)
	}
	if !exp.Equal(claims.ExpiresAt.Time) {
		t.Fatalf("unverified exp %v differs from verified %v", exp, claims.ExpiresAt.Time)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UserID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Minute))}}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected zero TTL to fail")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected missing hs256 secret to fail")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected missing ed25519 key to fail")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected unsupported method to fail")
	}
}

func TestParseAccessResolvesKeyByKID(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)
	verify := map[string][]byte{"old": oldPub, "new": newPub}

	signer := func(kid string, priv ed25519.PrivateKey) *Manager {
		m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, KeyID: kid, VerifyKeys: verify})
		if err != nil {
			t.Fatalf("new manager %s: %v", kid, err)
		}
		return m
	}
	current := signer("new", newPriv)

	tok, err := signer("old", oldPriv).CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := current.ParseAccess(tok); err != nil {
		t.Fatalf("token signed with a rotated-out key must still verify: %v", err)
	}

	bare, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(newPriv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := current.ParseAccess(bare); !errors.Is(err, ErrMissingKID) {
		t.Fatalf("expected ErrMissingKID, got %v", err)
	}

	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, KeyID: "gone", VerifyKeys: verify}); err == nil {
		t.Fatal("expected error for a KeyID outside VerifyKeys")
	}
}
