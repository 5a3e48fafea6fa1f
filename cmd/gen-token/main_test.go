package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"choreshore-bridge/api"
)

func TestSignTokenAcceptedBySharedSecretAuth(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := signToken(secret, "u1", "bridge", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth, err := api.NewSharedSecretAuth(secret, "bridge", "")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	sub, err := auth.UserIDFromAuthHeader("Bearer " + tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sub != "u1" {
		t.Fatalf("unexpected subject: %q", sub)
	}
}

func TestSignTokenValidation(t *testing.T) {
	if _, err := signToken(nil, "u1", "", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := signToken([]byte("s"), "", "", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestUserID(t *testing.T) {
	if got := userID([]string{"ada"}, "member", 1, 1, 0); got != "ada" {
		t.Fatalf("explicit id ignored: %q", got)
	}
	if got := userID(nil, "member", 1, 1, 0); got != "member" {
		t.Fatalf("unexpected single id: %q", got)
	}
	if got := userID(nil, "member", 5, 3, 2); got != "member-7" {
		t.Fatalf("unexpected numbered id: %q", got)
	}
}

func TestWriteTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tokens.json")
	if err := writeTokens(path, []string{"a", "b"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []string
	if err := sonic.Unmarshal(data, &got); err != nil || len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected file contents %s: %v", data, err)
	}
}
