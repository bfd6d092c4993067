package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestFileStorageNonce(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tmi_token")
	s, err := NewFileAt(p, [KeySize]byte{1: 1})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	tok := &oauth2.Token{AccessToken: "nijika", RefreshToken: "kita"}
	var sealed [][]byte
	for range 2 {
		if err := s.Store(ctx, tok); err != nil {
			t.Fatal(err)
		}
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Contains(b, []byte("nijika")) {
			t.Errorf("token file contains plaintext: %q", b)
		}
		sealed = append(sealed, b)
	}
	if bytes.Equal(sealed[0], sealed[1]) {
		t.Error("saving the same token twice produced identical files")
	}
	fi, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("token file is readable by others: %v", perm)
	}
}

func TestFileStorageNoDir(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing", "tmi_token")
	if _, err := NewFileAt(p, [KeySize]byte{}); err == nil {
		t.Error("opened token file in a missing directory")
	}
}

func TestFileStorageCorrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tmi_token")
	if err := os.WriteFile(p, []byte("bocchi"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileAt(p, [KeySize]byte{})
	if err != nil {
		t.Fatal(err)
	}
	if tok, err := s.Load(context.Background()); err == nil {
		t.Errorf("loaded corrupt token: %#v", tok)
	}
}

func TestFileStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("don't use filesystem in short testing")
	}
	p := filepath.Join(t.TempDir(), "test")
	key := [KeySize]byte{}
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileAt(p, key)
	if err != nil {
		t.Fatalf("couldn't open token file: %v", err)
	}
	ctx := context.Background()
	r, err := s.Load(ctx)
	if err != nil {
		t.Errorf("initial load error: %v", err)
	}
	if r != nil {
		t.Errorf("unexpected initial token: %#v", r)
	}
	tok := &oauth2.Token{AccessToken: "bocchi", RefreshToken: "ryou", TokenType: "bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	if err := s.Store(ctx, tok); err != nil {
		t.Errorf("error saving bocchi: %v", err)
	}
	r, err = s.Load(ctx)
	if err != nil {
		t.Errorf("couldn't load bocchi: %v", err)
	}
	if r == nil || r.AccessToken != tok.AccessToken || r.RefreshToken != tok.RefreshToken || !r.Expiry.Equal(tok.Expiry) {
		t.Errorf("didn't load bocchi, instead %#v", r)
	}
	// A shorter token must replace a longer one completely.
	short := &oauth2.Token{AccessToken: "k", RefreshToken: "n"}
	if err := s.Store(ctx, short); err != nil {
		t.Errorf("error saving short token: %v", err)
	}
	r, err = s.Load(ctx)
	if err != nil {
		t.Errorf("couldn't load short token: %v", err)
	}
	if r == nil || r.AccessToken != "k" || r.RefreshToken != "n" {
		t.Errorf("didn't load short token, instead %#v", r)
	}
	// A different key must not decrypt the token.
	other := key
	other[0]++
	s2, err := NewFileAt(p, other)
	if err != nil {
		t.Fatalf("couldn't reopen token file: %v", err)
	}
	if r, err := s2.Load(ctx); err == nil {
		t.Errorf("loaded with wrong key: %#v", r)
	}
	if err := s.Store(ctx, nil); err != nil {
		t.Errorf("couldn't clear: %v", err)
	}
	if err := s.Store(ctx, nil); err != nil {
		t.Errorf("couldn't clear twice: %v", err)
	}
	r, err = s.Load(ctx)
	if err != nil {
		t.Errorf("couldn't load after clear: %v", err)
	}
	if r != nil {
		t.Errorf("didn't clear, instead %#v", r)
	}
}
