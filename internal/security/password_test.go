package security_test

import (
	"testing"

	"github.com/ErlanBelekov/fallah-auth/internal/security"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_Hash(t *testing.T) {
	h := security.NewHasher(bcrypt.MinCost)

	hash, err := h.Hash([]byte("s3cret"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash equals plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("compare matching password: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")); err == nil {
		t.Error("compare wrong password: want error")
	}
}

func TestNewHasher_ClampsLowCost(t *testing.T) {
	cases := map[int]int{
		-1: bcrypt.DefaultCost,
		0:  bcrypt.DefaultCost,
		1:  bcrypt.MinCost,
	}
	for in, want := range cases {
		hash, err := security.NewHasher(in).Hash([]byte("pw"))
		if err != nil {
			t.Fatalf("cost %d: hash: %v", in, err)
		}
		got, err := bcrypt.Cost([]byte(hash))
		if err != nil {
			t.Fatalf("cost %d: read cost: %v", in, err)
		}
		if got != want {
			t.Errorf("NewHasher(%d) hashed with cost %d, want %d", in, got, want)
		}
	}
}

func TestRandomPassword(t *testing.T) {
	a, err := security.RandomPassword(16)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	b, _ := security.RandomPassword(16)
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if a == b {
		t.Error("two random passwords are equal")
	}
}
