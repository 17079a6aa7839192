package secretbox

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	c, err := NewFromBytes(raw)
	if err != nil {
		t.Fatalf("NewFromBytes err: %v", err)
	}
	return c
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := testCipher(t)

	for _, msg := range []string{
		"ya29.a0AfH6SMBx",
		"1//0gLurVdq-refresh",
		"unicode ✓ façade 日本語",
		strings.Repeat("x", 4096),
	} {
		ct, err := c.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt err: %v", err)
		}
		if ct == msg {
			t.Fatalf("ciphertext equals plaintext")
		}
		pt, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt err: %v", err)
		}
		if pt != msg {
			t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
		}
	}
}

func TestEmptySentinel_SkipsCipher(t *testing.T) {
	c := testCipher(t)

	ct, err := c.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	if ct != "" {
		t.Fatalf("empty plaintext must yield empty sentinel, got %q", ct)
	}

	pt, err := c.Decrypt("")
	if err != nil {
		t.Fatalf("Decrypt of sentinel must not error: %v", err)
	}
	if pt != "" {
		t.Fatalf("sentinel must decrypt to no value, got %q", pt)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	c := testCipher(t)

	ct, err := c.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01 // flip one bit
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := c.Decrypt(corrupted); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	c := testCipher(t)

	other := make([]byte, 32)
	for i := range other {
		other[i] = byte(255 - i)
	}
	c2, err := NewFromBytes(other)
	if err != nil {
		t.Fatal(err)
	}

	ct, err := c.Encrypt("rotated away")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.Decrypt(ct); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt with wrong key, got %v", err)
	}
}

func TestDecrypt_MalformedInput(t *testing.T) {
	c := testCipher(t)

	for _, in := range []string{
		"not-ciphertext",
		"a|b|c",
		"%%%|%%%",
		base64.StdEncoding.EncodeToString([]byte("short")) + "|" + base64.StdEncoding.EncodeToString([]byte("ct")),
	} {
		if _, err := c.Decrypt(in); !errors.Is(err, ErrDecrypt) {
			t.Fatalf("input %q: expected ErrDecrypt, got %v", in, err)
		}
	}
}

func TestNew_RejectsBadKeys(t *testing.T) {
	if _, err := New("tooshort"); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := New("!!not base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	if _, err := NewFromBytes(make([]byte, 16)); err == nil {
		t.Fatalf("expected error for 16-byte key")
	}
}

func TestGenerateKey_UsableAndUnique(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Fatalf("two generated keys must differ")
	}
	if _, err := New(k1); err != nil {
		t.Fatalf("generated key must build a cipher: %v", err)
	}
}
