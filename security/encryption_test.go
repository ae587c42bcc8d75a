package security

import (
	"errors"
	"testing"
)

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatalf("NewEncryptor(nil) error = %v", err)
	}
	if enc.IsEnabled() {
		t.Fatal("encryptor without key should be disabled")
	}

	out, err := enc.Encrypt("payload")
	if err != nil || out != "payload" {
		t.Errorf("Encrypt() = %q, %v; want pass-through", out, err)
	}
	out, err = enc.Decrypt("payload")
	if err != nil || out != "payload" {
		t.Errorf("Decrypt() = %q, %v; want pass-through", out, err)
	}
}

func TestEncryptor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	sealed, err := enc.Encrypt(`{"code":"abc"}`)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if sealed == `{"code":"abc"}` {
		t.Fatal("Encrypt() returned plaintext")
	}

	again, _ := enc.Encrypt(`{"code":"abc"}`)
	if again == sealed {
		t.Error("two encryptions of the same payload should differ (random nonce)")
	}

	plain, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != `{"code":"abc"}` {
		t.Errorf("Decrypt() = %q", plain)
	}
}

func TestEncryptor_WrongKey(t *testing.T) {
	k1, _ := GenerateKey()
	k2, _ := GenerateKey()
	e1, _ := NewEncryptor(k1)
	e2, _ := NewEncryptor(k2)

	sealed, err := e1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := e2.Decrypt(sealed); err == nil {
		t.Error("Decrypt() with another key should fail")
	}
}

func TestEncryptor_ShortCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	if _, err := enc.Decrypt("AAAA"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Decrypt() error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestNewEncryptor_InvalidKeyLength(t *testing.T) {
	if _, err := NewEncryptor(make([]byte, 16)); err == nil {
		t.Error("NewEncryptor() with 16 byte key should fail")
	}
}

func TestKeyBase64(t *testing.T) {
	key, _ := GenerateKey()
	decoded, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if string(decoded) != string(key) {
		t.Error("key did not survive base64 round trip")
	}

	if _, err := KeyFromBase64("c2hvcnQ="); err == nil {
		t.Error("KeyFromBase64() should reject short keys")
	}
	if _, err := KeyFromBase64("not base64!"); err == nil {
		t.Error("KeyFromBase64() should reject invalid base64")
	}
}
