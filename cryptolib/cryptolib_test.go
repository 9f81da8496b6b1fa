package cryptolib

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func testKeyPair(t *testing.T) (privatePem, publicPem string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key failed: %v", err)
	}
	privatePem = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	publicPem = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}))
	return privatePem, publicPem
}

func TestBase64RoundTrip(t *testing.T) {
	encoded := Base64Encode("Las Venturas")
	if encoded != "TGFzIFZlbnR1cmFz" {
		t.Errorf("Base64Encode = %q, want %q", encoded, "TGFzIFZlbnR1cmFz")
	}

	decoded, err := Base64Decode(encoded)
	if err != nil {
		t.Fatalf("Base64Decode failed: %v", err)
	}
	if decoded != "Las Venturas" {
		t.Errorf("round trip = %q, want %q", decoded, "Las Venturas")
	}

	if _, err := Base64Decode("not!base64!"); err == nil {
		t.Error("decoding invalid base64 succeeded")
	}
}

func TestHmacKnownVector(t *testing.T) {
	// RFC 4231 test case 2, base64-encoded.
	got := Hmac("Jefe", "what do ya want for nothing?")
	want := "W9zBRr9gdU5qBCQmCJV1x1oAPwidJzmDnexYuWTsOEM="
	if got != want {
		t.Errorf("Hmac = %q, want %q", got, want)
	}
}

func TestSignAndVerify(t *testing.T) {
	privatePem, publicPem := testKeyPair(t)

	signature, err := SignMessage(privatePem, "hello")
	if err != nil {
		t.Fatalf("SignMessage failed: %v", err)
	}

	valid, err := VerifyMessage(publicPem, "hello", signature)
	if err != nil {
		t.Fatalf("VerifyMessage failed: %v", err)
	}
	if !valid {
		t.Error("valid signature rejected")
	}

	tampered, err := VerifyMessage(publicPem, "hello!", signature)
	if err != nil {
		t.Fatalf("VerifyMessage of tampered message failed: %v", err)
	}
	if tampered {
		t.Error("tampered message accepted")
	}
}

func TestSignRejectsGarbageKey(t *testing.T) {
	if _, err := SignMessage("not a key", "hello"); err == nil {
		t.Error("signing with a garbage key succeeded")
	}
	if _, err := VerifyMessage("not a key", "hello", "c2ln"); err == nil {
		t.Error("verifying with a garbage key succeeded")
	}
}
