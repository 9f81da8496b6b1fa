// Package cryptolib holds the small cryptographic helpers exposed to
// script code: base64 transcoding, HMAC-SHA256 and RSA message signing.
package cryptolib

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// Base64Encode encodes data using standard base64.
func Base64Encode(data string) string {
	return base64.StdEncoding.EncodeToString([]byte(data))
}

// Base64Decode decodes standard base64.
func Base64Decode(data string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("cryptolib: decoding base64: %w", err)
	}
	return string(decoded), nil
}

// Hmac computes a base64-encoded HMAC-SHA256 of message under key.
func Hmac(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignMessage signs a SHA256 digest of message with the PEM-encoded RSA
// private key and returns the signature in base64.
func SignMessage(privateKeyPem, message string) (string, error) {
	key, err := parsePrivateKey(privateKeyPem)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("cryptolib: signing message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// VerifyMessage checks a base64 signature produced by SignMessage against
// the PEM-encoded RSA public key.
func VerifyMessage(publicKeyPem, message, signature string) (bool, error) {
	key, err := parsePublicKey(publicKeyPem)
	if err != nil {
		return false, err
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("cryptolib: decoding signature: %w", err)
	}
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], raw); err != nil {
		return false, nil
	}
	return true, nil
}

func parsePrivateKey(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("cryptolib: no PEM block in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptolib: parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("cryptolib: private key is not RSA")
	}
	return key, nil
}

func parsePublicKey(data string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("cryptolib: no PEM block in public key")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptolib: parsing public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("cryptolib: public key is not RSA")
	}
	return key, nil
}
