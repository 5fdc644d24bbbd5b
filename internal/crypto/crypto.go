/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end

// Package crypto provides the ECDSA P-256 primitives schemapin builds on:
// keypair generation, PEM encode/decode, raw-byte sign/verify, and key
// fingerprinting. It never hashes on the caller's behalf — whatever bytes
// are handed to Sign are exactly what gets signed.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

// ErrInvalidKeyFormat is returned when a PEM block cannot be decoded or does
// not contain a P-256 key of the expected kind, or when a signature is not
// valid base64.
var ErrInvalidKeyFormat = fmt.Errorf("invalid key format")

// GenerateKeyPair creates a new ECDSA P-256 keypair and returns it as a pair
// of LF-terminated PEM blocks: PKCS#8 for the private key, SubjectPublicKeyInfo
// for the public key.
func GenerateKeyPair() (privatePEM string, publicPEM string, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	return privatePEM, publicPEM, nil
}

// ParsePrivateKey decodes a PKCS#8 PEM block into an ECDSA private key.
func ParsePrivateKey(privatePEM string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("%w: failed to decode PEM block containing private key", ErrInvalidKeyFormat)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrInvalidKeyFormat, err)
	}

	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not of type *ecdsa.PrivateKey", ErrInvalidKeyFormat)
	}

	return ecKey, nil
}

// ParsePublicKey decodes a SubjectPublicKeyInfo PEM block into an ECDSA
// public key.
func ParsePublicKey(publicPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%w: failed to decode PEM block containing public key", ErrInvalidKeyFormat)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse public key: %v", ErrInvalidKeyFormat, err)
	}

	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not of type *ecdsa.PublicKey", ErrInvalidKeyFormat)
	}

	return ecKey, nil
}

// Sign signs the given bytes with the ECDSA private key decoded from
// privatePEM and returns the DER-encoded signature, base64-encoded with the
// standard alphabet. No hashing is performed here; the caller supplies
// exactly the bytes that get signed.
func Sign(privatePEM string, data []byte) (string, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return "", err
	}

	der, err := ecdsa.SignASN1(rand.Reader, key, data)
	if err != nil {
		return "", fmt.Errorf("failed to sign data: %w", err)
	}

	return base64.StdEncoding.EncodeToString(der), nil
}

// Verify reports whether signatureB64 is a valid DER ECDSA signature over
// data under the public key decoded from publicPEM. A well-formed but
// non-verifying signature yields (false, nil); a public key that cannot be
// parsed or a signature that is not valid base64 yields an error wrapping
// ErrInvalidKeyFormat.
func Verify(publicPEM string, data []byte, signatureB64 string) (bool, error) {
	key, err := ParsePublicKey(publicPEM)
	if err != nil {
		return false, err
	}

	der, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("%w: failed to decode base64 signature: %v", ErrInvalidKeyFormat, err)
	}

	return ecdsa.VerifyASN1(key, data, der), nil
}

// Fingerprint computes the canonical key identifier for publicPEM:
// "sha256:" followed by the lowercase hex SHA-256 digest of the DER
// SubjectPublicKeyInfo encoding.
func Fingerprint(publicPEM string) (string, error) {
	key, err := ParsePublicKey(publicPEM)
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	sum := sha256.Sum256(der)

	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
