//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"math/big"
	"testing"
)

// TestEd25519Vector1 reproduces RFC 8032 §7.1 test vector #1, the
// literal scenario the testable-properties suite seeds with (spec §8
// scenario 1): empty message, known secret/public key pair, known
// signature.
func TestEd25519Vector1(t *testing.T) {
	secretHex := "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	sigHex := "e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e065224901555fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b"

	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)

	wantSig, err := hex.DecodeString(sigHex)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	sig := ed25519.Sign(priv, nil)
	if !bytes.Equal(sig, wantSig) {
		t.Fatalf("signature mismatch: got %x, want %x", sig, wantSig)
	}
	if !ed25519.Verify(pub, nil, sig) {
		t.Fatal("verification of freshly produced signature failed")
	}
	if !ed25519.Verify(pub, nil, wantSig) {
		t.Fatal("verification of RFC 8032 vector signature failed")
	}
}

// TestEd25519Malleability reproduces spec §8 scenario 2: adding the
// group order to the upper half (S) of a valid signature must cause
// verification to fail, even though byte-for-byte it differs from the
// original only in that 32-byte half.
func TestEd25519Malleability(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("ed25519 malleability check")
	sig := ed25519.Sign(priv, msg)
	if !ed25519.Verify(pub, msg, sig) {
		t.Fatal("valid signature failed to verify")
	}

	groupOrder, ok := new(big.Int).SetString("10000000000000000000000000000000" +
		"14def9dea2f79cd65812631a5cf5d3ed", 16)
	if !ok {
		t.Fatal("failed to parse group order constant")
	}

	s := new(big.Int).SetBytes(reverseBytes(sig[32:64]))
	s.Add(s, groupOrder)
	sBytes := s.Bytes()
	var upper [32]byte
	// S < L < 2^253, so S + L stays below 2^254 and still fits in 32
	// bytes; leftPad restores any leading zero bytes big.Int dropped.
	copy(upper[:], leftPad(sBytes, 32))

	tampered := append([]byte(nil), sig...)
	copy(tampered[32:64], reverseBytes(upper[:]))

	if bytes.Equal(tampered, sig) {
		t.Fatal("tampering did not change the signature")
	}
	if ed25519.Verify(pub, msg, tampered) {
		t.Fatal("malleable signature unexpectedly verified")
	}
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[len(b)-n:]
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// TestCertificateVerifyEd25519RoundTrip exercises this engine's own
// CertificateVerify construction (spec §4.5) with an Ed25519 signer,
// end to end through sign/verify rather than the raw ed25519 package.
func TestCertificateVerifyEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	transcript := []byte("fake transcript hash 0123456789ab")
	content := certificateVerifyContext(serverCertificateVerifyContext, transcript)

	sig, err := signCertificateVerify(priv, SignatureSchemeEd25519, content)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := verifyCertificateVerify(pub, SignatureSchemeEd25519, content, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tampered := append([]byte(nil), content...)
	tampered[0] ^= 0x01
	if err := verifyCertificateVerify(pub, SignatureSchemeEd25519, tampered, sig); err == nil {
		t.Fatal("verification of tampered content unexpectedly succeeded")
	}
}
