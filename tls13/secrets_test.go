//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"crypto"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"testing"
)

// TestExtractZeroSaltZeroIKM reproduces the widely published RFC 8448
// "Simple 1-RTT Handshake" early_secret constant: HKDF-Extract with an
// all-zero salt and an all-zero IKM (the PSK-less ClientHello case)
// under SHA-256 always yields this value.
func TestExtractZeroSaltZeroIKM(t *testing.T) {
	s := NewSecrets(crypto.SHA256, false)
	want, err := hex.DecodeString("33ad0a1c607ec03b09e6cd9893680ce210adf300aa1f2660e1b22e10f170f92a")
	if err != nil {
		t.Fatalf("decode vector: %v", err)
	}
	got := s.extract(s.zeros, s.zeros)
	if !bytes.Equal(got, want) {
		t.Fatalf("extract(0,0) = %x, want %x", got, want)
	}
}

// refHKDFExtract, refHKDFExpand, refExpandLabel, and refDeriveSecret
// reimplement RFC 8446 §7.1/RFC 5869 directly against crypto/hmac and
// crypto/sha256 — deliberately not golang.org/x/crypto/hkdf and not
// Secrets' own code — so TestKeyScheduleChainMatchesIndependentImplementation
// below can cross-check the production key schedule against a second,
// independently written implementation rather than just re-calling
// itself.
func refHKDFExtract(salt, ikm []byte) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

func refHKDFExpand(prk []byte, info []byte, length int) []byte {
	out := make([]byte, 0, length)
	var prev []byte
	for counter := byte(1); len(out) < length; counter++ {
		mac := hmac.New(sha256.New, prk)
		mac.Write(prev)
		mac.Write(info)
		mac.Write([]byte{counter})
		prev = mac.Sum(nil)
		out = append(out, prev...)
	}
	return out[:length]
}

func refExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	fullLabel := "tls13 " + label
	info := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(length))
	info = append(info, lenBuf[:]...)
	info = append(info, byte(len(fullLabel)))
	info = append(info, []byte(fullLabel)...)
	info = append(info, byte(len(context)))
	info = append(info, context...)
	return refHKDFExpand(secret, info, length)
}

func refDeriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	ctx := transcriptHash
	if ctx == nil {
		empty := sha256.Sum256(nil)
		ctx = empty[:]
	}
	return refExpandLabel(secret, label, ctx, sha256.Size)
}

// TestKeyScheduleChainMatchesIndependentImplementation derives the
// full RFC 8446 §7.1 key-schedule chain — early secret, handshake
// traffic secrets, application traffic secrets, and both Finished
// verify_data values — through Secrets, and separately through
// refHKDFExtract/refExpandLabel/refDeriveSecret above, and requires
// the two to agree byte-for-byte at every stage. This goes beyond
// TestHKDFExpandLabelDeterministic's determinism-only coverage: a wrong
// constant, a transposed HKDF-Extract argument, or a malformed
// HkdfLabel encoding in secrets.go would make production disagree with
// this from-scratch reimplementation even though both would still be
// internally deterministic. The early secret itself is additionally
// pinned to RFC 8448 "Simple 1-RTT Handshake"'s published
// PSK-less value, the same externally sourced vector
// TestExtractZeroSaltZeroIKM checks.
func TestKeyScheduleChainMatchesIndependentImplementation(t *testing.T) {
	wantEarlySecret, err := hex.DecodeString("33ad0a1c607ec03b09e6cd9893680ce210adf300aa1f2660e1b22e10f170f92a")
	if err != nil {
		t.Fatalf("decode vector: %v", err)
	}

	clientHelloTranscript := bytes.Repeat([]byte{0x11}, sha256.Size)
	serverHelloTranscript := bytes.Repeat([]byte{0x22}, sha256.Size)
	serverFinishedTranscript := bytes.Repeat([]byte{0x33}, sha256.Size)
	clientFinishedTranscript := bytes.Repeat([]byte{0x44}, sha256.Size)
	ecdheShared := bytes.Repeat([]byte{0x55}, sha256.Size)

	refEarly := refHKDFExtract(make([]byte, sha256.Size), make([]byte, sha256.Size))
	if !bytes.Equal(refEarly, wantEarlySecret) {
		t.Fatalf("independent early secret = %x, want RFC 8448 %x", refEarly, wantEarlySecret)
	}
	refDerivedEarly := refDeriveSecret(refEarly, "derived", nil)
	refHandshake := refHKDFExtract(refDerivedEarly, ecdheShared)
	refClientHSTraffic := refDeriveSecret(refHandshake, "c hs traffic", serverHelloTranscript)
	refServerHSTraffic := refDeriveSecret(refHandshake, "s hs traffic", serverHelloTranscript)
	refDerivedHandshake := refDeriveSecret(refHandshake, "derived", nil)
	refMaster := refHKDFExtract(refDerivedHandshake, make([]byte, sha256.Size))
	refClientAppTraffic := refDeriveSecret(refMaster, "c ap traffic", serverFinishedTranscript)
	refServerAppTraffic := refDeriveSecret(refMaster, "s ap traffic", serverFinishedTranscript)
	refFinishedKey := func(secret []byte) []byte { return refExpandLabel(secret, "finished", []byte{}, sha256.Size) }
	refVerifyData := func(secret, transcript []byte) []byte {
		mac := hmac.New(sha256.New, refFinishedKey(secret))
		mac.Write(transcript)
		return mac.Sum(nil)
	}
	refServerVerifyData := refVerifyData(refServerHSTraffic, serverFinishedTranscript)
	refClientVerifyData := refVerifyData(refClientHSTraffic, clientFinishedTranscript)

	s := NewSecrets(crypto.SHA256, false)
	if err := s.DeriveEarly(nil, clientHelloTranscript); err != nil {
		t.Fatalf("derive_early: %v", err)
	}
	if !bytes.Equal(s.extractedEarly, wantEarlySecret) {
		t.Fatalf("early secret = %x, want RFC 8448 %x", s.extractedEarly, wantEarlySecret)
	}
	if err := s.DeriveHandshake(ecdheShared, serverHelloTranscript); err != nil {
		t.Fatalf("derive_handshake: %v", err)
	}
	if !bytes.Equal(s.ClientHandshakeTraffic(), refClientHSTraffic) {
		t.Fatalf("client_handshake_traffic_secret = %x, want %x", s.ClientHandshakeTraffic(), refClientHSTraffic)
	}
	if !bytes.Equal(s.ServerHandshakeTraffic(), refServerHSTraffic) {
		t.Fatalf("server_handshake_traffic_secret = %x, want %x", s.ServerHandshakeTraffic(), refServerHSTraffic)
	}
	if err := s.DeriveApplication(serverFinishedTranscript); err != nil {
		t.Fatalf("derive_application: %v", err)
	}
	if !bytes.Equal(s.ClientApplicationTraffic(), refClientAppTraffic) {
		t.Fatalf("client_application_traffic_secret = %x, want %x", s.ClientApplicationTraffic(), refClientAppTraffic)
	}
	if !bytes.Equal(s.ServerApplicationTraffic(), refServerAppTraffic) {
		t.Fatalf("server_application_traffic_secret = %x, want %x", s.ServerApplicationTraffic(), refServerAppTraffic)
	}

	gotServerVerifyData := s.VerifyData(s.ServerHandshakeTraffic(), serverFinishedTranscript)
	if !bytes.Equal(gotServerVerifyData, refServerVerifyData) {
		t.Fatalf("server finished verify_data = %x, want %x", gotServerVerifyData, refServerVerifyData)
	}
	gotClientVerifyData := s.VerifyData(s.ClientHandshakeTraffic(), clientFinishedTranscript)
	if !bytes.Equal(gotClientVerifyData, refClientVerifyData) {
		t.Fatalf("client finished verify_data = %x, want %x", gotClientVerifyData, refClientVerifyData)
	}
}

// TestDeriveOrderInvariant checks spec §3 invariant (2): a traffic
// secret is derived only after the predecessor stage's "derived"
// secret is populated, enforced as one-shot, ordered stage transitions.
func TestDeriveOrderInvariant(t *testing.T) {
	s := NewSecrets(crypto.SHA256, false)

	if err := s.DeriveHandshake(make([]byte, 32), nil); err == nil {
		t.Fatal("derive_handshake before derive_early unexpectedly succeeded")
	}
	if err := s.DeriveApplication(nil); err == nil {
		t.Fatal("derive_application before derive_handshake unexpectedly succeeded")
	}

	if err := s.DeriveEarly(nil, nil); err != nil {
		t.Fatalf("derive_early: %v", err)
	}
	if err := s.DeriveEarly(nil, nil); err == nil {
		t.Fatal("derive_early called twice unexpectedly succeeded")
	}

	if err := s.DeriveHandshake(make([]byte, 32), nil); err != nil {
		t.Fatalf("derive_handshake: %v", err)
	}
	if err := s.DeriveHandshake(make([]byte, 32), nil); err == nil {
		t.Fatal("derive_handshake called twice unexpectedly succeeded")
	}

	if err := s.DeriveApplication(nil); err != nil {
		t.Fatalf("derive_application: %v", err)
	}
	if err := s.DeriveApplication(nil); err == nil {
		t.Fatal("derive_application called twice unexpectedly succeeded")
	}

	if _, err := s.UpdateClientTrafficSecret(); err != nil {
		t.Fatalf("update_client_traffic_secret: %v", err)
	}
}

// TestUpdateTrafficSecretBeforeSchedule checks that traffic-key update
// is rejected before derive_application has run.
func TestUpdateTrafficSecretBeforeSchedule(t *testing.T) {
	s := NewSecrets(crypto.SHA256, false)
	if _, err := s.UpdateClientTrafficSecret(); err == nil {
		t.Fatal("update before schedule_done unexpectedly succeeded")
	}
	if _, err := s.UpdateServerTrafficSecret(); err == nil {
		t.Fatal("update before schedule_done unexpectedly succeeded")
	}
}

// TestHKDFExpandLabelDeterministic checks spec §8's "HKDF-Expand-Label
// is deterministic and purely a function of its inputs".
func TestHKDFExpandLabelDeterministic(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	ctx := []byte("some context")
	a := HKDFExpandLabel(crypto.SHA256, secret, []byte("traffic upd"), ctx, 32)
	b := HKDFExpandLabel(crypto.SHA256, secret, []byte("traffic upd"), ctx, 32)
	if !bytes.Equal(a, b) {
		t.Fatalf("HKDF-Expand-Label not deterministic: %x != %x", a, b)
	}

	c := HKDFExpandLabel(crypto.SHA256, secret, []byte("traffic upd"), []byte("different context"), 32)
	if bytes.Equal(a, c) {
		t.Fatal("HKDF-Expand-Label produced the same output for different contexts")
	}
}

// TestSecretsZeroWipesEverySecret checks spec §3 invariant (4) and §9's
// zeroization note.
func TestSecretsZeroWipesEverySecret(t *testing.T) {
	s := NewSecrets(crypto.SHA256, false)
	if err := s.DeriveEarly(nil, nil); err != nil {
		t.Fatalf("derive_early: %v", err)
	}
	if err := s.DeriveHandshake(make([]byte, 32), nil); err != nil {
		t.Fatalf("derive_handshake: %v", err)
	}
	if err := s.DeriveApplication(nil); err != nil {
		t.Fatalf("derive_application: %v", err)
	}
	s.Zero()
	for name, secret := range map[string][]byte{
		"extractedEarly":           s.extractedEarly,
		"binderKey":                s.binderKey,
		"clientEarlyTraffic":       s.clientEarlyTraffic,
		"earlyExporterMaster":      s.earlyExporterMaster,
		"derivedEarly":             s.derivedEarly,
		"extractedHandshake":       s.extractedHandshake,
		"clientHandshakeTraffic":   s.clientHandshakeTraffic,
		"serverHandshakeTraffic":   s.serverHandshakeTraffic,
		"derivedHandshake":         s.derivedHandshake,
		"extractedMaster":          s.extractedMaster,
		"clientApplicationTraffic": s.clientApplicationTraffic,
		"serverApplicationTraffic": s.serverApplicationTraffic,
		"exporterMaster":           s.exporterMaster,
	} {
		if !bytes.Equal(secret, make([]byte, len(secret))) {
			t.Fatalf("%s not zeroized after Zero()", name)
		}
	}
}

// TestFinishedKeyAndVerifyData exercises the Finished construction of
// spec §4.5 against a fixed secret, checking both determinism and that
// a one-bit transcript change is detected.
func TestFinishedKeyAndVerifyData(t *testing.T) {
	s := NewSecrets(crypto.SHA256, false)
	secret := bytes.Repeat([]byte{0x11}, 32)
	th1 := bytes.Repeat([]byte{0xAA}, 32)
	th2 := append([]byte(nil), th1...)
	th2[0] ^= 0x01

	v1 := s.VerifyData(secret, th1)
	v2 := s.VerifyData(secret, th1)
	if !bytes.Equal(v1, v2) {
		t.Fatal("VerifyData not deterministic")
	}
	v3 := s.VerifyData(secret, th2)
	if bytes.Equal(v1, v3) {
		t.Fatal("VerifyData did not change with a one-bit transcript change")
	}
}
