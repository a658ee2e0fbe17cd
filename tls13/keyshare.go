//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
)

// keyShareState tracks the lifecycle spec §3 describes for a KeyShare:
// empty -> local-generated -> peer-received -> derived.
type keyShareState int

const (
	keyShareEmpty keyShareState = iota
	keyShareLocalGenerated
	keySharePeerReceived
	keyShareDerived
)

// KeyShare generates and consumes (EC)DHE public values for one
// negotiated group and derives the resulting shared secret, wrapping
// crypto/ecdh the way the teacher's dh.go wraps ecdh.P256 for its
// single hard-coded curve.
type KeyShare struct {
	group NamedGroup
	curve ecdh.Curve
	state keyShareState

	private *ecdh.PrivateKey
	public  *ecdh.PublicKey
	peer    *ecdh.PublicKey

	shared []byte
}

func curveForGroup(group NamedGroup) (ecdh.Curve, error) {
	switch group {
	case GroupX25519:
		return ecdh.X25519(), nil
	case GroupSecp256r1:
		return ecdh.P256(), nil
	case GroupSecp384r1:
		return ecdh.P384(), nil
	case GroupSecp521r1:
		return ecdh.P521(), nil
	default:
		return nil, illegalParameterf("unsupported named group %v", group)
	}
}

// NewKeyShare creates an empty KeyShare bound to group.
func NewKeyShare(group NamedGroup) (*KeyShare, error) {
	curve, err := curveForGroup(group)
	if err != nil {
		return nil, err
	}
	return &KeyShare{group: group, curve: curve}, nil
}

// Group returns the group this share is bound to.
func (k *KeyShare) Group() NamedGroup {
	return k.group
}

// Generate produces an ephemeral key pair for the share's group.
func (k *KeyShare) Generate() error {
	if k.state != keyShareEmpty {
		return internalErrorf("key share already generated")
	}
	priv, err := k.curve.GenerateKey(rand.Reader)
	if err != nil {
		return internalErrorf("key share generation failed: %v", err)
	}
	k.private = priv
	k.public = priv.PublicKey()
	k.state = keyShareLocalGenerated
	return nil
}

// SerializePublic writes the group-specific public value: 32 bytes for
// X25519, the uncompressed SEC1 point for the NIST curves, both of
// which are exactly what ecdh.PublicKey.Bytes() already returns.
func (k *KeyShare) SerializePublic() ([]byte, error) {
	if k.public == nil {
		return nil, internalErrorf("key share has no local public value")
	}
	return k.public.Bytes(), nil
}

// AcceptPeerPublic parses and validates the peer's public value. group
// must match the share's own group (spec §4.2: IllegalParameter on
// mismatch). crypto/ecdh.NewPublicKey already rejects off-curve,
// infinity, and malformed-length encodings for us.
func (k *KeyShare) AcceptPeerPublic(group NamedGroup, data []byte) error {
	if group != k.group {
		return illegalParameterf("key share group mismatch: got %v, want %v", group, k.group)
	}
	if k.state != keyShareLocalGenerated {
		return internalErrorf("accept_peer_public called before generate")
	}
	pub, err := k.curve.NewPublicKey(data)
	if err != nil {
		return decodeErrorf("malformed peer key share: %v", err)
	}
	k.peer = pub
	k.state = keySharePeerReceived
	return nil
}

// Derive computes the raw (EC)DHE shared secret and zeroes the local
// private key material, per spec §4.2. crypto/ecdh's X25519 ECDH
// already rejects an all-zero output (RFC 7748 low-order point) with
// an error, which surfaces here as HandshakeFailure; the explicit
// all-zero check below repeats that check, so an all-zero shared
// secret never leaves this function.
func (k *KeyShare) Derive() ([]byte, error) {
	if k.state != keySharePeerReceived {
		return nil, internalErrorf("derive called before both public values are present")
	}
	secret, err := k.private.ECDH(k.peer)
	if err != nil {
		return nil, handshakeFailuref("ecdh derivation failed: %v", err)
	}
	if k.group == GroupX25519 && allZero(secret) {
		return nil, handshakeFailuref("x25519 shared secret is all-zero (low-order point)")
	}
	k.shared = secret
	k.state = keyShareDerived
	k.wipePrivate()
	return secret, nil
}

// wipePrivate drops the reference to the local private key. crypto/ecdh
// does not expose its internal byte storage for in-place zeroing, so
// this is the best achievable approximation of spec §9's "private
// wiped" requirement through the stdlib's opaque key type.
func (k *KeyShare) wipePrivate() {
	k.private = nil
}

func allZero(b []byte) bool {
	return bytes.Equal(b, make([]byte, len(b)))
}
