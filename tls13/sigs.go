//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
)

// hmacEqual does a constant-time comparison of two verify_data values.
func hmacEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

func hashForSignatureScheme(alg SignatureScheme) (crypto.Hash, error) {
	switch alg {
	case SignatureSchemeEcdsaSecp256r1Sha256, SignatureSchemeRsaPssRsaeSha256:
		return crypto.SHA256, nil
	case SignatureSchemeEcdsaSecp384r1Sha384, SignatureSchemeRsaPssRsaeSha384:
		return crypto.SHA384, nil
	case SignatureSchemeEcdsaSecp521r1Sha512, SignatureSchemeRsaPssRsaeSha512:
		return crypto.SHA512, nil
	case SignatureSchemeEd25519:
		return 0, nil
	default:
		return 0, internalErrorf("unsupported signature scheme %v", alg)
	}
}

// signCertificateVerify signs content (the 64x0x20 + context string +
// transcript hash construction of spec §4.5) with signer, consumed
// through the crypto.Signer interface per spec §1's "signatures
// consumed through interfaces" boundary.
func signCertificateVerify(signer crypto.Signer, alg SignatureScheme, content []byte) ([]byte, error) {
	switch alg {
	case SignatureSchemeEd25519:
		if _, ok := signer.Public().(ed25519.PublicKey); !ok {
			return nil, internalErrorf("signer does not hold an ed25519 key for %v", alg)
		}
		return signer.Sign(rand.Reader, content, crypto.Hash(0))
	case SignatureSchemeEcdsaSecp256r1Sha256, SignatureSchemeEcdsaSecp384r1Sha384, SignatureSchemeEcdsaSecp521r1Sha512:
		h, err := hashForSignatureScheme(alg)
		if err != nil {
			return nil, err
		}
		digest := hashSum(h, content)
		return signer.Sign(rand.Reader, digest, h)
	case SignatureSchemeRsaPssRsaeSha256, SignatureSchemeRsaPssRsaeSha384, SignatureSchemeRsaPssRsaeSha512:
		h, err := hashForSignatureScheme(alg)
		if err != nil {
			return nil, err
		}
		digest := hashSum(h, content)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h}
		return signer.Sign(rand.Reader, digest, opts)
	default:
		return nil, internalErrorf("unsupported signature scheme %v", alg)
	}
}

// verifyCertificateVerify verifies a CertificateVerify signature
// against the leaf certificate's public key.
func verifyCertificateVerify(pub crypto.PublicKey, alg SignatureScheme, content, sig []byte) error {
	switch alg {
	case SignatureSchemeEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return decryptErrorf("certificate key is not ed25519 for scheme %v", alg)
		}
		if !ed25519.Verify(key, content, sig) {
			return decryptErrorf("ed25519 certificate_verify signature invalid")
		}
		return nil
	case SignatureSchemeEcdsaSecp256r1Sha256, SignatureSchemeEcdsaSecp384r1Sha384, SignatureSchemeEcdsaSecp521r1Sha512:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return decryptErrorf("certificate key is not ecdsa for scheme %v", alg)
		}
		h, err := hashForSignatureScheme(alg)
		if err != nil {
			return err
		}
		digest := hashSum(h, content)
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return decryptErrorf("ecdsa certificate_verify signature invalid")
		}
		return nil
	case SignatureSchemeRsaPssRsaeSha256, SignatureSchemeRsaPssRsaeSha384, SignatureSchemeRsaPssRsaeSha512:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return decryptErrorf("certificate key is not rsa for scheme %v", alg)
		}
		h, err := hashForSignatureScheme(alg)
		if err != nil {
			return err
		}
		digest := hashSum(h, content)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h}
		if err := rsa.VerifyPSS(key, h, digest, sig, opts); err != nil {
			return decryptErrorf("rsa-pss certificate_verify signature invalid: %v", err)
		}
		return nil
	default:
		return internalErrorf("unsupported signature scheme %v", alg)
	}
}

func hashSum(h crypto.Hash, data []byte) []byte {
	switch h {
	case crypto.SHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case crypto.SHA384:
		sum := sha512.Sum384(data)
		return sum[:]
	case crypto.SHA512:
		sum := sha512.Sum512(data)
		return sum[:]
	default:
		d := h.New()
		d.Write(data)
		return d.Sum(nil)
	}
}
