//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"crypto"
	"crypto/hmac"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/markkurossi/tls13/wire"
)

// zeroize overwrites b with zeros in place. Best-effort: the Go
// garbage collector may have already copied the backing array
// elsewhere, but every owner that holds a secret explicitly calls this
// on teardown rather than relying on it implicitly.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Secrets holds the TLS 1.3 key-schedule tree (RFC 8446 §7.1) for one
// session, in the negotiated hash algorithm. Every named secret has
// exactly the hash's output length.
type Secrets struct {
	hash crypto.Hash
	psk  bool

	initDone      bool
	earlyDone     bool
	handshakeDone bool
	scheduleDone  bool

	// insecure is a test-only hook (spec §9 Open Question: treated as
	// a compile-time test hook, never exposed in the public API). No
	// code reads it; _test.go files in this package read the unexported
	// intermediate secrets directly.
	insecure bool

	zeros       []byte
	emptyHash   []byte
	extractedEarly []byte
	binderKey   []byte
	clientEarlyTraffic   []byte
	earlyExporterMaster  []byte
	derivedEarly         []byte
	extractedHandshake   []byte
	clientHandshakeTraffic []byte
	serverHandshakeTraffic []byte
	derivedHandshake       []byte
	extractedMaster        []byte
	clientApplicationTraffic []byte
	serverApplicationTraffic []byte
	exporterMaster           []byte
	resumptionMaster         []byte
}

// NewSecrets creates an initialized key schedule for the given hash
// algorithm (SHA-256 or SHA-384 per spec §6). psk indicates whether
// this session uses PSK resumption (selects the binder_key label).
func NewSecrets(h crypto.Hash, psk bool) *Secrets {
	size := h.Size()
	s := &Secrets{
		hash: h,
		psk:  psk,
		zeros: make([]byte, size),
	}
	empty := h.New()
	s.emptyHash = empty.Sum(nil)
	s.initDone = true
	return s
}

// Hash returns the negotiated hash algorithm.
func (s *Secrets) Hash() crypto.Hash {
	return s.hash
}

// HKDFExpandLabel implements RFC 8446 §7.1's HKDF-Expand-Label over
// the HkdfLabel structure, built with wire.Builder's stacked length
// prefixes the way the teacher's hkdfExpandLabel built it by hand.
func HKDFExpandLabel(h crypto.Hash, secret, label, context []byte, length int) []byte {
	b := wire.NewBuilder()
	b.AddUint16(uint16(length))
	b.PushUint8Length()
	b.AddBytes([]byte("tls13 "))
	b.AddBytes(label)
	b.Pop()
	b.PushUint8Length()
	b.AddBytes(context)
	b.Pop()

	out := make([]byte, length)
	r := hkdf.Expand(h.New, secret, b.Bytes())
	if _, err := io.ReadFull(r, out); err != nil {
		panic("tls13: HKDF-Expand-Label output exceeds hash expansion limit")
	}
	return out
}

func (s *Secrets) expandLabel(secret []byte, label string, context []byte) []byte {
	return HKDFExpandLabel(s.hash, secret, []byte(label), context, s.hash.Size())
}

// deriveSecret implements RFC 8446 §7.1's Derive-Secret, keying
// Expand-Label's context on the transcript hash (or the empty hash
// when transcriptHash is nil).
func (s *Secrets) deriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	ctx := transcriptHash
	if ctx == nil {
		ctx = s.emptyHash
	}
	return s.expandLabel(secret, label, ctx)
}

func (s *Secrets) extract(salt, ikm []byte) []byte {
	return hkdf.Extract(s.hash.New, ikm, salt)
}

// DeriveEarly advances the schedule through the early-secret stage
// (spec §4.1). psk is the pre-shared key, or nil for a PSK-less
// handshake (treated as an all-zero IKM per RFC 8446 §7.1).
func (s *Secrets) DeriveEarly(psk []byte, transcriptHashOfClientHello []byte) error {
	if !s.initDone {
		return internalErrorf("derive_early called before init")
	}
	if s.earlyDone {
		return internalErrorf("derive_early called twice")
	}
	ikm := psk
	if ikm == nil {
		ikm = s.zeros
	}
	s.extractedEarly = s.extract(s.zeros, ikm)

	binderLabel := "ext binder"
	if s.psk {
		binderLabel = "res binder"
	}
	s.binderKey = s.deriveSecret(s.extractedEarly, binderLabel, nil)
	s.clientEarlyTraffic = s.deriveSecret(s.extractedEarly, "c e traffic", transcriptHashOfClientHello)
	s.earlyExporterMaster = s.deriveSecret(s.extractedEarly, "e exp master", transcriptHashOfClientHello)
	s.derivedEarly = s.deriveSecret(s.extractedEarly, "derived", nil)

	s.earlyDone = true
	return nil
}

// DeriveHandshake advances the schedule through the handshake-secret
// stage given the raw (EC)DHE shared secret and the transcript hash
// through ServerHello.
func (s *Secrets) DeriveHandshake(ecdhe []byte, transcriptHash []byte) error {
	if !s.earlyDone {
		return internalErrorf("derive_handshake called before derive_early")
	}
	if s.handshakeDone {
		return internalErrorf("derive_handshake called twice")
	}
	s.extractedHandshake = s.extract(s.derivedEarly, ecdhe)
	s.clientHandshakeTraffic = s.deriveSecret(s.extractedHandshake, "c hs traffic", transcriptHash)
	s.serverHandshakeTraffic = s.deriveSecret(s.extractedHandshake, "s hs traffic", transcriptHash)
	s.derivedHandshake = s.deriveSecret(s.extractedHandshake, "derived", nil)

	s.handshakeDone = true
	return nil
}

// DeriveApplication advances the schedule through the master-secret
// stage given the transcript hash through the server's Finished.
func (s *Secrets) DeriveApplication(transcriptHash []byte) error {
	if !s.handshakeDone {
		return internalErrorf("derive_application called before derive_handshake")
	}
	if s.scheduleDone {
		return internalErrorf("derive_application called twice")
	}
	s.extractedMaster = s.extract(s.derivedHandshake, s.zeros)
	s.clientApplicationTraffic = s.deriveSecret(s.extractedMaster, "c ap traffic", transcriptHash)
	s.serverApplicationTraffic = s.deriveSecret(s.extractedMaster, "s ap traffic", transcriptHash)
	s.exporterMaster = s.deriveSecret(s.extractedMaster, "exp master", transcriptHash)

	s.scheduleDone = true
	return nil
}

// DeriveResumptionMaster derives resumption_master from the transcript
// hash through the client's Finished. Called after schedule_done.
func (s *Secrets) DeriveResumptionMaster(transcriptHash []byte) error {
	if !s.scheduleDone {
		return internalErrorf("derive_resumption_master called before derive_application")
	}
	s.resumptionMaster = s.deriveSecret(s.extractedMaster, "res master", transcriptHash)
	return nil
}

// UpdateClientTrafficSecret implements update_client_traffic_secret
// (spec §4.1): secret' = HKDF-Expand-Label(secret, "traffic upd", "", L).
func (s *Secrets) UpdateClientTrafficSecret() ([]byte, error) {
	if !s.scheduleDone {
		return nil, internalErrorf("update_client_traffic_secret called before schedule_done")
	}
	s.clientApplicationTraffic = s.expandLabel(s.clientApplicationTraffic, "traffic upd", nil)
	return s.clientApplicationTraffic, nil
}

// UpdateServerTrafficSecret is the server-direction counterpart of
// UpdateClientTrafficSecret.
func (s *Secrets) UpdateServerTrafficSecret() ([]byte, error) {
	if !s.scheduleDone {
		return nil, internalErrorf("update_server_traffic_secret called before schedule_done")
	}
	s.serverApplicationTraffic = s.expandLabel(s.serverApplicationTraffic, "traffic upd", nil)
	return s.serverApplicationTraffic, nil
}

// ClientHandshakeTraffic returns client_handshake_traffic.
func (s *Secrets) ClientHandshakeTraffic() []byte { return s.clientHandshakeTraffic }

// ServerHandshakeTraffic returns server_handshake_traffic.
func (s *Secrets) ServerHandshakeTraffic() []byte { return s.serverHandshakeTraffic }

// ClientApplicationTraffic returns client_application_traffic.
func (s *Secrets) ClientApplicationTraffic() []byte { return s.clientApplicationTraffic }

// ServerApplicationTraffic returns server_application_traffic.
func (s *Secrets) ServerApplicationTraffic() []byte { return s.serverApplicationTraffic }

// FinishedKey derives the Finished MAC key for the given traffic
// secret: HKDF-Expand-Label(secret, "finished", "", hash.len).
func (s *Secrets) FinishedKey(trafficSecret []byte) []byte {
	return s.expandLabel(trafficSecret, "finished", []byte{})
}

// VerifyData computes HMAC(finished_key, transcript_hash) (spec §4.5).
func (s *Secrets) VerifyData(trafficSecret, transcriptHash []byte) []byte {
	key := s.FinishedKey(trafficSecret)
	mac := hmac.New(s.hash.New, key)
	mac.Write(transcriptHash)
	return mac.Sum(nil)
}

// TrafficKeyAndIV derives the AEAD key and static IV for a traffic
// secret, per RFC 8446 §7.3: key = Expand-Label(secret, "key", "", L),
// iv = Expand-Label(secret, "iv", "", 12).
func (s *Secrets) TrafficKeyAndIV(trafficSecret []byte, keyLen int) (key, iv []byte) {
	key = HKDFExpandLabel(s.hash, trafficSecret, []byte("key"), []byte{}, keyLen)
	iv = HKDFExpandLabel(s.hash, trafficSecret, []byte("iv"), []byte{}, 12)
	return key, iv
}

// Zero zeroizes every secret held by the schedule (spec §3 invariant
// 4, §9 zeroization note).
func (s *Secrets) Zero() {
	for _, b := range [][]byte{
		s.extractedEarly, s.binderKey, s.clientEarlyTraffic, s.earlyExporterMaster,
		s.derivedEarly, s.extractedHandshake, s.clientHandshakeTraffic,
		s.serverHandshakeTraffic, s.derivedHandshake, s.extractedMaster,
		s.clientApplicationTraffic, s.serverApplicationTraffic, s.exporterMaster,
		s.resumptionMaster,
	} {
		zeroize(b)
	}
}
