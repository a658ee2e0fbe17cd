//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"github.com/markkurossi/tls13/wire"
)

// Extension is a raw, type-tagged extension body, mirroring the
// teacher's types.go Extension struct. Typed accessors below parse
// the handful of extension bodies this engine actually negotiates.
type Extension struct {
	Type ExtensionType
	Body []byte
}

func marshalExtensions(b *wire.Builder, exts []Extension) {
	b.PushUint16Length()
	for _, e := range exts {
		b.AddUint16(uint16(e.Type))
		b.PushUint16Length()
		b.AddBytes(e.Body)
		b.Pop()
	}
	b.Pop()
}

func unmarshalExtensions(r *wire.Reader) ([]Extension, error) {
	var list wire.Reader
	if !r.ReadUint16LengthPrefixed(&list) {
		return nil, decodeErrorf("truncated extensions list")
	}
	var exts []Extension
	for !list.Empty() {
		var typ uint16
		if !list.ReadUint16(&typ) {
			return nil, decodeErrorf("truncated extension header")
		}
		var body wire.Reader
		if !list.ReadUint16LengthPrefixed(&body) {
			return nil, decodeErrorf("truncated extension body")
		}
		exts = append(exts, Extension{
			Type: ExtensionType(typ),
			Body: append([]byte(nil), body.Bytes()...),
		})
	}
	return exts, nil
}

func findExtension(exts []Extension, t ExtensionType) (Extension, bool) {
	for _, e := range exts {
		if e.Type == t {
			return e, true
		}
	}
	return Extension{}, false
}

// KeyShareEntry pairs a named group with its serialized public value
// (RFC 8446 §4.2.8), grounded on the teacher's types.go struct of the
// same name.
type KeyShareEntry struct {
	Group       NamedGroup
	KeyExchange []byte
}

// KeyShareClientHelloExtension builds the key_share extension body for
// a ClientHello (a list of entries).
func KeyShareClientHelloExtension(entries []KeyShareEntry) Extension {
	b := wire.NewBuilder()
	b.PushUint16Length()
	for _, e := range entries {
		b.AddUint16(uint16(e.Group))
		b.PushUint16Length()
		b.AddBytes(e.KeyExchange)
		b.Pop()
	}
	b.Pop()
	return Extension{Type: ExtensionKeyShare, Body: b.Bytes()}
}

// ParseKeyShareClientHello parses a ClientHello's key_share extension.
func ParseKeyShareClientHello(body []byte) ([]KeyShareEntry, error) {
	r := wire.NewReader(body)
	var list wire.Reader
	if !r.ReadUint16LengthPrefixed(&list) {
		return nil, decodeErrorf("truncated key_share list")
	}
	var entries []KeyShareEntry
	for !list.Empty() {
		var group uint16
		if !list.ReadUint16(&group) {
			return nil, decodeErrorf("truncated key_share entry")
		}
		var ke wire.Reader
		if !list.ReadUint16LengthPrefixed(&ke) {
			return nil, decodeErrorf("truncated key_share entry body")
		}
		entries = append(entries, KeyShareEntry{
			Group:       NamedGroup(group),
			KeyExchange: append([]byte(nil), ke.Bytes()...),
		})
	}
	return entries, nil
}

// KeyShareServerHelloExtension builds a ServerHello's single-entry
// key_share extension body.
func KeyShareServerHelloExtension(e KeyShareEntry) Extension {
	b := wire.NewBuilder()
	b.AddUint16(uint16(e.Group))
	b.PushUint16Length()
	b.AddBytes(e.KeyExchange)
	b.Pop()
	return Extension{Type: ExtensionKeyShare, Body: b.Bytes()}
}

// ParseKeyShareServerHello parses a ServerHello's key_share extension.
func ParseKeyShareServerHello(body []byte) (KeyShareEntry, error) {
	r := wire.NewReader(body)
	var group uint16
	if !r.ReadUint16(&group) {
		return KeyShareEntry{}, decodeErrorf("truncated key_share")
	}
	var ke wire.Reader
	if !r.ReadUint16LengthPrefixed(&ke) {
		return KeyShareEntry{}, decodeErrorf("truncated key_share key_exchange")
	}
	return KeyShareEntry{Group: NamedGroup(group), KeyExchange: append([]byte(nil), ke.Bytes()...)}, nil
}

// KeyShareHelloRetryRequestExtension builds the key_share extension
// body for a HelloRetryRequest: a bare selected group, with no
// key_exchange value (RFC 8446 §4.2.8).
func KeyShareHelloRetryRequestExtension(group NamedGroup) Extension {
	b := wire.NewBuilder()
	b.AddUint16(uint16(group))
	return Extension{Type: ExtensionKeyShare, Body: b.Bytes()}
}

// ParseKeyShareHelloRetryRequest parses a HelloRetryRequest's key_share
// extension body down to the group the server wants a share for.
func ParseKeyShareHelloRetryRequest(body []byte) (NamedGroup, error) {
	r := wire.NewReader(body)
	var group uint16
	if !r.ReadUint16(&group) {
		return 0, decodeErrorf("truncated hello_retry_request key_share")
	}
	if !r.Empty() {
		return 0, newError(ErrTrailingData, "trailing bytes after hello_retry_request key_share")
	}
	return NamedGroup(group), nil
}

// ParseSupportedGroups parses a supported_groups extension body into
// the list of groups it names (RFC 8446 §4.2.7).
func ParseSupportedGroups(body []byte) ([]NamedGroup, error) {
	r := wire.NewReader(body)
	var list wire.Reader
	if !r.ReadUint16LengthPrefixed(&list) {
		return nil, decodeErrorf("truncated supported_groups list")
	}
	var groups []NamedGroup
	for !list.Empty() {
		var g uint16
		if !list.ReadUint16(&g) {
			return nil, decodeErrorf("truncated supported_groups entry")
		}
		groups = append(groups, NamedGroup(g))
	}
	return groups, nil
}

// SupportedVersionsClientExtension builds the supported_versions
// extension body in its client form: a list of versions.
func SupportedVersionsClientExtension(versions []ProtocolVersion) Extension {
	b := wire.NewBuilder()
	b.PushUint8Length()
	for _, v := range versions {
		b.AddUint16(uint16(v))
	}
	b.Pop()
	return Extension{Type: ExtensionSupportedVersions, Body: b.Bytes()}
}

// SupportedVersionsServerExtension (server form: a single version).
func SupportedVersionsServerExtension(v ProtocolVersion) Extension {
	b := wire.NewBuilder()
	b.AddUint16(uint16(v))
	return Extension{Type: ExtensionSupportedVersions, Body: b.Bytes()}
}

// SupportedGroupsExtension lists the named groups the sender supports.
func SupportedGroupsExtension(groups []NamedGroup) Extension {
	b := wire.NewBuilder()
	b.PushUint16Length()
	for _, g := range groups {
		b.AddUint16(uint16(g))
	}
	b.Pop()
	return Extension{Type: ExtensionSupportedGroups, Body: b.Bytes()}
}

// SignatureAlgorithmsExtension lists the signature schemes the sender
// accepts for CertificateVerify.
func SignatureAlgorithmsExtension(schemes []SignatureScheme) Extension {
	b := wire.NewBuilder()
	b.PushUint16Length()
	for _, s := range schemes {
		b.AddUint16(uint16(s))
	}
	b.Pop()
	return Extension{Type: ExtensionSignatureAlgorithms, Body: b.Bytes()}
}

// ClientHello is the ClientHello body (RFC 8446 §4.1.2), grounded on
// the teacher's types.go ClientHello struct and extended with the
// fields the teacher's prototype never populated (session_id,
// compression_methods, extensions beyond key_share).
type ClientHello struct {
	LegacyVersion ProtocolVersion
	Random        [32]byte
	SessionID     []byte
	CipherSuites  []CipherSuite
	Extensions    []Extension
}

// Marshal serializes the ClientHello body (without the handshake
// header).
func (c *ClientHello) Marshal() []byte {
	b := wire.NewBuilder()
	b.AddUint16(uint16(c.LegacyVersion))
	b.AddBytes(c.Random[:])
	b.PushUint8Length()
	b.AddBytes(c.SessionID)
	b.Pop()
	b.PushUint16Length()
	for _, cs := range c.CipherSuites {
		b.AddUint16(uint16(cs))
	}
	b.Pop()
	b.PushUint8Length()
	b.AddUint8(0) // legacy_compression_methods: null only
	b.Pop()
	marshalExtensions(b, c.Extensions)
	return b.Bytes()
}

// UnmarshalClientHello parses a ClientHello body.
func UnmarshalClientHello(body []byte) (*ClientHello, error) {
	r := wire.NewReader(body)
	c := &ClientHello{}
	var version uint16
	if !r.ReadUint16(&version) {
		return nil, decodeErrorf("truncated client_hello version")
	}
	c.LegacyVersion = ProtocolVersion(version)
	var random []byte
	if !r.ReadBytes(&random, 32) {
		return nil, decodeErrorf("truncated client_hello random")
	}
	copy(c.Random[:], random)

	var sessionID wire.Reader
	if !r.ReadUint8LengthPrefixed(&sessionID) {
		return nil, decodeErrorf("truncated client_hello session_id")
	}
	c.SessionID = append([]byte(nil), sessionID.Bytes()...)

	var suites wire.Reader
	if !r.ReadUint16LengthPrefixed(&suites) {
		return nil, decodeErrorf("truncated client_hello cipher_suites")
	}
	for !suites.Empty() {
		var cs uint16
		if !suites.ReadUint16(&cs) {
			return nil, decodeErrorf("truncated cipher suite entry")
		}
		c.CipherSuites = append(c.CipherSuites, CipherSuite(cs))
	}

	var compression wire.Reader
	if !r.ReadUint8LengthPrefixed(&compression) {
		return nil, decodeErrorf("truncated client_hello compression_methods")
	}

	exts, err := unmarshalExtensions(r)
	if err != nil {
		return nil, err
	}
	c.Extensions = exts
	if !r.Empty() {
		return nil, newError(ErrTrailingData, "trailing bytes after client_hello")
	}
	return c, nil
}

// ServerHello is the ServerHello body (RFC 8446 §4.1.3). The same
// struct shape carries a HelloRetryRequest, distinguished only by
// Random equalling the HRR constant (RFC 8446 §4.1.3); this engine
// checks that constant explicitly at the call site rather than
// modelling HRR as a separate Go type.
type ServerHello struct {
	LegacyVersion     ProtocolVersion
	Random            [32]byte
	SessionIDEcho     []byte
	CipherSuite       CipherSuite
	Extensions        []Extension
}

// HelloRetryRequestRandom is the fixed SHA-256 value RFC 8446 §4.1.3
// substitutes for ServerHello.random on a HelloRetryRequest.
var HelloRetryRequestRandom = [32]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11, 0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E, 0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// IsHelloRetryRequest reports whether a ServerHello is actually an
// HRR per its fixed random value.
func (s *ServerHello) IsHelloRetryRequest() bool {
	return s.Random == HelloRetryRequestRandom
}

// Marshal serializes the ServerHello body.
func (s *ServerHello) Marshal() []byte {
	b := wire.NewBuilder()
	b.AddUint16(uint16(s.LegacyVersion))
	b.AddBytes(s.Random[:])
	b.PushUint8Length()
	b.AddBytes(s.SessionIDEcho)
	b.Pop()
	b.AddUint16(uint16(s.CipherSuite))
	b.AddUint8(0) // legacy_compression_method
	marshalExtensions(b, s.Extensions)
	return b.Bytes()
}

// UnmarshalServerHello parses a ServerHello body.
func UnmarshalServerHello(body []byte) (*ServerHello, error) {
	r := wire.NewReader(body)
	s := &ServerHello{}
	var version uint16
	if !r.ReadUint16(&version) {
		return nil, decodeErrorf("truncated server_hello version")
	}
	s.LegacyVersion = ProtocolVersion(version)
	var random []byte
	if !r.ReadBytes(&random, 32) {
		return nil, decodeErrorf("truncated server_hello random")
	}
	copy(s.Random[:], random)

	var sessionID wire.Reader
	if !r.ReadUint8LengthPrefixed(&sessionID) {
		return nil, decodeErrorf("truncated server_hello session_id_echo")
	}
	s.SessionIDEcho = append([]byte(nil), sessionID.Bytes()...)

	var cs uint16
	if !r.ReadUint16(&cs) {
		return nil, decodeErrorf("truncated server_hello cipher_suite")
	}
	s.CipherSuite = CipherSuite(cs)

	var compression uint8
	if !r.ReadUint8(&compression) {
		return nil, decodeErrorf("truncated server_hello compression_method")
	}

	exts, err := unmarshalExtensions(r)
	if err != nil {
		return nil, err
	}
	s.Extensions = exts
	if !r.Empty() {
		return nil, newError(ErrTrailingData, "trailing bytes after server_hello")
	}
	return s, nil
}

// EncryptedExtensions carries extensions protected under the
// handshake traffic keys (RFC 8446 §4.3.1).
type EncryptedExtensions struct {
	Extensions []Extension
}

// Marshal serializes the EncryptedExtensions body.
func (e *EncryptedExtensions) Marshal() []byte {
	b := wire.NewBuilder()
	marshalExtensions(b, e.Extensions)
	return b.Bytes()
}

// UnmarshalEncryptedExtensions parses an EncryptedExtensions body.
func UnmarshalEncryptedExtensions(body []byte) (*EncryptedExtensions, error) {
	r := wire.NewReader(body)
	exts, err := unmarshalExtensions(r)
	if err != nil {
		return nil, err
	}
	if !r.Empty() {
		return nil, newError(ErrTrailingData, "trailing bytes after encrypted_extensions")
	}
	return &EncryptedExtensions{Extensions: exts}, nil
}

// CertificateEntry pairs a DER certificate with its per-entry
// extensions (RFC 8446 §4.4.2), grounded on ekr/mint's
// handshake-messages.go shape.
type CertificateEntry struct {
	CertData   []byte
	Extensions []Extension
}

// Certificate is the Certificate message body (RFC 8446 §4.4.2).
type Certificate struct {
	CertificateRequestContext []byte
	CertificateList           []CertificateEntry
}

// Marshal serializes the Certificate body.
func (c *Certificate) Marshal() []byte {
	b := wire.NewBuilder()
	b.PushUint8Length()
	b.AddBytes(c.CertificateRequestContext)
	b.Pop()
	b.PushUint24Length()
	for _, e := range c.CertificateList {
		b.PushUint24Length()
		b.AddBytes(e.CertData)
		b.Pop()
		marshalExtensions(b, e.Extensions)
	}
	b.Pop()
	return b.Bytes()
}

// UnmarshalCertificate parses a Certificate body.
func UnmarshalCertificate(body []byte) (*Certificate, error) {
	r := wire.NewReader(body)
	c := &Certificate{}
	var ctx wire.Reader
	if !r.ReadUint8LengthPrefixed(&ctx) {
		return nil, decodeErrorf("truncated certificate_request_context")
	}
	c.CertificateRequestContext = append([]byte(nil), ctx.Bytes()...)

	var list wire.Reader
	if !r.ReadUint24LengthPrefixed(&list) {
		return nil, decodeErrorf("truncated certificate_list")
	}
	for !list.Empty() {
		var certData wire.Reader
		if !list.ReadUint24LengthPrefixed(&certData) {
			return nil, decodeErrorf("truncated certificate entry")
		}
		exts, err := unmarshalExtensions(&list)
		if err != nil {
			return nil, err
		}
		c.CertificateList = append(c.CertificateList, CertificateEntry{
			CertData:   append([]byte(nil), certData.Bytes()...),
			Extensions: exts,
		})
	}
	if !r.Empty() {
		return nil, newError(ErrTrailingData, "trailing bytes after certificate")
	}
	return c, nil
}

// CertificateVerify carries the handshake signature (RFC 8446 §4.4.3).
type CertificateVerify struct {
	Algorithm SignatureScheme
	Signature []byte
}

// Marshal serializes the CertificateVerify body.
func (c *CertificateVerify) Marshal() []byte {
	b := wire.NewBuilder()
	b.AddUint16(uint16(c.Algorithm))
	b.PushUint16Length()
	b.AddBytes(c.Signature)
	b.Pop()
	return b.Bytes()
}

// UnmarshalCertificateVerify parses a CertificateVerify body.
func UnmarshalCertificateVerify(body []byte) (*CertificateVerify, error) {
	r := wire.NewReader(body)
	var alg uint16
	if !r.ReadUint16(&alg) {
		return nil, decodeErrorf("truncated certificate_verify algorithm")
	}
	var sig wire.Reader
	if !r.ReadUint16LengthPrefixed(&sig) {
		return nil, decodeErrorf("truncated certificate_verify signature")
	}
	if !r.Empty() {
		return nil, newError(ErrTrailingData, "trailing bytes after certificate_verify")
	}
	return &CertificateVerify{
		Algorithm: SignatureScheme(alg),
		Signature: append([]byte(nil), sig.Bytes()...),
	}, nil
}

// certificateVerifyContext builds the content signed/verified by
// CertificateVerify (spec §4.5): 64 bytes of 0x20, the context
// string, a zero byte, then the transcript hash.
func certificateVerifyContext(contextString string, transcriptHash []byte) []byte {
	out := make([]byte, 0, 64+len(contextString)+1+len(transcriptHash))
	for i := 0; i < 64; i++ {
		out = append(out, 0x20)
	}
	out = append(out, []byte(contextString)...)
	out = append(out, 0x00)
	out = append(out, transcriptHash...)
	return out
}

const (
	serverCertificateVerifyContext = "TLS 1.3, server CertificateVerify"
	clientCertificateVerifyContext = "TLS 1.3, client CertificateVerify"
)

// Finished carries the handshake verify_data (RFC 8446 §4.4.4).
type Finished struct {
	VerifyData []byte
}

// Marshal serializes the Finished body (no length prefix of its own:
// the whole body is the raw verify_data).
func (f *Finished) Marshal() []byte {
	return append([]byte(nil), f.VerifyData...)
}

// UnmarshalFinished takes the whole Finished body as verify_data
// (Finished has no internal framing). Its length is not checked here.
func UnmarshalFinished(body []byte) *Finished {
	return &Finished{VerifyData: append([]byte(nil), body...)}
}

// NewSessionTicket is a post-handshake ticket message (RFC 8446 §4.6.1).
type NewSessionTicket struct {
	TicketLifetime uint32
	TicketAgeAdd   uint32
	TicketNonce    []byte
	Ticket         []byte
	Extensions     []Extension
}

// Marshal serializes the NewSessionTicket body.
func (t *NewSessionTicket) Marshal() []byte {
	b := wire.NewBuilder()
	b.AddUint32(t.TicketLifetime)
	b.AddUint32(t.TicketAgeAdd)
	b.PushUint8Length()
	b.AddBytes(t.TicketNonce)
	b.Pop()
	b.PushUint16Length()
	b.AddBytes(t.Ticket)
	b.Pop()
	marshalExtensions(b, t.Extensions)
	return b.Bytes()
}

// UnmarshalNewSessionTicket parses a NewSessionTicket body.
func UnmarshalNewSessionTicket(body []byte) (*NewSessionTicket, error) {
	r := wire.NewReader(body)
	t := &NewSessionTicket{}
	if !r.ReadUint32(&t.TicketLifetime) || !r.ReadUint32(&t.TicketAgeAdd) {
		return nil, decodeErrorf("truncated new_session_ticket lifetime/age_add")
	}
	var nonce, ticket wire.Reader
	if !r.ReadUint8LengthPrefixed(&nonce) {
		return nil, decodeErrorf("truncated new_session_ticket nonce")
	}
	t.TicketNonce = append([]byte(nil), nonce.Bytes()...)
	if !r.ReadUint16LengthPrefixed(&ticket) {
		return nil, decodeErrorf("truncated new_session_ticket ticket")
	}
	t.Ticket = append([]byte(nil), ticket.Bytes()...)
	exts, err := unmarshalExtensions(r)
	if err != nil {
		return nil, err
	}
	t.Extensions = exts
	return t, nil
}

// KeyUpdateRequest is the KeyUpdate.request_update field (RFC 8446 §4.6.3).
type KeyUpdateRequest uint8

// KeyUpdate request values.
const (
	KeyUpdateNotRequested KeyUpdateRequest = 0
	KeyUpdateRequested    KeyUpdateRequest = 1
)

// KeyUpdate is the KeyUpdate message body.
type KeyUpdate struct {
	RequestUpdate KeyUpdateRequest
}

// Marshal serializes the KeyUpdate body.
func (k *KeyUpdate) Marshal() []byte {
	return []byte{byte(k.RequestUpdate)}
}

// UnmarshalKeyUpdate parses a KeyUpdate body.
func UnmarshalKeyUpdate(body []byte) (*KeyUpdate, error) {
	if len(body) != 1 {
		return nil, decodeErrorf("malformed key_update body")
	}
	return &KeyUpdate{RequestUpdate: KeyUpdateRequest(body[0])}, nil
}
