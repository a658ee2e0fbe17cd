//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

// ContentType is the outer TLS record content type (RFC 8446 §5.1).
type ContentType uint8

// Record content types.
const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

func (t ContentType) String() string {
	switch t {
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	default:
		return "unknown"
	}
}

// ProtocolVersion is the 2-byte legacy_version / supported_versions field.
type ProtocolVersion uint16

// Protocol versions used on the wire. TLS 1.3 negotiates via the
// supported_versions extension; the legacy_record_version stays 0x0303.
const (
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304
)

// HandshakeType enumerates the handshake message types of RFC 8446 §4.
type HandshakeType uint8

// Handshake message types.
const (
	HandshakeTypeClientHello         HandshakeType = 1
	HandshakeTypeServerHello         HandshakeType = 2
	HandshakeTypeNewSessionTicket    HandshakeType = 4
	HandshakeTypeEndOfEarlyData      HandshakeType = 5
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate         HandshakeType = 11
	HandshakeTypeCertificateRequest  HandshakeType = 13
	HandshakeTypeCertificateVerify   HandshakeType = 15
	HandshakeTypeFinished            HandshakeType = 20
	HandshakeTypeKeyUpdate           HandshakeType = 24
	// HandshakeTypeMessageHash is the synthetic transcript entry
	// substituted for ClientHello1 after a HelloRetryRequest.
	HandshakeTypeMessageHash HandshakeType = 254
)

func (t HandshakeType) String() string {
	switch t {
	case HandshakeTypeClientHello:
		return "client_hello"
	case HandshakeTypeServerHello:
		return "server_hello"
	case HandshakeTypeNewSessionTicket:
		return "new_session_ticket"
	case HandshakeTypeEndOfEarlyData:
		return "end_of_early_data"
	case HandshakeTypeEncryptedExtensions:
		return "encrypted_extensions"
	case HandshakeTypeCertificate:
		return "certificate"
	case HandshakeTypeCertificateRequest:
		return "certificate_request"
	case HandshakeTypeCertificateVerify:
		return "certificate_verify"
	case HandshakeTypeFinished:
		return "finished"
	case HandshakeTypeKeyUpdate:
		return "key_update"
	case HandshakeTypeMessageHash:
		return "message_hash"
	default:
		return "unknown"
	}
}

// NamedGroup identifies a (EC)DHE group (RFC 8446 §4.2.7).
type NamedGroup uint16

// Named groups this engine supports as key-exchange groups.
const (
	GroupSecp256r1 NamedGroup = 0x0017
	GroupSecp384r1 NamedGroup = 0x0018
	GroupSecp521r1 NamedGroup = 0x0019
	GroupX25519    NamedGroup = 0x001D
)

func (g NamedGroup) String() string {
	switch g {
	case GroupSecp256r1:
		return "secp256r1"
	case GroupSecp384r1:
		return "secp384r1"
	case GroupSecp521r1:
		return "secp521r1"
	case GroupX25519:
		return "x25519"
	default:
		return "unknown"
	}
}

// CipherSuite identifies a TLS 1.3 AEAD+hash pairing (RFC 8446 §B.4).
type CipherSuite uint16

// Supported cipher suites.
const (
	CipherSuiteAES128GCMSHA256       CipherSuite = 0x1301
	CipherSuiteAES256GCMSHA384       CipherSuite = 0x1302
	CipherSuiteChaCha20Poly1305SHA256 CipherSuite = 0x1303
)

func (cs CipherSuite) String() string {
	switch cs {
	case CipherSuiteAES128GCMSHA256:
		return "TLS_AES_128_GCM_SHA256"
	case CipherSuiteAES256GCMSHA384:
		return "TLS_AES_256_GCM_SHA384"
	case CipherSuiteChaCha20Poly1305SHA256:
		return "TLS_CHACHA20_POLY1305_SHA256"
	default:
		return "unknown"
	}
}

// SignatureScheme identifies a signature algorithm (RFC 8446 §4.2.3).
type SignatureScheme uint16

// Signature schemes this engine can produce or verify.
const (
	SignatureSchemeEcdsaSecp256r1Sha256 SignatureScheme = 0x0403
	SignatureSchemeEcdsaSecp384r1Sha384 SignatureScheme = 0x0503
	SignatureSchemeEcdsaSecp521r1Sha512 SignatureScheme = 0x0603
	SignatureSchemeRsaPssRsaeSha256     SignatureScheme = 0x0804
	SignatureSchemeRsaPssRsaeSha384     SignatureScheme = 0x0805
	SignatureSchemeRsaPssRsaeSha512     SignatureScheme = 0x0806
	SignatureSchemeEd25519              SignatureScheme = 0x0807
)

// ExtensionType identifies a ClientHello/ServerHello/EE extension.
type ExtensionType uint16

// Extension types this engine parses or emits.
const (
	ExtensionServerName          ExtensionType = 0
	ExtensionSupportedGroups     ExtensionType = 10
	ExtensionSignatureAlgorithms ExtensionType = 13
	ExtensionKeyShare            ExtensionType = 51
	ExtensionPreSharedKey        ExtensionType = 41
	ExtensionPSKKeyExchangeModes ExtensionType = 45
	ExtensionSupportedVersions   ExtensionType = 43
	ExtensionCookie              ExtensionType = 44
)

// Mode distinguishes client and server endpoints of a Context.
type Mode int

// Endpoint modes.
const (
	ModeClient Mode = iota
	ModeServer
)

func (m Mode) String() string {
	if m == ModeServer {
		return "server"
	}
	return "client"
}

// AlertLevel is the alert severity (RFC 8446 §6).
type AlertLevel uint8

// Alert levels.
const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

// AlertDescription is the RFC 8446 §6 alert description space, also used
// directly as the externally visible code for most Error kinds.
type AlertDescription uint8

// Alert descriptions.
const (
	AlertCloseNotify                  AlertDescription = 0
	AlertUnexpectedMessage            AlertDescription = 10
	AlertBadRecordMAC                 AlertDescription = 20
	AlertRecordOverflow               AlertDescription = 22
	AlertHandshakeFailure             AlertDescription = 40
	AlertBadCertificate               AlertDescription = 42
	AlertUnsupportedCertificate       AlertDescription = 43
	AlertCertificateRevoked           AlertDescription = 44
	AlertCertificateExpired           AlertDescription = 45
	AlertCertificateUnknown           AlertDescription = 46
	AlertIllegalParameter             AlertDescription = 47
	AlertUnknownCA                    AlertDescription = 48
	AlertDecodeError                  AlertDescription = 50
	AlertDecryptError                 AlertDescription = 51
	AlertProtocolVersion              AlertDescription = 70
	AlertInsufficientSecurity         AlertDescription = 71
	AlertInternalError                AlertDescription = 80
	AlertMissingExtension             AlertDescription = 109
	AlertUnsupportedExtension         AlertDescription = 110
	AlertUnrecognizedName             AlertDescription = 112
	AlertBadCertificateStatusResponse AlertDescription = 113
	AlertUnknownPskIdentity           AlertDescription = 115
	AlertCertificateRequired          AlertDescription = 116
	AlertNoApplicationProtocol        AlertDescription = 120
)

// IOStatus is the result code returned by every Context entry point,
// mirroring the C engine's tls13_io cooperative-resumption contract.
type IOStatus int

// I/O status codes.
const (
	IOSuccess IOStatus = iota
	IOEOF
	IOFailure
	IOAlert
	IOWantPollIn
	IOWantPollOut
	IOWantRetry
	IOUseLegacy
)

func (s IOStatus) String() string {
	switch s {
	case IOSuccess:
		return "SUCCESS"
	case IOEOF:
		return "EOF"
	case IOFailure:
		return "FAILURE"
	case IOAlert:
		return "ALERT"
	case IOWantPollIn:
		return "WANT_POLLIN"
	case IOWantPollOut:
		return "WANT_POLLOUT"
	case IOWantRetry:
		return "WANT_RETRY"
	case IOUseLegacy:
		return "USE_LEGACY"
	default:
		return "unknown"
	}
}

// Downgrade protection sentinels written into the last 8 bytes of
// ServerHello.random by a 1.3-capable server that negotiated down.
var (
	downgradeSentinelTLS12 = [8]byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x01}
	downgradeSentinelTLS11 = [8]byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x00}
)

// PHH rate-limit tunables (spec §6).
const (
	PHHLimitTime = 3600
	PHHLimit     = 100
)

// MaxPlaintext is the maximum TLSInnerPlaintext size (RFC 8446 §5.2).
const MaxPlaintext = 1 << 14
