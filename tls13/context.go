//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"hash"
	"io"
)

// Config carries the caller-supplied, per-session configuration: mode,
// AEAD/hash selection inputs, certificate/key, supported groups.
// Grounded on the teacher's tls.Config{PrivateKey, Certificate}
// referenced from kernel/crypto_tls.go, generalized to a full
// negotiation surface.
type Config struct {
	Mode Mode

	CipherSuites     []CipherSuite
	Groups           []NamedGroup
	SignatureSchemes []SignatureScheme

	// Certificates and Signer are used by a server to present its
	// identity, and by a client only if mutual authentication is
	// added later (this engine's client flight does not request or
	// send a client certificate, matching the spec's server-auth-only
	// literal scenarios).
	Certificates [][]byte
	Signer       crypto.Signer
	SignatureAlg SignatureScheme

	ServerName string

	Rand io.Reader
	Now  func() int64

	LegacyVersion     ProtocolVersion
	AllowCCS          bool
	AllowLegacyAlerts bool

	Verbose bool
	Trace   bool
}

func (c *Config) now() int64 {
	if c.Now != nil {
		return c.Now()
	}
	return 0
}

func (c *Config) legacyVersion() ProtocolVersion {
	if c.LegacyVersion != 0 {
		return c.LegacyVersion
	}
	return VersionTLS12
}

// Context is the top-level session state (spec §3's "Handshake
// context"): mode, stage, completion flags, negotiated algorithms, the
// record layer, message codec, key schedule, and an embedded error,
// mirroring the composition of tls13_record_layer + tls13_handshake_msg
// in the reference engine's tls13_ctx.
type Context struct {
	cfg *Config
	cb  Callbacks

	rl    *RecordLayer
	codec *messageCodec

	secrets *Secrets

	suite     CipherSuite
	group     NamedGroup
	keyShare  *KeyShare

	transcript        hash.Hash
	messageHashSet    bool
	preMessageHash    []byte

	completed      bool
	closeNotifySent bool
	closeNotifyRecv bool

	keyUpdateRequested bool

	lastErr *Error

	onSent     func(ht HandshakeType, body []byte)
	onReceived func(ht HandshakeType, body []byte)
}

// NewContext allocates and initializes a Context for the given mode
// (spec §4.6 ctx_new). The hash algorithm is fixed at construction
// time from cfg's first cipher suite rather than negotiated lazily,
// simplifying HelloRetryRequest/transcript handling at the cost of not
// supporting a ClientHello that spans both SHA-256 and SHA-384 suites
// in a single context.
func NewContext(cfg *Config, cb Callbacks) (*Context, error) {
	if len(cfg.CipherSuites) == 0 {
		return nil, internalErrorf("config has no cipher suites")
	}
	h, err := hashForSuite(cfg.CipherSuites[0])
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		cfg:     cfg,
		cb:      cb,
		codec:   newMessageCodec(),
		secrets: NewSecrets(h, false),
		transcript: h.New(),
	}
	ctx.rl = NewRecordLayer(cb, cfg.legacyVersion(), cfg.AllowCCS, cfg.AllowLegacyAlerts, cfg.now)
	return ctx, nil
}

func hashForSuite(suite CipherSuite) (crypto.Hash, error) {
	switch suite {
	case CipherSuiteAES128GCMSHA256, CipherSuiteChaCha20Poly1305SHA256:
		return crypto.SHA256, nil
	case CipherSuiteAES256GCMSHA384:
		return crypto.SHA384, nil
	default:
		return 0, internalErrorf("unsupported cipher suite %v", suite)
	}
}

// SetMessageObservers installs optional hooks invoked whenever a
// handshake message is sent or received, per spec §4.6.
func (ctx *Context) SetMessageObservers(onSent, onReceived func(ht HandshakeType, body []byte)) {
	ctx.onSent = onSent
	ctx.onReceived = onReceived
}

// IsCompleted reports whether the handshake has finished.
func (ctx *Context) IsCompleted() bool {
	return ctx.completed
}

// LastError returns the last error recorded against this context, if
// any.
func (ctx *Context) LastError() *Error {
	return ctx.lastErr
}

func (ctx *Context) fail(err error) (IOStatus, error) {
	e, ok := err.(*Error)
	if !ok {
		e = internalErrorf("%v", err)
	}
	ctx.lastErr = e
	ctx.rl.WriteAlert(AlertLevelFatal, e.Alert())
	return IOFailure, e
}

// appendTranscript feeds one handshake message's full wire bytes
// (header + body) into the rolling transcript hash (spec §4.5).
func (ctx *Context) appendTranscript(raw []byte) {
	ctx.transcript.Write(raw)
}

// transcriptHash returns the current transcript hash without
// finalizing the running hash (so further messages can still be fed
// in), following the hash.Hash Sum(nil) convention.
func (ctx *Context) transcriptHash() []byte {
	return ctx.transcript.Sum(nil)
}

// transcriptHashBeforeLast returns the transcript hash as it stood
// immediately before the most recently received handshake message was
// appended — the value Finished verification needs, since verify_data
// covers every message up to but not including the Finished itself.
func (ctx *Context) transcriptHashBeforeLast(msg *HandshakeMessage) []byte {
	return ctx.preMessageHash
}

// resetTranscriptForHRR implements the synthetic message_hash prefix
// RFC 8446 §4.4.1 substitutes for ClientHello1 once a
// HelloRetryRequest is sent/received (spec §4.5). Call this once,
// immediately after feeding ClientHello1 and before feeding HRR.
func (ctx *Context) resetTranscriptForHRR() {
	if ctx.messageHashSet {
		return
	}
	ch1Hash := ctx.transcriptHash()
	ctx.transcript.Reset()
	header := EncodeHandshakeMessage(HandshakeTypeMessageHash, ch1Hash)
	ctx.transcript.Write(header)
	ctx.messageHashSet = true
}

// sendHandshakeMessage frames, transcripts, and writes one handshake
// message through the record layer.
func (ctx *Context) sendHandshakeMessage(ht HandshakeType, body []byte) (IOStatus, error) {
	raw := EncodeHandshakeMessage(ht, body)
	ctx.appendTranscript(raw)
	status, err := ctx.rl.WriteRecord(ContentTypeHandshake, raw)
	if err != nil {
		return ctx.fail(err)
	}
	if ctx.onSent != nil {
		ctx.onSent(ht, body)
	}
	return status, nil
}

// recvHandshakeMessage reads records from the wire until exactly one
// full handshake message is reassembled, feeding its raw bytes into
// the transcript before returning.
func (ctx *Context) recvHandshakeMessage() (*HandshakeMessage, IOStatus, error) {
	msg, status, err := ctx.recvHandshakeMessageNoTranscript()
	if err != nil || status != IOSuccess {
		return nil, status, err
	}
	ctx.appendTranscriptForMessage(msg)
	return msg, IOSuccess, nil
}

// appendTranscriptForMessage feeds one already-received handshake
// message's raw encoding into the transcript. Split out of
// recvHandshakeMessage so callers that must inspect a message before
// deciding how it affects the transcript — the client's
// ServerHello-or-HelloRetryRequest branch (spec §4.5) — can defer the
// append.
func (ctx *Context) appendTranscriptForMessage(msg *HandshakeMessage) {
	ctx.preMessageHash = ctx.transcriptHash()
	raw := EncodeHandshakeMessage(msg.Type, msg.Body)
	ctx.appendTranscript(raw)
	if ctx.onReceived != nil {
		ctx.onReceived(msg.Type, msg.Body)
	}
}

// recvHandshakeMessageNoTranscript is recvHandshakeMessage without the
// automatic transcript append.
func (ctx *Context) recvHandshakeMessageNoTranscript() (*HandshakeMessage, IOStatus, error) {
	for {
		if msg, ok, err := ctx.codec.Next(); err != nil {
			return nil, ctx.failStatus(err), err
		} else if ok {
			return msg, IOSuccess, nil
		}

		if ctx.rl.IsHandshakeCompleted() {
			rec, status, err := ctx.rl.ReadRecord()
			if err != nil {
				return nil, ctx.failStatus(err), err
			}
			if status != IOSuccess {
				return nil, status, nil
			}
			if rec.innerType != ContentTypeHandshake {
				return nil, IOFailure, unexpectedMessagef("expected post-handshake handshake record")
			}
			ctx.codec.Feed(rec.payload)
			continue
		}

		rec, status, err := ctx.rl.ReadRecord()
		if err != nil {
			return nil, ctx.failStatus(err), err
		}
		if status != IOSuccess {
			return nil, status, nil
		}
		if rec.innerType != ContentTypeHandshake {
			return nil, IOFailure, unexpectedMessagef("expected handshake record, got %v", rec.innerType)
		}
		ctx.codec.Feed(rec.payload)
	}
}

func (ctx *Context) failStatus(err error) IOStatus {
	if e, ok := err.(*Error); ok {
		ctx.lastErr = e
	}
	return IOFailure
}

// ReadApplicationData reads the next application-data record's
// plaintext. It is only valid after the handshake has completed.
func (ctx *Context) ReadApplicationData() ([]byte, IOStatus, error) {
	if !ctx.completed {
		return nil, IOFailure, internalErrorf("read_application_data called before handshake completion")
	}
	for {
		rec, status, err := ctx.rl.ReadRecord()
		if err != nil {
			return nil, ctx.failStatus(err), err
		}
		if status != IOSuccess {
			return nil, status, nil
		}
		switch rec.innerType {
		case ContentTypeApplicationData:
			return rec.payload, IOSuccess, nil
		case ContentTypeHandshake:
			if err := ctx.handlePostHandshake(rec.payload); err != nil {
				return nil, ctx.failStatus(err), err
			}
		default:
			return nil, IOFailure, unexpectedMessagef("unexpected record type %v after completion", rec.innerType)
		}
	}
}

// WriteApplicationData writes plaintext as an application_data record.
func (ctx *Context) WriteApplicationData(data []byte) (IOStatus, error) {
	if !ctx.completed {
		return IOFailure, internalErrorf("write_application_data called before handshake completion")
	}
	status, err := ctx.rl.WriteRecord(ContentTypeApplicationData, data)
	if err != nil {
		return ctx.fail(err)
	}
	return status, nil
}

// handlePostHandshake dispatches a post-handshake handshake record
// (NewSessionTicket, KeyUpdate) per spec §4.3/§4.5.
func (ctx *Context) handlePostHandshake(payload []byte) error {
	ctx.codec.Feed(payload)
	msg, ok, err := ctx.codec.Next()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := ctx.rl.DispatchPostHandshake(msg.Type, msg.Body); err != nil {
		return err
	}
	switch msg.Type {
	case HandshakeTypeKeyUpdate:
		return ctx.handleKeyUpdate(msg.Body)
	case HandshakeTypeNewSessionTicket:
		return nil
	default:
		return unexpectedMessagef("unexpected post-handshake message type %v", msg.Type)
	}
}

// handleKeyUpdate implements spec §4.5's KeyUpdate reaction:
// update_requested triggers a self-update plus a reciprocal
// KeyUpdate(update_not_requested); update_not_requested only rotates
// the receive side. The receive side is rotated here in both cases.
func (ctx *Context) handleKeyUpdate(body []byte) error {
	ku, err := UnmarshalKeyUpdate(body)
	if err != nil {
		return err
	}
	if err := ctx.rotateReadKey(); err != nil {
		return err
	}
	if ku.RequestUpdate == KeyUpdateRequested {
		if err := ctx.sendKeyUpdate(KeyUpdateNotRequested); err != nil {
			return err
		}
	}
	return nil
}

// SendKeyUpdate issues an application-data-phase KeyUpdate with the
// given request flag, rotating the write key per RFC 8446 §4.6.3.
func (ctx *Context) SendKeyUpdate(request KeyUpdateRequest) error {
	return ctx.sendKeyUpdate(request)
}

func (ctx *Context) sendKeyUpdate(request KeyUpdateRequest) error {
	ku := &KeyUpdate{RequestUpdate: request}
	raw := EncodeHandshakeMessage(HandshakeTypeKeyUpdate, ku.Marshal())
	if _, err := ctx.rl.WriteRecord(ContentTypeHandshake, raw); err != nil {
		return err
	}
	if ctx.onSent != nil {
		ctx.onSent(HandshakeTypeKeyUpdate, ku.Marshal())
	}
	ctx.cb.PHHSent(HandshakeTypeKeyUpdate)
	return ctx.rotateWriteKey()
}

func (ctx *Context) rotateWriteKey() error {
	var secret []byte
	var err error
	if ctx.cfg.Mode == ModeClient {
		secret, err = ctx.secrets.UpdateClientTrafficSecret()
	} else {
		secret, err = ctx.secrets.UpdateServerTrafficSecret()
	}
	if err != nil {
		return err
	}
	key, iv := ctx.secrets.TrafficKeyAndIV(secret, AEADKeyLen(ctx.suite))
	return ctx.rl.InstallWriteKey(ctx.suite, key, iv)
}

func (ctx *Context) rotateReadKey() error {
	var secret []byte
	var err error
	if ctx.cfg.Mode == ModeClient {
		secret, err = ctx.secrets.UpdateServerTrafficSecret()
	} else {
		secret, err = ctx.secrets.UpdateClientTrafficSecret()
	}
	if err != nil {
		return err
	}
	key, iv := ctx.secrets.TrafficKeyAndIV(secret, AEADKeyLen(ctx.suite))
	return ctx.rl.InstallReadKey(ctx.suite, key, iv)
}

// installHandshakeKeys installs both directions' handshake traffic
// keys immediately after derive_handshake, per spec §4.5: "install
// server_handshake_traffic as the read key on the client (write on
// the server), and client_handshake_traffic as the other direction".
func (ctx *Context) installHandshakeKeys() error {
	keyLen := AEADKeyLen(ctx.suite)
	clientKey, clientIV := ctx.secrets.TrafficKeyAndIV(ctx.secrets.ClientHandshakeTraffic(), keyLen)
	serverKey, serverIV := ctx.secrets.TrafficKeyAndIV(ctx.secrets.ServerHandshakeTraffic(), keyLen)
	if ctx.cfg.Mode == ModeServer {
		if err := ctx.rl.InstallWriteKey(ctx.suite, serverKey, serverIV); err != nil {
			return err
		}
		return ctx.rl.InstallReadKey(ctx.suite, clientKey, clientIV)
	}
	if err := ctx.rl.InstallReadKey(ctx.suite, serverKey, serverIV); err != nil {
		return err
	}
	return ctx.rl.InstallWriteKey(ctx.suite, clientKey, clientIV)
}

// installApplicationWriteKey installs this endpoint's application
// write key once derive_application has run (spec §4.5: "Client
// application writes are allowed immediately thereafter").
func (ctx *Context) installApplicationWriteKey() error {
	keyLen := AEADKeyLen(ctx.suite)
	var secret []byte
	if ctx.cfg.Mode == ModeServer {
		secret = ctx.secrets.ServerApplicationTraffic()
	} else {
		secret = ctx.secrets.ClientApplicationTraffic()
	}
	key, iv := ctx.secrets.TrafficKeyAndIV(secret, keyLen)
	return ctx.rl.InstallWriteKey(ctx.suite, key, iv)
}

// installApplicationReadKey installs this endpoint's application read
// key, the peer-direction counterpart of installApplicationWriteKey.
func (ctx *Context) installApplicationReadKey() error {
	keyLen := AEADKeyLen(ctx.suite)
	var secret []byte
	if ctx.cfg.Mode == ModeServer {
		secret = ctx.secrets.ClientApplicationTraffic()
	} else {
		secret = ctx.secrets.ServerApplicationTraffic()
	}
	key, iv := ctx.secrets.TrafficKeyAndIV(secret, keyLen)
	return ctx.rl.InstallReadKey(ctx.suite, key, iv)
}

// Close sends a close_notify alert and marks it sent (spec §4.6).
func (ctx *Context) Close() error {
	if ctx.closeNotifySent {
		return nil
	}
	ctx.closeNotifySent = true
	_, err := ctx.rl.WriteAlert(AlertLevelWarning, AlertCloseNotify)
	return err
}

// selectCipherSuite intersects the local and peer suite lists,
// preferring the local list's order, failing with NoSharedCipher if
// empty.
func selectCipherSuite(local, peer []CipherSuite) (CipherSuite, error) {
	for _, l := range local {
		for _, p := range peer {
			if l == p {
				return l, nil
			}
		}
	}
	return 0, newError(ErrNoSharedCipher, "no shared cipher suite")
}

// selectGroup intersects local supported groups against the peer's
// key_share entries, returning the first local-preferred match.
func selectGroup(local []NamedGroup, peerShares []KeyShareEntry) (NamedGroup, *KeyShareEntry, bool) {
	for _, g := range local {
		for i := range peerShares {
			if peerShares[i].Group == g {
				return g, &peerShares[i], true
			}
		}
	}
	return 0, nil, false
}

// selectGroupForHRR picks the first local-preferred group the peer
// also listed in supported_groups but did not send a key_share for —
// the group a HelloRetryRequest should name (RFC 8446 §4.1.4).
func selectGroupForHRR(local, peerSupported []NamedGroup) (NamedGroup, bool) {
	for _, g := range local {
		for _, p := range peerSupported {
			if p == g {
				return g, true
			}
		}
	}
	return 0, false
}

// parseLeafCertificate is a minimal wrapper around crypto/x509,
// consumed as the external collaborator the spec names ("certificate
// store and trust policy stays external"); callers that need full
// path validation against a root pool do so themselves via
// x509.Certificate.Verify before calling into this engine's
// higher-level APIs. Here we only parse leaf certificates enough to
// extract the public key used for CertificateVerify.
func parseLeafCertificate(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, decodeErrorf("certificate parse failed: %v", err)
	}
	return cert, nil
}

func (ctx *Context) debugf(format string, args ...interface{}) {
	if ctx.cfg.Trace {
		fmt.Printf("tls13 %s: "+format+"\n", append([]interface{}{ctx.cfg.Mode}, args...)...)
	}
}
