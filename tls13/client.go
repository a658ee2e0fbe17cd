//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"crypto/rand"
)

// ClientHandshake drives the client flight (spec §4.5, §4.6
// handshake_perform for ModeClient): ClientHello -> [HelloRetryRequest
// -> ClientHello'] -> ServerHello -> EncryptedExtensions ->
// Certificate -> CertificateVerify -> [server Finished] -> client
// Finished -> completed. The HelloRetryRequest branch mirrors the
// server's retryWithHelloRetryRequest: a synthetic message_hash
// (RFC 8446 §4.4.1) replaces ClientHello1 in the transcript, the HRR
// itself is fed normally, and a fresh key share for the server-named
// group goes out in ClientHello'.
func (ctx *Context) ClientHandshake() (IOStatus, error) {
	if ctx.cfg.Mode != ModeClient {
		return ctx.fail(internalErrorf("ClientHandshake called on a server context"))
	}

	ks, err := NewKeyShare(ctx.cfg.Groups[0])
	if err != nil {
		return ctx.fail(err)
	}
	if err := ks.Generate(); err != nil {
		return ctx.fail(err)
	}
	ctx.keyShare = ks
	ctx.group = ctx.cfg.Groups[0]

	clientPub, err := ks.SerializePublic()
	if err != nil {
		return ctx.fail(err)
	}

	ch := &ClientHello{
		LegacyVersion: VersionTLS12,
		CipherSuites:  ctx.cfg.CipherSuites,
		Extensions: []Extension{
			SupportedVersionsClientExtension([]ProtocolVersion{VersionTLS13}),
			SupportedGroupsExtension(ctx.cfg.Groups),
			SignatureAlgorithmsExtension(ctx.cfg.SignatureSchemes),
			KeyShareClientHelloExtension([]KeyShareEntry{{Group: ctx.group, KeyExchange: clientPub}}),
		},
	}
	if _, err := rand.Read(ch.Random[:]); err != nil {
		return ctx.fail(internalErrorf("client_hello random generation failed: %v", err))
	}

	if status, err := ctx.sendHandshakeMessage(HandshakeTypeClientHello, ch.Marshal()); err != nil || status != IOSuccess {
		return status, err
	}

	msg, status, err := ctx.recvHandshakeMessageNoTranscript()
	if err != nil {
		return status, err
	}
	if status != IOSuccess {
		return status, nil
	}
	if msg.Type != HandshakeTypeServerHello {
		return ctx.fail(unexpectedMessagef("expected server_hello, got %v", msg.Type))
	}
	sh, err := UnmarshalServerHello(msg.Body)
	if err != nil {
		return ctx.fail(err)
	}

	if sh.IsHelloRetryRequest() {
		ks, sh, msg, status, err = ctx.retryAfterHelloRetryRequest(ch, msg, sh)
		if err != nil || status != IOSuccess {
			return status, err
		}
	} else {
		ctx.appendTranscriptForMessage(msg)
	}
	clientHelloTranscriptHash := ctx.transcriptHashBeforeLast(msg)

	if err := checkDowngradeSentinel(sh.Random); err != nil {
		return ctx.fail(err)
	}
	ctx.suite = sh.CipherSuite

	ksExt, ok := findExtension(sh.Extensions, ExtensionKeyShare)
	if !ok {
		return ctx.fail(newError(ErrMissingExtension, "server_hello missing key_share"))
	}
	peerShare, err := ParseKeyShareServerHello(ksExt.Body)
	if err != nil {
		return ctx.fail(err)
	}
	if err := ks.AcceptPeerPublic(ctx.group, peerShare.KeyExchange); err != nil {
		return ctx.fail(err)
	}
	shared, err := ks.Derive()
	if err != nil {
		return ctx.fail(err)
	}

	if err := ctx.secrets.DeriveEarly(nil, clientHelloTranscriptHash); err != nil {
		return ctx.fail(err)
	}
	if err := ctx.secrets.DeriveHandshake(shared, ctx.transcriptHash()); err != nil {
		return ctx.fail(err)
	}
	if err := ctx.installHandshakeKeys(); err != nil {
		return ctx.fail(err)
	}

	msg, status, err = ctx.recvHandshakeMessage()
	if err != nil {
		return status, err
	}
	if status != IOSuccess {
		return status, nil
	}
	if msg.Type != HandshakeTypeEncryptedExtensions {
		return ctx.fail(unexpectedMessagef("expected encrypted_extensions, got %v", msg.Type))
	}
	if _, err := UnmarshalEncryptedExtensions(msg.Body); err != nil {
		return ctx.fail(err)
	}

	msg, status, err = ctx.recvHandshakeMessage()
	if err != nil {
		return status, err
	}
	if status != IOSuccess {
		return status, nil
	}
	if msg.Type != HandshakeTypeCertificate {
		return ctx.fail(unexpectedMessagef("expected certificate, got %v", msg.Type))
	}
	cert, err := UnmarshalCertificate(msg.Body)
	if err != nil {
		return ctx.fail(err)
	}
	if len(cert.CertificateList) == 0 {
		return ctx.fail(newError(ErrBadCertificate, "empty certificate list"))
	}
	leaf, err := parseLeafCertificate(cert.CertificateList[0].CertData)
	if err != nil {
		return ctx.fail(err)
	}
	certificateVerifyTranscript := ctx.transcriptHash()

	msg, status, err = ctx.recvHandshakeMessage()
	if err != nil {
		return status, err
	}
	if status != IOSuccess {
		return status, nil
	}
	if msg.Type != HandshakeTypeCertificateVerify {
		return ctx.fail(unexpectedMessagef("expected certificate_verify, got %v", msg.Type))
	}
	cv, err := UnmarshalCertificateVerify(msg.Body)
	if err != nil {
		return ctx.fail(err)
	}
	sigContent := certificateVerifyContext(serverCertificateVerifyContext, certificateVerifyTranscript)
	if err := verifyCertificateVerify(leaf.PublicKey, cv.Algorithm, sigContent, cv.Signature); err != nil {
		return ctx.fail(err)
	}

	msg, status, err = ctx.recvHandshakeMessage()
	if err != nil {
		return status, err
	}
	if status != IOSuccess {
		return status, nil
	}
	if msg.Type != HandshakeTypeFinished {
		return ctx.fail(unexpectedMessagef("expected server finished, got %v", msg.Type))
	}
	serverFinishedTranscript := ctx.transcriptHashBeforeLast(msg)
	serverFin := UnmarshalFinished(msg.Body)
	want := ctx.secrets.VerifyData(ctx.secrets.ServerHandshakeTraffic(), serverFinishedTranscript)
	if !hmacEqual(serverFin.VerifyData, want) {
		return ctx.fail(newError(ErrDecryptError, "server finished verification failed"))
	}

	if err := ctx.secrets.DeriveApplication(ctx.transcriptHash()); err != nil {
		return ctx.fail(err)
	}
	if err := ctx.installApplicationReadKey(); err != nil {
		return ctx.fail(err)
	}

	clientFinished := &Finished{VerifyData: ctx.secrets.VerifyData(ctx.secrets.ClientHandshakeTraffic(), ctx.transcriptHash())}
	if status, err := ctx.sendHandshakeMessage(HandshakeTypeFinished, clientFinished.Marshal()); err != nil || status != IOSuccess {
		return status, err
	}
	// Client writes switch to application traffic only after its own
	// Finished (sent under the handshake write key) has gone out.
	if err := ctx.installApplicationWriteKey(); err != nil {
		return ctx.fail(err)
	}

	ctx.completed = true
	ctx.rl.HandshakeCompleted()
	return IOSuccess, nil
}

// retryAfterHelloRetryRequest implements spec §4.5's "(HelloRetryRequest?
// -> ClientHello')" step on the client side: it feeds the synthetic
// message_hash (RFC 8446 §4.4.1) in place of ClientHello1, appends the
// HRR itself, generates a fresh key share for the group the server
// named, resends ClientHello with that share, and returns the genuine
// ServerHello that follows along with its already-transcripted
// message. Mirrors the server's retryWithHelloRetryRequest.
func (ctx *Context) retryAfterHelloRetryRequest(ch1 *ClientHello, hrrMsg *HandshakeMessage, hrr *ServerHello) (*KeyShare, *ServerHello, *HandshakeMessage, IOStatus, error) {
	ksExt, ok := findExtension(hrr.Extensions, ExtensionKeyShare)
	if !ok {
		s, e := ctx.fail(newError(ErrMissingExtension, "hello_retry_request missing key_share"))
		return nil, nil, nil, s, e
	}
	group, err := ParseKeyShareHelloRetryRequest(ksExt.Body)
	if err != nil {
		s, e := ctx.fail(err)
		return nil, nil, nil, s, e
	}
	supported := false
	for _, g := range ctx.cfg.Groups {
		if g == group {
			supported = true
			break
		}
	}
	if !supported {
		s, e := ctx.fail(illegalParameterf("hello_retry_request named unsupported group %v", group))
		return nil, nil, nil, s, e
	}

	ctx.resetTranscriptForHRR()
	ctx.appendTranscriptForMessage(hrrMsg)

	ks, err := NewKeyShare(group)
	if err != nil {
		s, e := ctx.fail(err)
		return nil, nil, nil, s, e
	}
	if err := ks.Generate(); err != nil {
		s, e := ctx.fail(err)
		return nil, nil, nil, s, e
	}
	ctx.keyShare = ks
	ctx.group = group

	clientPub, err := ks.SerializePublic()
	if err != nil {
		s, e := ctx.fail(err)
		return nil, nil, nil, s, e
	}
	ch2 := &ClientHello{
		LegacyVersion: VersionTLS12,
		Random:        ch1.Random,
		SessionID:     ch1.SessionID,
		CipherSuites:  ctx.cfg.CipherSuites,
		Extensions: []Extension{
			SupportedVersionsClientExtension([]ProtocolVersion{VersionTLS13}),
			SupportedGroupsExtension(ctx.cfg.Groups),
			SignatureAlgorithmsExtension(ctx.cfg.SignatureSchemes),
			KeyShareClientHelloExtension([]KeyShareEntry{{Group: group, KeyExchange: clientPub}}),
		},
	}
	if status, err := ctx.sendHandshakeMessage(HandshakeTypeClientHello, ch2.Marshal()); err != nil || status != IOSuccess {
		return nil, nil, nil, status, err
	}

	msg, status, err := ctx.recvHandshakeMessage()
	if err != nil {
		return nil, nil, nil, status, err
	}
	if status != IOSuccess {
		return nil, nil, nil, status, nil
	}
	if msg.Type != HandshakeTypeServerHello {
		s, e := ctx.fail(unexpectedMessagef("expected server_hello, got %v", msg.Type))
		return nil, nil, nil, s, e
	}
	sh, err := UnmarshalServerHello(msg.Body)
	if err != nil {
		s, e := ctx.fail(err)
		return nil, nil, nil, s, e
	}
	if sh.IsHelloRetryRequest() {
		s, e := ctx.fail(newError(ErrHRRFailed, "server sent a second hello_retry_request"))
		return nil, nil, nil, s, e
	}
	return ks, sh, msg, IOSuccess, nil
}

// checkDowngradeSentinel enforces spec §4.5's downgrade protection:
// the last 8 bytes of ServerHello.random MUST NOT equal the TLS 1.2 or
// 1.1 sentinel unless the server actually negotiated that version
// (which this engine, being 1.3-only, never does).
func checkDowngradeSentinel(random [32]byte) error {
	var last8 [8]byte
	copy(last8[:], random[24:])
	if last8 == downgradeSentinelTLS12 || last8 == downgradeSentinelTLS11 {
		return illegalParameterf("server_hello carries a downgrade sentinel")
	}
	return nil
}
