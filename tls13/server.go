//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"crypto/rand"
)

// ServerHandshake drives the server flight (spec §4.5, §4.6
// handshake_perform for ModeServer): ClientHello -> [HelloRetryRequest
// -> ClientHello'] -> ServerHello -> EncryptedExtensions ->
// Certificate -> CertificateVerify -> Finished -> [client Finished] ->
// completed. Grounded on the teacher's tls.go ServerHandshake,
// generalized to a complete RFC 8446 flow (the teacher's version never
// read a client Finished or derived application traffic) and extended
// with the teacher's own HelloRetryRequest branch (the `if
// conn.clientKEX == nil` case), generalized from its hardcoded
// secp256r1 retry group to ctx.cfg.Groups.
func (ctx *Context) ServerHandshake() (IOStatus, error) {
	if ctx.cfg.Mode != ModeServer {
		return ctx.fail(internalErrorf("ServerHandshake called on a client context"))
	}

	msg, status, err := ctx.recvHandshakeMessage()
	if err != nil {
		return status, err
	}
	if status != IOSuccess {
		return status, nil
	}
	if msg.Type != HandshakeTypeClientHello {
		return ctx.fail(unexpectedMessagef("expected client_hello, got %v", msg.Type))
	}
	ch, err := UnmarshalClientHello(msg.Body)
	if err != nil {
		return ctx.fail(err)
	}

	suite, err := selectCipherSuite(ctx.cfg.CipherSuites, ch.CipherSuites)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.suite = suite

	keyShareExt, ok := findExtension(ch.Extensions, ExtensionKeyShare)
	if !ok {
		return ctx.fail(newError(ErrMissingExtension, "client_hello missing key_share"))
	}
	peerShares, err := ParseKeyShareClientHello(keyShareExt.Body)
	if err != nil {
		return ctx.fail(err)
	}
	group, peerShare, ok := selectGroup(ctx.cfg.Groups, peerShares)
	if !ok {
		ch, peerShare, status, err = ctx.retryWithHelloRetryRequest(ch, suite)
		if err != nil || status != IOSuccess {
			return status, err
		}
		group = ctx.group
		// ClientHello' must keep offering a cipher suite the server
		// can still pick; recompute rather than trust the HRR-time
		// selection verbatim.
		reselected, err := selectCipherSuite(ctx.cfg.CipherSuites, ch.CipherSuites)
		if err != nil {
			return ctx.fail(err)
		}
		suite = reselected
		ctx.suite = suite
	}
	clientHelloTranscriptHash := ctx.transcriptHash()
	ctx.group = group

	ks, err := NewKeyShare(group)
	if err != nil {
		return ctx.fail(err)
	}
	if err := ks.Generate(); err != nil {
		return ctx.fail(err)
	}
	ctx.keyShare = ks
	if err := ks.AcceptPeerPublic(group, peerShare.KeyExchange); err != nil {
		return ctx.fail(err)
	}
	shared, err := ks.Derive()
	if err != nil {
		return ctx.fail(err)
	}

	// No PSK support in this engine's server flight: derive_early runs
	// over the empty IKM per RFC 8446 §7.1 so the derived_early secret
	// is available to derive_handshake.
	if err := ctx.secrets.DeriveEarly(nil, clientHelloTranscriptHash); err != nil {
		return ctx.fail(err)
	}

	serverPub, err := ks.SerializePublic()
	if err != nil {
		return ctx.fail(err)
	}
	sh := &ServerHello{
		LegacyVersion: VersionTLS12,
		CipherSuite:   suite,
		SessionIDEcho: ch.SessionID,
		Extensions: []Extension{
			SupportedVersionsServerExtension(VersionTLS13),
			KeyShareServerHelloExtension(KeyShareEntry{Group: group, KeyExchange: serverPub}),
		},
	}
	if _, err := rand.Read(sh.Random[:]); err != nil {
		return ctx.fail(internalErrorf("server_hello random generation failed: %v", err))
	}

	if status, err := ctx.sendHandshakeMessage(HandshakeTypeServerHello, sh.Marshal()); err != nil || status != IOSuccess {
		return status, err
	}

	if err := ctx.secrets.DeriveHandshake(shared, ctx.transcriptHash()); err != nil {
		return ctx.fail(err)
	}
	if err := ctx.installHandshakeKeys(); err != nil {
		return ctx.fail(err)
	}

	ee := &EncryptedExtensions{}
	if status, err := ctx.sendHandshakeMessage(HandshakeTypeEncryptedExtensions, ee.Marshal()); err != nil || status != IOSuccess {
		return status, err
	}

	cert := &Certificate{
		CertificateList: certificateEntriesFromDER(ctx.cfg.Certificates),
	}
	if status, err := ctx.sendHandshakeMessage(HandshakeTypeCertificate, cert.Marshal()); err != nil || status != IOSuccess {
		return status, err
	}

	sigContent := certificateVerifyContext(serverCertificateVerifyContext, ctx.transcriptHash())
	sig, err := signCertificateVerify(ctx.cfg.Signer, ctx.cfg.SignatureAlg, sigContent)
	if err != nil {
		return ctx.fail(err)
	}
	cv := &CertificateVerify{Algorithm: ctx.cfg.SignatureAlg, Signature: sig}
	if status, err := ctx.sendHandshakeMessage(HandshakeTypeCertificateVerify, cv.Marshal()); err != nil || status != IOSuccess {
		return status, err
	}

	serverFinished := &Finished{VerifyData: ctx.secrets.VerifyData(ctx.secrets.ServerHandshakeTraffic(), ctx.transcriptHash())}
	if status, err := ctx.sendHandshakeMessage(HandshakeTypeFinished, serverFinished.Marshal()); err != nil || status != IOSuccess {
		return status, err
	}

	if err := ctx.secrets.DeriveApplication(ctx.transcriptHash()); err != nil {
		return ctx.fail(err)
	}
	if err := ctx.installApplicationWriteKey(); err != nil {
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
		return ctx.fail(unexpectedMessagef("expected client finished, got %v", msg.Type))
	}
	clientFinishedTranscript := ctx.transcriptHashBeforeLast(msg)
	clientFin := UnmarshalFinished(msg.Body)
	want := ctx.secrets.VerifyData(ctx.secrets.ClientHandshakeTraffic(), clientFinishedTranscript)
	if !hmacEqual(clientFin.VerifyData, want) {
		return ctx.fail(newError(ErrDecryptError, "client finished verification failed"))
	}

	if err := ctx.installApplicationReadKey(); err != nil {
		return ctx.fail(err)
	}

	ctx.completed = true
	ctx.rl.HandshakeCompleted()
	return IOSuccess, nil
}

// retryWithHelloRetryRequest implements the server side of spec §4.5's
// "(HelloRetryRequest? -> ClientHello')" step: the first ClientHello's
// key_share didn't name a group the server supports, so the server
// names one from the client's supported_groups instead and asks for a
// fresh ClientHello carrying a key_share for it. Grounded on the
// teacher's tls.go ServerHandshake `if conn.clientKEX == nil` branch,
// generalized from its hardcoded GroupSecp256r1 retry group to
// ctx.cfg.Groups and extended to validate ClientHello2 actually
// honors the requested group.
func (ctx *Context) retryWithHelloRetryRequest(ch1 *ClientHello, suite CipherSuite) (*ClientHello, *KeyShareEntry, IOStatus, error) {
	sgExt, ok := findExtension(ch1.Extensions, ExtensionSupportedGroups)
	if !ok {
		s, e := ctx.fail(newError(ErrHandshakeFailure, "no shared key exchange group"))
		return nil, nil, s, e
	}
	peerGroups, err := ParseSupportedGroups(sgExt.Body)
	if err != nil {
		s, e := ctx.fail(err)
		return nil, nil, s, e
	}
	group, ok := selectGroupForHRR(ctx.cfg.Groups, peerGroups)
	if !ok {
		s, e := ctx.fail(newError(ErrHandshakeFailure, "no shared key exchange group"))
		return nil, nil, s, e
	}
	ctx.group = group

	hrr := &ServerHello{
		LegacyVersion: VersionTLS12,
		Random:        HelloRetryRequestRandom,
		SessionIDEcho: ch1.SessionID,
		CipherSuite:   suite,
		Extensions: []Extension{
			SupportedVersionsServerExtension(VersionTLS13),
			KeyShareHelloRetryRequestExtension(group),
		},
	}
	ctx.resetTranscriptForHRR()
	if status, err := ctx.sendHandshakeMessage(HandshakeTypeServerHello, hrr.Marshal()); err != nil || status != IOSuccess {
		return nil, nil, status, err
	}

	msg, status, err := ctx.recvHandshakeMessage()
	if err != nil {
		return nil, nil, status, err
	}
	if status != IOSuccess {
		return nil, nil, status, nil
	}
	if msg.Type != HandshakeTypeClientHello {
		s, e := ctx.fail(unexpectedMessagef("expected client_hello', got %v", msg.Type))
		return nil, nil, s, e
	}
	ch2, err := UnmarshalClientHello(msg.Body)
	if err != nil {
		s, e := ctx.fail(err)
		return nil, nil, s, e
	}

	keyShareExt, ok := findExtension(ch2.Extensions, ExtensionKeyShare)
	if !ok {
		s, e := ctx.fail(newError(ErrMissingExtension, "client_hello' missing key_share"))
		return nil, nil, s, e
	}
	peerShares, err := ParseKeyShareClientHello(keyShareExt.Body)
	if err != nil {
		s, e := ctx.fail(err)
		return nil, nil, s, e
	}
	var peerShare *KeyShareEntry
	for i := range peerShares {
		if peerShares[i].Group == group {
			peerShare = &peerShares[i]
			break
		}
	}
	if peerShare == nil {
		s, e := ctx.fail(illegalParameterf("client_hello' did not include a key_share for the requested group"))
		return nil, nil, s, e
	}
	return ch2, peerShare, IOSuccess, nil
}

func certificateEntriesFromDER(chain [][]byte) []CertificateEntry {
	entries := make([]CertificateEntry, len(chain))
	for i, der := range chain {
		entries[i] = CertificateEntry{CertData: der}
	}
	return entries
}

