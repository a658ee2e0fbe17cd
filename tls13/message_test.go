//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"bytes"
	"testing"
)

// TestMessageCodecReassemblesAcrossFeeds checks spec §4.4: the codec
// reassembles a message across record boundaries, and leaves extra
// bytes buffered for the next call.
func TestMessageCodecReassemblesAcrossFeeds(t *testing.T) {
	body := []byte("hello handshake body")
	raw := EncodeHandshakeMessage(HandshakeTypeFinished, body)

	c := newMessageCodec()

	// Feed the header and the first three body bytes in one record...
	split := handshakeHeaderLen + 3
	c.Feed(raw[:split])
	if msg, ok, err := c.Next(); err != nil || ok {
		t.Fatalf("Next returned early: msg=%v ok=%v err=%v", msg, ok, err)
	}

	// ...and the rest, plus a second message, in a second record.
	second := EncodeHandshakeMessage(HandshakeTypeKeyUpdate, []byte{0x00})
	c.Feed(raw[split:])
	c.Feed(second)

	msg, ok, err := c.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("Next did not produce a message once the body was complete")
	}
	if msg.Type != HandshakeTypeFinished || !bytes.Equal(msg.Body, body) {
		t.Fatalf("got type=%v body=%q, want type=%v body=%q", msg.Type, msg.Body, HandshakeTypeFinished, body)
	}

	msg2, ok, err := c.Next()
	if err != nil || !ok {
		t.Fatalf("second Next: ok=%v err=%v", ok, err)
	}
	if msg2.Type != HandshakeTypeKeyUpdate {
		t.Fatalf("second message type = %v, want key_update", msg2.Type)
	}

	if msg3, ok, err := c.Next(); err != nil || ok || msg3 != nil {
		t.Fatalf("expected no third message, got msg=%v ok=%v err=%v", msg3, ok, err)
	}
}

// TestEncodeHandshakeMessageHeader checks the 4-byte header shape:
// type(1) + length(3).
func TestEncodeHandshakeMessageHeader(t *testing.T) {
	raw := EncodeHandshakeMessage(HandshakeTypeClientHello, []byte{1, 2, 3, 4, 5})
	if len(raw) != handshakeHeaderLen+5 {
		t.Fatalf("encoded length = %d, want %d", len(raw), handshakeHeaderLen+5)
	}
	if raw[0] != byte(HandshakeTypeClientHello) {
		t.Fatalf("type byte = %d, want %d", raw[0], HandshakeTypeClientHello)
	}
	if raw[1] != 0 || raw[2] != 0 || raw[3] != 5 {
		t.Fatalf("length field = %v, want {0,0,5}", raw[1:4])
	}
}
