//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls13

import (
	"github.com/markkurossi/tls13/wire"
)

// handshakeHeaderLen is the 4-byte handshake message header: type(1)
// + length(3) (spec §3, §4.4).
const handshakeHeaderLen = 4

// HandshakeMessage is one reassembled handshake message: its type and
// its body, without the 4-byte header (spec §3).
type HandshakeMessage struct {
	Type HandshakeType
	Body []byte
}

// messageCodec reassembles handshake messages across record
// boundaries (spec §4.4). Callers pass each handshake-typed record
// payload to Feed and then call Next.
type messageCodec struct {
	buf []byte
}

func newMessageCodec() *messageCodec {
	return &messageCodec{}
}

// Feed appends newly-received handshake record payload bytes to the
// reassembly buffer.
func (c *messageCodec) Feed(data []byte) {
	c.buf = append(c.buf, data...)
}

// Next extracts exactly one message if the header and full body are
// present; extra bytes remain buffered for the next call (spec §4.4:
// "exactly one message per receive call").
func (c *messageCodec) Next() (*HandshakeMessage, bool, error) {
	if len(c.buf) < handshakeHeaderLen {
		return nil, false, nil
	}
	r := wire.NewReader(c.buf)
	var typ uint8
	var length uint32
	if !r.ReadUint8(&typ) || !r.ReadUint24(&length) {
		return nil, false, internalErrorf("handshake header read failed unexpectedly")
	}
	if r.Len() < int(length) {
		return nil, false, nil
	}
	var body []byte
	if !r.ReadBytes(&body, int(length)) {
		return nil, false, decodeErrorf("handshake message body truncated")
	}
	bodyCopy := append([]byte(nil), body...)
	consumed := handshakeHeaderLen + int(length)
	c.buf = append([]byte(nil), c.buf[consumed:]...)
	return &HandshakeMessage{Type: HandshakeType(typ), Body: bodyCopy}, true, nil
}

// EncodeHandshakeMessage frames a handshake message: type + 3-byte
// length + body, patched via wire.Builder's length-prefix stack.
func EncodeHandshakeMessage(ht HandshakeType, body []byte) []byte {
	b := wire.NewBuilder()
	b.AddUint8(uint8(ht))
	b.PushUint24Length()
	b.AddBytes(body)
	b.Pop()
	return b.Bytes()
}
