// Package protocol implements nexsockd's binary request/response wire
// format: length-delimited frames, a deterministic payload codec, a
// message-type handler registry, and a full-duplex stream transport.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies the start of every frame: ASCII "NEX" followed by a
// NUL byte.
var Magic = [4]byte{'N', 'E', 'X', 0}

// DefaultVersion is the protocol version this package encodes.
const DefaultVersion uint16 = 1

// HeaderSize is the size in bytes of the fixed frame header, not
// including the 4-byte payload length that follows it.
const HeaderSize = 4 + 2 + 2 + 4 + 2 // magic + version + message_type + sequence + flags

// FrameFlags is a bitset carried in the frame header.
type FrameFlags uint16

const (
	FlagNone         FrameFlags = 0
	FlagHasPayload   FrameFlags = 1 << 0
	FlagCompressed   FrameFlags = 1 << 1
	FlagEncrypted    FrameFlags = 1 << 2
	FlagRequiresAck  FrameFlags = 1 << 3
)

// Has reports whether all bits of other are set in f.
func (f FrameFlags) Has(other FrameFlags) bool {
	return f&other == other
}

// Frame is the length-delimited wire unit exchanged over a Transport.
type Frame struct {
	Magic       [4]byte
	Version     uint16
	MessageType uint16
	Sequence    uint32
	Flags       FrameFlags
	Payload     []byte
}

// NewFrame builds a frame with the current default magic and version.
func NewFrame(messageType uint16, sequence uint32, flags FrameFlags, payload []byte) Frame {
	if len(payload) > 0 {
		flags |= FlagHasPayload
	}
	return Frame{
		Magic:       Magic,
		Version:     DefaultVersion,
		MessageType: messageType,
		Sequence:    sequence,
		Flags:       flags,
		Payload:     payload,
	}
}

// HasPayload reports whether the HAS_PAYLOAD flag is set.
func (f Frame) HasPayload() bool {
	return f.Flags.Has(FlagHasPayload)
}

// Encode serializes f into the wire representation: a 14-byte header,
// a 4-byte big-endian payload length, then the payload bytes. Encode
// is infallible for any well-formed in-memory Frame.
func (f Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+4+len(f.Payload))

	copy(buf[0:4], f.Magic[:])
	binary.BigEndian.PutUint16(buf[4:6], f.Version)
	binary.BigEndian.PutUint16(buf[6:8], f.MessageType)
	binary.BigEndian.PutUint32(buf[8:12], f.Sequence)
	binary.BigEndian.PutUint16(buf[12:14], uint16(f.Flags))
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Payload)))
	copy(buf[18:], f.Payload)

	return buf
}

// DecodeFrame parses a Frame out of buf. buf must contain the full
// header, the 4-byte length prefix, and at least payload_length bytes
// of payload; any bytes beyond the frame are ignored.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize+4 {
		return Frame{}, fmt.Errorf("%w: buffer too small for frame header", ErrInvalidData)
	}

	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != Magic {
		return Frame{}, fmt.Errorf("%w: invalid magic bytes", ErrInvalidData)
	}

	version := binary.BigEndian.Uint16(buf[4:6])
	messageType := binary.BigEndian.Uint16(buf[6:8])
	sequence := binary.BigEndian.Uint32(buf[8:12])
	flags := FrameFlags(binary.BigEndian.Uint16(buf[12:14]))
	payloadLen := binary.BigEndian.Uint32(buf[14:18])

	rest := buf[18:]
	if uint64(payloadLen) > uint64(len(rest)) {
		return Frame{}, fmt.Errorf("%w: buffer too small for payload", ErrInvalidData)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		copy(payload, rest[:payloadLen])
	}

	return Frame{
		Magic:       magic,
		Version:     version,
		MessageType: messageType,
		Sequence:    sequence,
		Flags:       flags,
		Payload:     payload,
	}, nil
}
