package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		NewFrame(MsgListServices, 0xDEADBEEF, FlagNone, nil),
		NewFrame(MsgGetServiceStatus, 1, FlagHasPayload, []byte(`{"id":1}`)),
		NewFrame(MsgError, 42, FlagRequiresAck, []byte(`{"code":0,"message":"boom"}`)),
	}

	for _, frame := range cases {
		encoded := frame.Encode()
		decoded, err := DecodeFrame(encoded)
		require.NoError(t, err)
		assert.Equal(t, frame.Magic, decoded.Magic)
		assert.Equal(t, frame.Version, decoded.Version)
		assert.Equal(t, frame.MessageType, decoded.MessageType)
		assert.Equal(t, frame.Sequence, decoded.Sequence)
		assert.Equal(t, frame.Flags, decoded.Flags)
		assert.Equal(t, frame.Payload, decoded.Payload)
	}
}

func TestDecodeFrameRejectsShortBuffer(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestDecodeFrameRejectsBadMagic(t *testing.T) {
	frame := NewFrame(MsgListServices, 1, FlagNone, nil)
	encoded := frame.Encode()
	encoded[0] = 'X'
	_, err := DecodeFrame(encoded)
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestDecodeFrameRejectsOversizedPayloadLength(t *testing.T) {
	frame := NewFrame(MsgListServices, 1, FlagNone, []byte("hi"))
	encoded := frame.Encode()
	// Claim a payload far larger than what actually follows.
	encoded[17] = 0xFF
	_, err := DecodeFrame(encoded)
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestNewFrameSetsHasPayloadWhenNonEmpty(t *testing.T) {
	frame := NewFrame(MsgStartService, 1, FlagNone, []byte("x"))
	assert.True(t, frame.HasPayload())

	empty := NewFrame(MsgListServices, 1, FlagNone, nil)
	assert.False(t, empty.HasPayload())
}

func TestFrameSequenceEcho(t *testing.T) {
	const sequence = 0xDEADBEEF
	frame := NewFrame(MsgListServices, sequence, FlagNone, nil)
	decoded, err := DecodeFrame(frame.Encode())
	require.NoError(t, err)
	assert.EqualValues(t, sequence, decoded.Sequence)
}
