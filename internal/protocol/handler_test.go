package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDispatchesToHandler(t *testing.T) {
	reg := NewRegistry()
	RegisterHandler(reg, MsgGetServiceStatus, MsgSuccess, func(ctx context.Context, req *ServiceRef) (*ServiceStatus, error) {
		return &ServiceStatus{ID: 1, Name: "alpha", State: StateStopped}, nil
	})

	name := "alpha"
	reqPayload, err := Encode(ServiceRef{Name: &name})
	require.NoError(t, err)

	req := NewFrame(MsgGetServiceStatus, 7, FlagHasPayload, reqPayload)
	resp := reg.Dispatch(context.Background(), req)

	assert.Equal(t, MsgSuccess, resp.MessageType)
	assert.EqualValues(t, 7, resp.Sequence)

	var status ServiceStatus
	require.NoError(t, Decode(resp.Payload, &status))
	assert.Equal(t, "alpha", status.Name)
}

func TestRegistryUnknownMessageTypeProducesError(t *testing.T) {
	reg := NewRegistry()
	req := NewFrame(9999, 3, FlagNone, nil)
	resp := reg.Dispatch(context.Background(), req)

	assert.Equal(t, MsgError, resp.MessageType)
	assert.EqualValues(t, 3, resp.Sequence)

	var errPayload ErrorPayload
	require.NoError(t, Decode(resp.Payload, &errPayload))
	assert.Equal(t, CodeUnknownMessageType, errPayload.Code)
}

func TestRegistryHandlerErrorClassifiesCode(t *testing.T) {
	reg := NewRegistry()
	RegisterHandler(reg, MsgStartService, MsgSuccess, func(ctx context.Context, req *StartServicePayload) (*Empty, error) {
		return nil, NewError(CodePreconditionFailed, "already running")
	})

	req := NewFrame(MsgStartService, 1, FlagHasPayload, []byte(`{}`))
	resp := reg.Dispatch(context.Background(), req)

	assert.Equal(t, MsgError, resp.MessageType)
	var errPayload ErrorPayload
	require.NoError(t, Decode(resp.Payload, &errPayload))
	assert.Equal(t, CodePreconditionFailed, errPayload.Code)
	assert.Contains(t, errPayload.Message, "already running")
}

func TestRegistryDecodeFailureProducesDeserializationError(t *testing.T) {
	reg := NewRegistry()
	RegisterHandler(reg, MsgStartService, MsgSuccess, func(ctx context.Context, req *StartServicePayload) (*Empty, error) {
		return &Empty{}, nil
	})

	req := NewFrame(MsgStartService, 1, FlagHasPayload, []byte("not json"))
	resp := reg.Dispatch(context.Background(), req)

	assert.Equal(t, MsgError, resp.MessageType)
	var errPayload ErrorPayload
	require.NoError(t, Decode(resp.Payload, &errPayload))
	assert.Equal(t, CodeDeserialization, errPayload.Code)
}
