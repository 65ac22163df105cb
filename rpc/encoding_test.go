package rpc

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMarshalRequestRoundTrip covers the framing MarshalRequest/Dispatch
// agree on: a RequestType byte followed by the encoded payload.
func TestMarshalRequestRoundTrip(t *testing.T) {
	req := ContractIDRequest{}
	frame, err := MarshalRequest(ReqDeleteContract, req.StrictEncode)
	require.NoError(t, err)
	require.Equal(t, byte(ReqDeleteContract), frame[0])

	var decoded ContractIDRequest
	require.NoError(t, decoded.StrictDecode(bytes.NewReader(frame[1:])))
	require.Equal(t, req.ContractID, decoded.ContractID)
}

// TestMarshalRequestNoPayload covers requests with no body, such as
// list-identities / list-assets, where encode is nil.
func TestMarshalRequestNoPayload(t *testing.T) {
	frame, err := MarshalRequest(ReqListIdentities, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{byte(ReqListIdentities)}, frame)
}

// TestUnmarshalReplySuccess covers decoding a well-formed success reply,
// the shape encodeFailureReply's counterpart (Dispatch's success branch)
// produces on the wire.
func TestUnmarshalReplySuccess(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	frame := append([]byte{replyKindSuccess}, payload...)

	var got []byte
	err := UnmarshalReply(frame, func(r io.Reader) error {
		var readErr error
		got, readErr = io.ReadAll(r)
		return readErr
	})
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestUnmarshalReplyFailure covers Dispatch's failure-reply framing: a
// replyKindFailure byte followed by a strict-encoded error string, surfaced
// back to the caller as a Go error rather than handed to decode.
func TestUnmarshalReplyFailure(t *testing.T) {
	wantErr := fmt.Errorf("contract not found")
	frame := encodeFailureReply(wantErr)

	err := UnmarshalReply(frame, func(io.Reader) error {
		t.Fatal("decode should not be called on a failure reply")
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), wantErr.Error())
}

// TestUnmarshalReplyEmptyFrame covers the malformed-wire edge case of a
// zero-length reply frame.
func TestUnmarshalReplyEmptyFrame(t *testing.T) {
	err := UnmarshalReply(nil, nil)
	require.Error(t, err)
}
