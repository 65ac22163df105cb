package assetclient

import (
	"bytes"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the grpc content-subtype this codec registers under; every
// call to the asset daemon passes grpc.CallContentSubtype(codecName) so
// requests are framed through rawCodec instead of a protobuf codec.
const codecName = "citadel-raw"

// rawCodec marshals our own strict-encoded request/reply structs directly,
// exercising the real grpc/grpc-middleware/grpc-prometheus stack without
// requiring a protoc code-generation step.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(rawMessage)
	if !ok {
		return nil, fmt.Errorf("assetclient: %T does not implement rawMessage", v)
	}
	var buf bytes.Buffer
	if err := msg.StrictEncode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(rawMessage)
	if !ok {
		return fmt.Errorf("assetclient: %T does not implement rawMessage", v)
	}
	return msg.StrictDecode(bytes.NewReader(data))
}

func (rawCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
