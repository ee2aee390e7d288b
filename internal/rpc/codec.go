package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc-go's encoding package and
// selected via grpc.CallContentSubtype so every RPC in this package rides
// JSON frames instead of protobuf wire format. There is no protoc/buf
// toolchain in this build; grpc-go's encoding.Codec interface is the
// documented extension point for exactly this situation, so we use it
// instead of hand-rolling a transport.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec by delegating to encoding/json. The
// request/response types registered in messages.go are plain structs with
// json tags; grpc-go only requires Marshal/Unmarshal/Name.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: json marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: json unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return jsonCodecName
}
