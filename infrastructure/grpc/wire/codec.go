package wire

import (
	"citychat/codec"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the hub stream.
const CodecName = "cbor"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec carries frames as deterministic CBOR instead of protobuf.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(*Frame); !ok {
		return nil, fmt.Errorf("cbor codec: unexpected message type %T", v)
	}
	return codec.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(*Frame); !ok {
		return fmt.Errorf("cbor codec: unexpected message type %T", v)
	}
	return codec.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
