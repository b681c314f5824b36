// Package types declares the gRPC messages and service descriptor of the lock
// service by hand. Messages travel with a JSON codec registered under the
// "json" content-subtype instead of protobuf-generated code; the client from
// NewLockServiceClient selects it on every call.
package types

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the lock service messages.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
