package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName content-subtype，實際的 content-type 為 application/grpc+json
const CodecName = "json"

// jsonCodec 以 JSON 編碼訊息，讓純 Go struct 可以直接走 gRPC
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
