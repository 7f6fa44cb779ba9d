package objstore

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// codec speaks the protobuf binary format. Storage messages use their own
// AppendWire/UnmarshalWire; anything generated by protoc (health checks, for
// example) goes through the regular proto runtime.
type codec struct{}

// Codec returns the gRPC codec for the Storage service.
func Codec() encoding.Codec { return codec{} }

func (codec) Name() string { return "proto" }

func (codec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		return m.AppendWire(nil), nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, errors.Errorf("objstore: cannot marshal %T", v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case Message:
		return m.UnmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return errors.Errorf("objstore: cannot unmarshal into %T", v)
}

// ServerOptions must be passed to grpc.NewServer for any server that registers
// the Storage service.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(codec{})}
}
