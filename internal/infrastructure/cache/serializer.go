package cache

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Serializer converts cache values to and from bytes
type Serializer[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONSerializer encodes values as JSON
type JSONSerializer[V any] struct{}

// Encode implements Serializer
func (JSONSerializer[V]) Encode(v V) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements Serializer
func (JSONSerializer[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode json cache value: %w", err)
	}
	return v, nil
}

// Int64ProtoSerializer encodes counters as a protobuf Int64Value
type Int64ProtoSerializer struct{}

// Encode implements Serializer
func (Int64ProtoSerializer) Encode(v int64) ([]byte, error) {
	return proto.Marshal(wrapperspb.Int64(v))
}

// Decode implements Serializer
func (Int64ProtoSerializer) Decode(data []byte) (int64, error) {
	var msg wrapperspb.Int64Value
	if err := proto.Unmarshal(data, &msg); err != nil {
		return 0, fmt.Errorf("failed to decode protobuf cache value: %w", err)
	}
	return msg.GetValue(), nil
}

var (
	_ Serializer[map[string]any] = JSONSerializer[map[string]any]{}
	_ Serializer[int64]          = Int64ProtoSerializer{}
)
