package protocol

import "encoding/json"

// Serializer defines the contract for serializing and deserializing request
// and response payloads. This allows the API tier to choose its preferred
// format while interacting with the engine.
type Serializer interface {
	// Marshal serializes a Go struct (e.g. CreateOrderRequest) into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a Go struct.
	// v must be a pointer to the target struct.
	Unmarshal(data []byte, v any) error
}

// DefaultJSONSerializer is the default Serializer implementation using
// encoding/json.
type DefaultJSONSerializer struct{}

func (s *DefaultJSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *DefaultJSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
