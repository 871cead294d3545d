// Package codec defines the pluggable byte-array <-> typed-value
// serializer the processing worker uses to decode deliveries.
package codec

import "fmt"

// Serializer converts between raw broker bytes and a typed value. A
// Serializer must be pure and safe for concurrent use: the same instance
// is shared by every subscription of a Queue Consumer.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, target any) error
}

// DeserializationError wraps the underlying codec failure with the
// context the Rejection Handler needs.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("warren: deserialize: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }
