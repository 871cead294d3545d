package codec

import "github.com/bytedance/sonic"

// JSON is the default Serializer: a JSON-like text codec over UTF-8 byte
// payloads, backed by sonic for low-allocation encode/decode.
type JSON struct{}

// NewJSON returns the default serializer.
func NewJSON() JSON { return JSON{} }

func (JSON) Serialize(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (JSON) Deserialize(data []byte, target any) error {
	if err := sonic.Unmarshal(data, target); err != nil {
		return &DeserializationError{Err: err}
	}
	return nil
}
