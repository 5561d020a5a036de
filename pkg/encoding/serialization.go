// Package encoding turns request and response values into payload bytes.
package encoding

import (
	"encoding/json"
	"fmt"
)

// Serializable is implemented by values that encode themselves.
type Serializable interface {
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}

// Codec encodes call arguments and results for stubs and skeletons.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

// JSONCodec implements Codec with encoding/json. Values implementing
// Serializable encode themselves.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	if s, ok := v.(Serializable); ok {
		return s.Serialize()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal %T: %w", v, err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if s, ok := v.(Serializable); ok {
		return s.Deserialize(data)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal %T: %w", v, err)
	}
	return nil
}

func (JSONCodec) ContentType() string {
	return "application/json"
}
