package events

import (
	"encoding/json"
	"fmt"
)

// Codec frames records on the wire. Both monitor streams and the outbox
// use JSON.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

type jsonCodec struct{}

func NewJSONCodec() Codec {
	return jsonCodec{}
}

func (jsonCodec) Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}
