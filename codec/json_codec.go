package codec

import (
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON serializes unions as JSON objects. Larger on the wire than Msgpack
// but trivially inspectable from any language.
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

func (JSON) Decode(data []byte, v any) error {
	return jsonAPI.Unmarshal(data, v)
}

func (JSON) Name() string { return "json" }
