package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Proto serializes payloads that are protobuf messages. Values handed to it
// must implement proto.Message; anything else is an encoding error, not a
// panic.
type Proto struct{}

func (Proto) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (Proto) Decode(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}

func (Proto) Name() string { return "proto" }
