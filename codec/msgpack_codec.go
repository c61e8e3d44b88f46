package codec

import (
	"github.com/vmihailenco/msgpack"
)

// Msgpack is the reference payload codec: a compact binary form in which a
// union's Kind tag and each field travel in declaration order.
type Msgpack struct{}

func (Msgpack) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (Msgpack) Name() string { return "msgpack" }
