package redis

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/datastruct/header"
)

// Envelope kinds. Headers are tagged so that they decode back into their
// Go types; every other value decodes through MessagePack's dynamic
// decoding (integers as int64/uint64, maps as map[string]any).
const (
	kindValue uint8 = iota + 1
	kindQueueHeader
	kindSetHeader
)

type envelope struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused // msgpack array layout

	Kind uint8
	Data msgpack.RawMessage
}

func encodeValue(v any) ([]byte, error) {
	env := envelope{Kind: kindValue}
	switch h := v.(type) {
	case header.QueueHeader:
		env.Kind = kindQueueHeader
	case *header.QueueHeader:
		env.Kind, v = kindQueueHeader, *h
	case header.SetHeader:
		env.Kind = kindSetHeader
	case *header.SetHeader:
		env.Kind, v = kindSetHeader, *h
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("datastruct/redis: encode %T: %w", v, err)
	}
	env.Data = data
	return msgpack.Marshal(&env)
}

// decodeValue decodes a stored envelope. Empty input decodes to nil.
func decodeValue(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("datastruct/redis: decode envelope: %w", err)
	}

	switch env.Kind {
	case kindQueueHeader:
		var h header.QueueHeader
		if err := msgpack.Unmarshal(env.Data, &h); err != nil {
			return nil, fmt.Errorf("datastruct/redis: decode queue header: %w", err)
		}
		return h, nil
	case kindSetHeader:
		var h header.SetHeader
		if err := msgpack.Unmarshal(env.Data, &h); err != nil {
			return nil, fmt.Errorf("datastruct/redis: decode set header: %w", err)
		}
		return h, nil
	default:
		dec := msgpack.NewDecoder(bytes.NewReader(env.Data))
		dec.UseLooseInterfaceDecoding(true)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("datastruct/redis: decode value: %w", err)
		}
		return v, nil
	}
}
