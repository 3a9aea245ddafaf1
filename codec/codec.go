// Package codec provides the serialization used for broadcast-call payloads
// and for values written to byte-oriented cache backends.
package codec

// Codec defines the serialization contract.
type Codec interface {
	// Marshal serializes v to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v, which must be a pointer.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// Codec name constants.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. Defaults to msgpack.
func Get(name string) Codec {
	switch name {
	case NameJSON:
		return JSON{}
	default:
		return Msgpack{}
	}
}

// Default returns the codec used when none is configured.
func Default() Codec { return Msgpack{} }
