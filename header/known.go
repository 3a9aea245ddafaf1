package header

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/google/uuid"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/id"
)

// KnownType reports whether v is of a type every node can decode without
// application code: strings, booleans, sized integers, floats, UUIDs, ids
// and big numbers. A nil value is known.
func KnownType(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		uuid.UUID, id.ID, *big.Int, *big.Float:
		return true
	default:
		return false
	}
}

// EncodeMember renders a known-type member as a stable, type-tagged string.
// Values of different types never collide: int32(1) and int64(1) are
// distinct members.
func EncodeMember(v any) (string, error) {
	switch m := v.(type) {
	case string:
		return "s:" + m, nil
	case bool:
		return "b:" + strconv.FormatBool(m), nil
	case int:
		return "i:" + strconv.FormatInt(int64(m), 10), nil
	case int8:
		return "i8:" + strconv.FormatInt(int64(m), 10), nil
	case int16:
		return "i16:" + strconv.FormatInt(int64(m), 10), nil
	case int32:
		return "i32:" + strconv.FormatInt(int64(m), 10), nil
	case int64:
		return "i64:" + strconv.FormatInt(m, 10), nil
	case uint:
		return "u:" + strconv.FormatUint(uint64(m), 10), nil
	case uint8:
		return "u8:" + strconv.FormatUint(uint64(m), 10), nil
	case uint16:
		return "u16:" + strconv.FormatUint(uint64(m), 10), nil
	case uint32:
		return "u32:" + strconv.FormatUint(uint64(m), 10), nil
	case uint64:
		return "u64:" + strconv.FormatUint(m, 10), nil
	case float32:
		return "f32:" + strconv.FormatFloat(float64(m), 'g', -1, 32), nil
	case float64:
		return "f64:" + strconv.FormatFloat(m, 'g', -1, 64), nil
	case uuid.UUID:
		return "uuid:" + m.String(), nil
	case id.ID:
		return "id:" + m.String(), nil
	case *big.Int:
		if m == nil {
			break
		}
		return "bi:" + m.String(), nil
	case *big.Float:
		if m == nil {
			break
		}
		return "bf:" + m.Text('g', -1), nil
	}
	return "", fmt.Errorf("%w: %T", datastruct.ErrUnsupportedMember, v)
}
