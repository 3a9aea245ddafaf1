// Package header defines the metadata records that identify distributed
// structures and the cache key layout they are stored under.
//
// One header exists per structure name. Its id is assigned once at creation
// and is the durable handle used by registries, change events and removal
// broadcasts; the name is only a lookup key.
//
// Key layout:
//
//	hdr:queue:<name>           queue header
//	hdr:set:<name>             set header
//	item:queue:<queueID>:<n>   queue slot n
//	item:set:<setID>:<member>  set member
package header

import (
	"strconv"
	"strings"

	"github.com/xraph/datastruct/id"
)

// Kind distinguishes structure types.
type Kind uint8

const (
	KindQueue Kind = iota + 1
	KindSet
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindQueue:
		return "queue"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

const (
	queueHeaderPrefix = "hdr:queue:"
	setHeaderPrefix   = "hdr:set:"
	queueItemPrefix   = "item:queue:"
	setItemPrefix     = "item:set:"
)

// QueueHeaderKey returns the cache key of the header for the named queue.
func QueueHeaderKey(name string) string { return queueHeaderPrefix + name }

// SetHeaderKey returns the cache key of the header for the named set.
func SetHeaderKey(name string) string { return setHeaderPrefix + name }

// IsQueueHeaderKey reports whether key belongs to the queue header namespace.
func IsQueueHeaderKey(key string) bool { return strings.HasPrefix(key, queueHeaderPrefix) }

// IsSetHeaderKey reports whether key belongs to the set header namespace.
func IsSetHeaderKey(key string) bool { return strings.HasPrefix(key, setHeaderPrefix) }

// IsHeaderKey reports whether key is any structure header key.
func IsHeaderKey(key string) bool { return IsQueueHeaderKey(key) || IsSetHeaderKey(key) }

// NameOf returns the structure kind and name encoded in a header key.
func NameOf(key string) (Kind, string, bool) {
	if name, ok := strings.CutPrefix(key, queueHeaderPrefix); ok {
		return KindQueue, name, true
	}
	if name, ok := strings.CutPrefix(key, setHeaderPrefix); ok {
		return KindSet, name, true
	}
	return 0, "", false
}

// QueueItemKey returns the cache key of slot idx of a queue.
func QueueItemKey(queueID id.ID, idx int64) string {
	return queueItemPrefix + queueID.String() + ":" + strconv.FormatInt(idx, 10)
}

// SetItemPrefix returns the key prefix shared by every member of a set.
func SetItemPrefix(setID id.ID) string {
	return setItemPrefix + setID.String() + ":"
}

// SetItemKey returns the cache key for a set member. The member must be of
// a known type (see KnownType).
func SetItemKey(setID id.ID, member any) (string, error) {
	enc, err := EncodeMember(member)
	if err != nil {
		return "", err
	}
	return SetItemPrefix(setID) + enc, nil
}

// IsSetItemOf reports whether key is a member key of the given set.
func IsSetItemOf(key string, setID id.ID) bool {
	return strings.HasPrefix(key, SetItemPrefix(setID))
}

// IsSetItemKey reports whether key is a member key of any set.
func IsSetItemKey(key string) bool { return strings.HasPrefix(key, setItemPrefix) }

// IsQueueItemKey reports whether key is a slot key of any queue.
func IsQueueItemKey(key string) bool { return strings.HasPrefix(key, queueItemPrefix) }

// ──────────────────────────────────────────────────
// Queue header
// ──────────────────────────────────────────────────

// QueueHeader identifies and configures one distributed queue. Head and
// Tail are the indexes of the first occupied and the next free slot.
type QueueHeader struct {
	ID         id.ID `json:"id" msgpack:"id"`
	Capacity   int   `json:"capacity" msgpack:"capacity"`
	Collocated bool  `json:"collocated" msgpack:"collocated"`
	Head       int64 `json:"head" msgpack:"head"`
	Tail       int64 `json:"tail" msgpack:"tail"`
}

// NewQueueHeader returns an empty header with a fresh id. A capacity of
// zero or less means unbounded.
func NewQueueHeader(capacity int, collocated bool) QueueHeader {
	if capacity < 0 {
		capacity = 0
	}
	return QueueHeader{ID: id.NewQueueID(), Capacity: capacity, Collocated: collocated}
}

// Size returns the number of occupied slots.
func (h QueueHeader) Size() int64 { return h.Tail - h.Head }

// Empty reports whether the queue holds no items.
func (h QueueHeader) Empty() bool { return h.Head == h.Tail }

// Bounded reports whether the queue has a capacity limit.
func (h QueueHeader) Bounded() bool { return h.Capacity > 0 }

// Full reports whether a bounded queue has reached its capacity.
func (h QueueHeader) Full() bool { return h.Bounded() && h.Size() >= int64(h.Capacity) }

// Compatible reports whether the header was created with the given
// configuration.
func (h QueueHeader) Compatible(capacity int, collocated bool) bool {
	if capacity < 0 {
		capacity = 0
	}
	return h.Capacity == capacity && h.Collocated == collocated
}

// ──────────────────────────────────────────────────
// Set header
// ──────────────────────────────────────────────────

// SetHeader identifies and configures one distributed set. Separated sets
// keep their members in a dedicated cache (see CacheName).
type SetHeader struct {
	ID         id.ID `json:"id" msgpack:"id"`
	Collocated bool  `json:"collocated" msgpack:"collocated"`
	Separated  bool  `json:"separated" msgpack:"separated"`
}

// NewSetHeader returns a header with a fresh id.
func NewSetHeader(collocated, separated bool) SetHeader {
	return SetHeader{ID: id.NewSetID(), Collocated: collocated, Separated: separated}
}

// Compatible reports whether the header was created with the given
// configuration.
func (h SetHeader) Compatible(collocated, separated bool) bool {
	return h.Collocated == collocated && h.Separated == separated
}

// CacheName returns the name of the dedicated cache of a separated set.
func (h SetHeader) CacheName() string { return "datastruct-" + h.ID.String() }

// ──────────────────────────────────────────────────
// Value coercion
// ──────────────────────────────────────────────────

// AsQueueHeader extracts a QueueHeader from a cache value.
func AsQueueHeader(v any) (QueueHeader, bool) {
	switch h := v.(type) {
	case QueueHeader:
		return h, true
	case *QueueHeader:
		if h == nil {
			return QueueHeader{}, false
		}
		return *h, true
	default:
		return QueueHeader{}, false
	}
}

// AsSetHeader extracts a SetHeader from a cache value.
func AsSetHeader(v any) (SetHeader, bool) {
	switch h := v.(type) {
	case SetHeader:
		return h, true
	case *SetHeader:
		if h == nil {
			return SetHeader{}, false
		}
		return *h, true
	default:
		return SetHeader{}, false
	}
}
