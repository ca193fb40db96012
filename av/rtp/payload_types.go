package rtp

import (
	"fmt"
	"sort"
)

// MaxPayloadType is the largest payload type an RTP header can carry.
const MaxPayloadType = 127

// PayloadTypeMap associates RTX payload types with the payload types of
// the media they retransmit.
//
// A PayloadTypeMap is an immutable snapshot: the constructor copies its
// input and no method modifies it afterwards, so one value may be shared
// by any number of goroutines. Replacing the association means building
// a new snapshot.
type PayloadTypeMap struct {
	entries map[uint8]uint8
}

// NewPayloadTypeMap builds a snapshot from an RTX→media payload type map.
//
// Both keys and values must be valid RTP payload types (0-127). An empty
// or nil map is accepted and yields an empty snapshot.
func NewPayloadTypeMap(associations map[uint8]uint8) (PayloadTypeMap, error) {
	entries := make(map[uint8]uint8, len(associations))
	for rtxPT, mediaPT := range associations {
		if rtxPT > MaxPayloadType {
			return PayloadTypeMap{}, fmt.Errorf("%w: rtx payload type %d", ErrInvalidPayloadType, rtxPT)
		}
		if mediaPT > MaxPayloadType {
			return PayloadTypeMap{}, fmt.Errorf("%w: associated payload type %d", ErrInvalidPayloadType, mediaPT)
		}
		entries[rtxPT] = mediaPT
	}
	return PayloadTypeMap{entries: entries}, nil
}

// MustPayloadTypeMap is like NewPayloadTypeMap but panics on error.
// Intended for fixed tables in tests and package-level variables.
func MustPayloadTypeMap(associations map[uint8]uint8) PayloadTypeMap {
	m, err := NewPayloadTypeMap(associations)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup returns the media payload type associated with rtxPT.
func (m PayloadTypeMap) Lookup(rtxPT uint8) (uint8, bool) {
	mediaPT, ok := m.entries[rtxPT]
	return mediaPT, ok
}

// Len returns the number of associations.
func (m PayloadTypeMap) Len() int {
	return len(m.entries)
}

// Entries returns a copy of the associations.
func (m PayloadTypeMap) Entries() map[uint8]uint8 {
	out := make(map[uint8]uint8, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// String renders the associations as "rtx->media" pairs in key order.
func (m PayloadTypeMap) String() string {
	keys := make([]int, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)

	s := "["
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d->%d", k, m.entries[uint8(k)])
	}
	return s + "]"
}
