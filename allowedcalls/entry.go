// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package allowedcalls

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// EntryLen is the width of an encoded entry:
	// callTypes(4) | address(20) | interfaceId(4) | selector(4)
	EntryLen = 4 + common.AddressLength + 4 + 4

	targetOffset   = 4
	standardOffset = targetOffset + common.AddressLength
	selectorOffset = standardOffset + 4
)

// Slot is either a wildcard, encoded as all 0xff bytes, or an exact value.
type Slot[T comparable] struct {
	value T
	any   bool
}

func Any[T comparable]() Slot[T] {
	return Slot[T]{any: true}
}

func Exact[T comparable](v T) Slot[T] {
	return Slot[T]{value: v}
}

func (s Slot[T]) IsAny() bool {
	return s.any
}

// Value returns the exact value of the slot. It returns false for a wildcard.
func (s Slot[T]) Value() (T, bool) {
	return s.value, !s.any
}

// Matches reports whether [v] is accepted by the slot.
func (s Slot[T]) Matches(v T) bool {
	return s.any || s.value == v
}

// Entry is a single allowed-calls record.
type Entry struct {
	CallTypes CallType
	Target    Slot[common.Address]
	Standard  Slot[[4]byte]
	Selector  Slot[[4]byte]
}

// ParseEntry decodes a 32-byte entry.
func ParseEntry(b []byte) (Entry, error) {
	if len(b) != EntryLen {
		return Entry{}, fmt.Errorf("%w: entry has length %d, expected %d", ErrInvalidEncodedAllowedCalls, len(b), EntryLen)
	}
	return Entry{
		CallTypes: CallType(binary.BigEndian.Uint32(b)),
		Target:    parseSlot[common.Address](b[targetOffset:standardOffset], common.BytesToAddress),
		Standard:  parseSlot[[4]byte](b[standardOffset:selectorOffset], toBytes4),
		Selector:  parseSlot[[4]byte](b[selectorOffset:], toBytes4),
	}, nil
}

func parseSlot[T comparable](b []byte, convert func([]byte) T) Slot[T] {
	if isWildcard(b) {
		return Any[T]()
	}
	return Exact(convert(b))
}

func isWildcard(b []byte) bool {
	for _, v := range b {
		if v != 0xff {
			return false
		}
	}
	return true
}

func toBytes4(b []byte) [4]byte {
	var out [4]byte
	copy(out[:], b)
	return out
}

// Bytes returns the 32-byte encoding of [e].
func (e Entry) Bytes() []byte {
	b := make([]byte, EntryLen)
	binary.BigEndian.PutUint32(b, uint32(e.CallTypes))
	putSlot(b[targetOffset:standardOffset], e.Target, func(a common.Address) []byte { return a[:] })
	putSlot(b[standardOffset:selectorOffset], e.Standard, func(v [4]byte) []byte { return v[:] })
	putSlot(b[selectorOffset:], e.Selector, func(v [4]byte) []byte { return v[:] })
	return b
}

func putSlot[T comparable](dst []byte, s Slot[T], raw func(T) []byte) {
	v, ok := s.Value()
	if !ok {
		copy(dst, bytes.Repeat([]byte{0xff}, len(dst)))
		return
	}
	copy(dst, raw(v))
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s %s",
		e.CallTypes,
		slotString(e.Target, func(a common.Address) string { return a.Hex() }),
		slotString(e.Standard, func(v [4]byte) string { return hexutil.Encode(v[:]) }),
		slotString(e.Selector, func(v [4]byte) string { return hexutil.Encode(v[:]) }),
	)
}

func slotString[T comparable](s Slot[T], format func(T) string) string {
	v, ok := s.Value()
	if !ok {
		return "ANY"
	}
	return format(v)
}
