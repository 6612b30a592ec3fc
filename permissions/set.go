// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package permissions

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Set is an opaque 256-bit permission bitmask. The zero value holds no
// permissions.
type Set struct {
	bits uint256.Int
}

// All sets every defined permission.
var All = Combine(Defined()...)

// Combine returns the Set holding every permission in [ps].
func Combine(ps ...Permission) Set {
	var s Set
	return s.Add(ps...)
}

// FromBytes reads a stored permission value the way a bytes32 cast does:
// values shorter than 32 bytes are zero-padded on the right and longer ones
// keep their first 32 bytes.
func FromBytes(raw []byte) Set {
	var word [common.HashLength]byte
	copy(word[:], raw)

	var s Set
	s.bits.SetBytes32(word[:])
	return s
}

// FromHash reads [h] as a permission bitmask.
func FromHash(h common.Hash) Set {
	return FromBytes(h[:])
}

// FromUint256 wraps [v] as a permission bitmask.
func FromUint256(v *uint256.Int) Set {
	var s Set
	s.bits.Set(v)
	return s
}

func (s Set) Add(ps ...Permission) Set {
	for _, p := range ps {
		var bit uint256.Int
		bit.Lsh(uint256.NewInt(1), uint(p))
		s.bits.Or(&s.bits, &bit)
	}
	return s
}

func (s Set) Remove(ps ...Permission) Set {
	mask := Combine(ps...)
	var inverted uint256.Int
	inverted.Not(&mask.bits)
	s.bits.And(&s.bits, &inverted)
	return s
}

func (s Set) Union(other Set) Set {
	s.bits.Or(&s.bits, &other.bits)
	return s
}

// Has reports whether the bit for [p] is set.
func (s Set) Has(p Permission) bool {
	var bit uint256.Int
	bit.Lsh(uint256.NewInt(1), uint(p))
	bit.And(&bit, &s.bits)
	return !bit.IsZero()
}

// HasAll reports whether every bit of [required] is set in [s].
func (s Set) HasAll(required Set) bool {
	var masked uint256.Int
	masked.And(&s.bits, &required.bits)
	return masked.Eq(&required.bits)
}

// HasAny reports whether [s] holds at least one of [ps].
func (s Set) HasAny(ps ...Permission) bool {
	for _, p := range ps {
		if s.Has(p) {
			return true
		}
	}
	return false
}

func (s Set) IsZero() bool {
	return s.bits.IsZero()
}

// IsAll reports whether [s] holds every defined permission.
func (s Set) IsAll() bool {
	return s.HasAll(All)
}

// Permissions lists the defined permissions held by [s] in bit order.
func (s Set) Permissions() []Permission {
	var ps []Permission
	for _, p := range Defined() {
		if s.Has(p) {
			ps = append(ps, p)
		}
	}
	return ps
}

func (s Set) Uint256() *uint256.Int {
	return new(uint256.Int).Set(&s.bits)
}

// Hash returns the 32-byte big-endian storage encoding of [s].
func (s Set) Hash() common.Hash {
	return common.Hash(s.bits.Bytes32())
}

func (s Set) Bytes() []byte {
	h := s.Hash()
	return h[:]
}

// String renders the set as a 0x-prefixed 32-byte hex word.
func (s Set) String() string {
	return s.Hash().Hex()
}

// Describe renders the names of the held permissions joined with "|".
func (s Set) Describe() string {
	ps := s.Permissions()
	if len(ps) == 0 {
		return "NONE"
	}
	if s.IsAll() {
		return "ALL_PERMISSIONS"
	}
	strs := make([]string, len(ps))
	for i, p := range ps {
		strs[i] = p.String()
	}
	return strings.Join(strs, "|")
}

func (s Set) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Set) UnmarshalText(text []byte) error {
	raw, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	*s = FromBytes(raw)
	return nil
}

// ParseNames builds a Set from permission names. "ALL_PERMISSIONS" expands to
// All.
func ParseNames(names ...string) (Set, error) {
	var s Set
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), "ALL_PERMISSIONS") {
			s = s.Union(All)
			continue
		}
		p, err := Parse(name)
		if err != nil {
			return Set{}, err
		}
		s = s.Add(p)
	}
	return s, nil
}
