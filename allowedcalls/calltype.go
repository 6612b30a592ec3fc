// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package allowedcalls

import "strings"

// CallType is the 4-byte restriction bitmask of an allowed-calls entry.
type CallType uint32

const (
	CallTypeValue CallType = 1 << iota
	CallTypeCall
	CallTypeStaticCall
	CallTypeDelegateCall
)

// Has reports whether every bit of [required] is set.
func (c CallType) Has(required CallType) bool {
	return c&required == required
}

func (c CallType) String() string {
	var strs []string
	if c&CallTypeValue != 0 {
		strs = append(strs, "VALUE")
	}
	if c&CallTypeCall != 0 {
		strs = append(strs, "CALL")
	}
	if c&CallTypeStaticCall != 0 {
		strs = append(strs, "STATICCALL")
	}
	if c&CallTypeDelegateCall != 0 {
		strs = append(strs, "DELEGATECALL")
	}
	if len(strs) == 0 {
		return "NONE"
	}
	return strings.Join(strs, "|")
}
