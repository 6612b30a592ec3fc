// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package allowedcalls implements the encoding and matching of the calls a
// controller with plain (non SUPER_) call permissions may make.
package allowedcalls

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/keymanager/utils/compactbytes"
)

var ErrInvalidEncodedAllowedCalls = errors.New("invalid encoded allowed calls")

// InterfaceChecker reports whether [target] supports the ERC165 interface
// [interfaceID].
type InterfaceChecker func(target common.Address, interfaceID [4]byte) bool

// Call describes an outgoing call to be checked against a List.
type Call struct {
	// Required holds every call type bit the matching entry must carry.
	Required CallType
	Target   common.Address
	Selector [4]byte
}

// List is the decoded allowed-calls record of a controller. An empty List is
// "disabled" and allows nothing.
type List []Entry

// Decode parses a stored allowed-calls value. Empty and all-zero values
// decode to a disabled List.
func Decode(raw []byte) (List, error) {
	if compactbytes.IsZero(raw) {
		return nil, nil
	}

	var list List
	err := compactbytes.Walk(raw, func(i int, element []byte) error {
		entry, err := ParseEntry(element)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		list = append(list, entry)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidEncodedAllowedCalls) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncodedAllowedCalls, err)
	}
	return list, nil
}

// Validate returns an error if [raw] is not a valid allowed-calls value.
func Validate(raw []byte) error {
	_, err := Decode(raw)
	return err
}

// Encode returns the compact bytes array encoding of [l].
func (l List) Encode() []byte {
	elements := make([][]byte, len(l))
	for i, entry := range l {
		elements[i] = entry.Bytes()
	}
	// Entries are always EntryLen bytes long so encoding cannot fail.
	raw, _ := compactbytes.Encode(elements)
	return raw
}

func (l List) Disabled() bool {
	return len(l) == 0
}

// Match returns the first entry allowing [call]. [supports] is only consulted
// for entries that restrict the standard and otherwise match.
func (l List) Match(call Call, supports InterfaceChecker) (Entry, bool) {
	for _, entry := range l {
		if entry.Matches(call, supports) {
			return entry, true
		}
	}
	return Entry{}, false
}

// Matches reports whether [e] allows [call].
func (e Entry) Matches(call Call, supports InterfaceChecker) bool {
	if !e.CallTypes.Has(call.Required) {
		return false
	}
	if !e.Target.Matches(call.Target) {
		return false
	}
	if !e.Selector.Matches(call.Selector) {
		return false
	}
	standard, ok := e.Standard.Value()
	if !ok {
		return true
	}
	return supports != nil && supports(call.Target, standard)
}
