// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package allowedcalls

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const anyStr = "ANY"

var (
	ErrUnknownCallType = errors.New("unknown call type")
	ErrMalformedEntry  = errors.New("malformed allowed call")
)

// ParseCallType is the inverse of CallType.String.
func ParseCallType(s string) (CallType, error) {
	var c CallType
	for _, name := range strings.Split(s, "|") {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "NONE":
		case "VALUE":
			c |= CallTypeValue
		case "CALL":
			c |= CallTypeCall
		case "STATICCALL":
			c |= CallTypeStaticCall
		case "DELEGATECALL":
			c |= CallTypeDelegateCall
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnknownCallType, name)
		}
	}
	return c, nil
}

// ParseEntryString is the inverse of Entry.String: it reads
// "<callTypes> <target> <interfaceId> <selector>" where any of the last three
// may be ANY.
func ParseEntryString(s string) (Entry, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedEntry, len(fields))
	}

	callTypes, err := ParseCallType(fields[0])
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		CallTypes: callTypes,
		Target:    Any[common.Address](),
		Standard:  Any[[4]byte](),
		Selector:  Any[[4]byte](),
	}
	if !strings.EqualFold(fields[1], anyStr) {
		if !common.IsHexAddress(fields[1]) {
			return Entry{}, fmt.Errorf("%w: invalid target %q", ErrMalformedEntry, fields[1])
		}
		entry.Target = Exact(common.HexToAddress(fields[1]))
	}
	if entry.Standard, err = parseBytes4Slot(fields[2]); err != nil {
		return Entry{}, err
	}
	if entry.Selector, err = parseBytes4Slot(fields[3]); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func parseBytes4Slot(s string) (Slot[[4]byte], error) {
	if strings.EqualFold(s, anyStr) {
		return Any[[4]byte](), nil
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != 4 {
		return Slot[[4]byte]{}, fmt.Errorf("%w: invalid 4 byte value %q", ErrMalformedEntry, s)
	}
	return Exact(toBytes4(b)), nil
}
