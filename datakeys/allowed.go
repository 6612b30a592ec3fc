// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package datakeys

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/keymanager/utils/compactbytes"
)

var ErrInvalidEncodedAllowedERC725YDataKeys = errors.New("invalid encoded allowed ERC725Y data keys")

// Allowed is the decoded AllowedERC725YDataKeys record of a controller: a list
// of key prefixes between 1 and 32 bytes long. An empty list is "disabled"
// and allows nothing.
type Allowed [][]byte

// DecodeAllowed parses a stored AllowedERC725YDataKeys value. Empty and
// all-zero values decode to a disabled list.
func DecodeAllowed(raw []byte) (Allowed, error) {
	if compactbytes.IsZero(raw) {
		return nil, nil
	}

	var allowed Allowed
	err := compactbytes.Walk(raw, func(i int, element []byte) error {
		if len(element) == 0 || len(element) > common.HashLength {
			return fmt.Errorf("element %d has length %d", i, len(element))
		}
		allowed = append(allowed, element)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncodedAllowedERC725YDataKeys, err)
	}
	return allowed, nil
}

// ValidateAllowed returns an error if [raw] is not a valid
// AllowedERC725YDataKeys value.
func ValidateAllowed(raw []byte) error {
	_, err := DecodeAllowed(raw)
	return err
}

// Encode returns the compact bytes array encoding of [a].
func (a Allowed) Encode() ([]byte, error) {
	for i, prefix := range a {
		if len(prefix) == 0 || len(prefix) > common.HashLength {
			return nil, fmt.Errorf("%w: element %d has length %d", ErrInvalidEncodedAllowedERC725YDataKeys, i, len(prefix))
		}
	}
	return compactbytes.Encode(a)
}

func (a Allowed) Disabled() bool {
	return len(a) == 0
}

// Allows reports whether some prefix of [a] is a prefix of [key].
func (a Allowed) Allows(key common.Hash) bool {
	for _, prefix := range a {
		if bytes.HasPrefix(key[:], prefix) {
			return true
		}
	}
	return false
}
