// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package compactbytes implements the LSP2 CompactBytesArray encoding: a
// concatenation of elements, each prefixed with its length as a big-endian
// uint16.
package compactbytes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const lengthPrefixLen = 2

var (
	ErrTruncatedLength  = errors.New("truncated element length")
	ErrTruncatedElement = errors.New("element exceeds array bounds")
	ErrElementTooLong   = errors.New("element exceeds maximum length")
)

// Decode splits [raw] into its elements. The returned elements alias [raw].
func Decode(raw []byte) ([][]byte, error) {
	var elements [][]byte
	err := Walk(raw, func(_ int, element []byte) error {
		elements = append(elements, element)
		return nil
	})
	return elements, err
}

// Walk calls [f] with the index and contents of every element of [raw] in
// order. It stops at the first error returned by [f] or found while parsing.
func Walk(raw []byte, f func(i int, element []byte) error) error {
	for i, pointer := 0, 0; pointer < len(raw); i++ {
		if pointer+lengthPrefixLen > len(raw) {
			return fmt.Errorf("%w at offset %d", ErrTruncatedLength, pointer)
		}
		length := int(binary.BigEndian.Uint16(raw[pointer:]))
		start := pointer + lengthPrefixLen
		end := start + length
		if end > len(raw) {
			return fmt.Errorf("%w: element %d ends at %d, array length %d", ErrTruncatedElement, i, end, len(raw))
		}
		if err := f(i, raw[start:end]); err != nil {
			return err
		}
		pointer = end
	}
	return nil
}

// Encode concatenates [elements] with their length prefixes.
func Encode(elements [][]byte) ([]byte, error) {
	size := 0
	for i, element := range elements {
		if len(element) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: element %d has length %d", ErrElementTooLong, i, len(element))
		}
		size += lengthPrefixLen + len(element)
	}

	raw := make([]byte, 0, size)
	for _, element := range elements {
		raw = binary.BigEndian.AppendUint16(raw, uint16(len(element)))
		raw = append(raw, element...)
	}
	return raw, nil
}

// IsZero reports whether every byte of [raw] is zero. An empty value is zero.
func IsZero(raw []byte) bool {
	for _, b := range raw {
		if b != 0 {
			return false
		}
	}
	return true
}
