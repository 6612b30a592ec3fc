// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import "errors"

// GetOrEmpty returns the value stored under [key], or an empty slice when the
// key is missing.
func GetOrEmpty(db KeyValueReader, key []byte) ([]byte, error) {
	value, err := db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return []byte{}, nil
	}
	return value, err
}
