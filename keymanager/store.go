// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ava-labs/keymanager/allowedcalls"
	"github.com/ava-labs/keymanager/datakeys"
	"github.com/ava-labs/keymanager/permissions"
)

// MaxEnumeratedControllers bounds the length of AddressPermissions[] that
// Controllers will walk.
const MaxEnumeratedControllers = 1 << 16

var errTooManyControllers = errors.New("too many controllers to enumerate")

// ControllerRecord is everything stored about a single controller.
type ControllerRecord struct {
	Address         common.Address
	Permissions     permissions.Set
	AllowedCalls    allowedcalls.List
	AllowedDataKeys datakeys.Allowed
}

// Store reads controller records from the data store of a profile.
type Store struct {
	data DataReader
}

func NewStore(data DataReader) *Store {
	return &Store{data: data}
}

// Permissions returns the permissions of [controller].
func (s *Store) Permissions(controller common.Address) (permissions.Set, error) {
	raw, err := s.data.GetData(datakeys.PermissionsKey(controller))
	if err != nil {
		return permissions.Set{}, err
	}
	return permissions.FromBytes(raw), nil
}

// AllowedCalls returns the decoded allowed calls of [controller].
func (s *Store) AllowedCalls(controller common.Address) (allowedcalls.List, error) {
	raw, err := s.data.GetData(datakeys.AllowedCallsKey(controller))
	if err != nil {
		return nil, err
	}
	return allowedcalls.Decode(raw)
}

// AllowedDataKeys returns the decoded allowed ERC725Y data keys of
// [controller].
func (s *Store) AllowedDataKeys(controller common.Address) (datakeys.Allowed, error) {
	raw, err := s.data.GetData(datakeys.AllowedDataKeysKey(controller))
	if err != nil {
		return nil, err
	}
	return datakeys.DecodeAllowed(raw)
}

// Controller returns the full record of [controller]. Undecodable allowed
// calls or allowed data keys are reported as errors.
func (s *Store) Controller(controller common.Address) (ControllerRecord, error) {
	values, err := s.data.GetDataBatch([]common.Hash{
		datakeys.PermissionsKey(controller),
		datakeys.AllowedCallsKey(controller),
		datakeys.AllowedDataKeysKey(controller),
	})
	if err != nil {
		return ControllerRecord{}, err
	}

	calls, err := allowedcalls.Decode(values[1])
	if err != nil {
		return ControllerRecord{}, err
	}
	keys, err := datakeys.DecodeAllowed(values[2])
	if err != nil {
		return ControllerRecord{}, err
	}
	return ControllerRecord{
		Address:         controller,
		Permissions:     permissions.FromBytes(values[0]),
		AllowedCalls:    calls,
		AllowedDataKeys: keys,
	}, nil
}

// ControllersLength returns the stored length of AddressPermissions[].
func (s *Store) ControllersLength() (*uint256.Int, error) {
	raw, err := s.data.GetData(datakeys.AddressPermissionsArrayKey)
	if err != nil {
		return nil, err
	}
	return bytes16(raw), nil
}

// Controllers returns every address listed in AddressPermissions[] in index
// order. Cleared elements are skipped.
func (s *Store) Controllers() ([]common.Address, error) {
	length, err := s.ControllersLength()
	if err != nil {
		return nil, err
	}
	if !length.IsUint64() || length.Uint64() > MaxEnumeratedControllers {
		return nil, fmt.Errorf("%w: %s", errTooManyControllers, length.Hex())
	}

	n := length.Uint64()
	keys := make([]common.Hash, n)
	for i := range keys {
		keys[i] = datakeys.ArrayIndexKey(uint64(i))
	}
	values, err := s.data.GetDataBatch(keys)
	if err != nil {
		return nil, err
	}

	controllers := make([]common.Address, 0, n)
	for _, value := range values {
		if len(value) != datakeys.ArrayElementLen {
			continue
		}
		controllers = append(controllers, common.BytesToAddress(value))
	}
	return controllers, nil
}

// bytes16 reads [raw] the way a bytes16 cast does and returns it as an
// unsigned integer.
func bytes16(raw []byte) *uint256.Int {
	var word [datakeys.ArrayLengthLen]byte
	copy(word[:], raw)
	return new(uint256.Int).SetBytes(word[:])
}
