// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/keymanager/allowedcalls"
	"github.com/ava-labs/keymanager/datakeys"
	"github.com/ava-labs/keymanager/permissions"
	"github.com/ava-labs/keymanager/utils/compactbytes"
)

// LSP17 extension values are an address, optionally followed by a flag byte
// that forwards the call value to the extension.
const extensionWithValueLen = common.AddressLength + 1

// verifySetData authorizes writing [values] under [keys]. Every key is
// judged against the state stored before the write.
func (k *KeyManager) verifySetData(caller common.Address, perms permissions.Set, keys []common.Hash, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("%w: %d keys, %d values", ErrDataKeysValuesLengthMismatch, len(keys), len(values))
	}
	if len(keys) == 0 {
		return ErrDataKeysValuesEmptyArray
	}

	var (
		allowed       datakeys.Allowed
		loadedAllowed bool
	)
	for i, key := range keys {
		required, guarded, err := k.requiredToSetData(key, values[i])
		if err != nil {
			return err
		}
		if guarded {
			if !perms.Has(required) {
				return notAuthorised(caller, required)
			}
			continue
		}

		if perms.Has(permissions.SuperSetData) {
			continue
		}
		if !perms.Has(permissions.SetData) {
			return notAuthorised(caller, permissions.SetData)
		}
		if !loadedAllowed {
			allowed, err = k.store.AllowedDataKeys(caller)
			if err != nil {
				return err
			}
			loadedAllowed = true
		}
		if allowed.Disabled() {
			return noDataKeysAllowed(caller)
		}
		if !allowed.Allows(key) {
			return &NotAllowedERC725YDataKeyError{Controller: caller, Key: key}
		}
	}
	return nil
}

// requiredToSetData returns the permission guarding a write of [value] to
// [key]. The returned bool is false for keys that are only restricted by
// SETDATA and the allowed data keys.
func (k *KeyManager) requiredToSetData(key common.Hash, value []byte) (permissions.Permission, bool, error) {
	switch datakeys.Classify(key) {
	case datakeys.KindArrayLength:
		newLength, err := datakeys.ParseArrayLength(value)
		if err != nil {
			return 0, true, &InvalidDataValueError{Key: key, Value: value}
		}
		storedLength, err := k.store.ControllersLength()
		if err != nil {
			return 0, true, err
		}
		if newLength.Gt(storedLength) {
			return permissions.AddController, true, nil
		}
		return permissions.EditPermissions, true, nil

	case datakeys.KindArrayIndex:
		if err := datakeys.ValidateArrayElement(value); err != nil {
			return 0, true, &InvalidDataValueError{Key: key, Value: value}
		}
		return k.addOrEdit(key, isEmpty, permissions.AddController, permissions.EditPermissions)

	case datakeys.KindPermissions:
		if len(value) != 0 && len(value) != common.HashLength {
			return 0, true, &InvalidDataValueError{Key: key, Value: value}
		}
		return k.addOrEdit(key, isNoPermissions, permissions.AddController, permissions.EditPermissions)

	case datakeys.KindAllowedCalls:
		if err := allowedcalls.Validate(value); err != nil {
			return 0, true, err
		}
		return k.addOrEdit(key, compactbytes.IsZero, permissions.AddController, permissions.EditPermissions)

	case datakeys.KindAllowedDataKeys:
		if err := datakeys.ValidateAllowed(value); err != nil {
			return 0, true, err
		}
		return k.addOrEdit(key, compactbytes.IsZero, permissions.AddController, permissions.EditPermissions)

	case datakeys.KindUnknownPermissionKey:
		return 0, true, fmt.Errorf("%w: %s", ErrNotRecognisedPermissionKey, key)

	case datakeys.KindUniversalReceiverDelegate:
		return k.addOrEdit(key, isEmpty, permissions.AddUniversalReceiverDelegate, permissions.ChangeUniversalReceiverDelegate)

	case datakeys.KindExtension:
		switch len(value) {
		case 0, common.AddressLength, extensionWithValueLen:
		default:
			return 0, true, &InvalidDataValueError{Key: key, Value: value}
		}
		return k.addOrEdit(key, isEmpty, permissions.AddExtensions, permissions.ChangeExtensions)

	default:
		return 0, false, nil
	}
}

// addOrEdit returns [add] if the value stored under [key] is unset according
// to [unset], [edit] otherwise.
func (k *KeyManager) addOrEdit(
	key common.Hash,
	unset func([]byte) bool,
	add permissions.Permission,
	edit permissions.Permission,
) (permissions.Permission, bool, error) {
	stored, err := k.profile.GetData(key)
	if err != nil {
		return 0, true, err
	}
	if unset(stored) {
		return add, true, nil
	}
	return edit, true, nil
}

func isEmpty(value []byte) bool {
	return len(value) == 0
}

// isNoPermissions reports whether [value] does not hold a permission
// bitmask. Values that are not exactly 32 bytes long never do.
func isNoPermissions(value []byte) bool {
	return len(value) != common.HashLength || permissions.FromBytes(value).IsZero()
}
