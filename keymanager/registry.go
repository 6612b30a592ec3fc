// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/keymanager/allowedcalls"
	"github.com/ava-labs/keymanager/datakeys"
	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/permissions"
)

// The registry helpers build setData payloads and run them through Execute
// with [editor] as the caller, so they are authorized exactly like any other
// write to the permission data keys.

// SetPermissions overwrites the permissions of [target].
func (k *KeyManager) SetPermissions(editor, target common.Address, perms permissions.Set) error {
	return k.setData(editor, []erc725.SetDataInput{
		{Key: datakeys.PermissionsKey(target), Value: encodePermissions(perms)},
	})
}

// SetAllowedCalls overwrites the allowed calls of [target].
func (k *KeyManager) SetAllowedCalls(editor, target common.Address, entries []allowedcalls.Entry) error {
	return k.setData(editor, []erc725.SetDataInput{
		{Key: datakeys.AllowedCallsKey(target), Value: allowedcalls.List(entries).Encode()},
	})
}

// SetAllowedDataKeys overwrites the allowed ERC725Y data keys of [target].
func (k *KeyManager) SetAllowedDataKeys(editor, target common.Address, prefixes [][]byte) error {
	value, err := datakeys.Allowed(prefixes).Encode()
	if err != nil {
		return err
	}
	return k.setData(editor, []erc725.SetDataInput{
		{Key: datakeys.AllowedDataKeysKey(target), Value: value},
	})
}

// AddController grants [perms] to [target] and appends it to
// AddressPermissions[] unless it is already listed.
func (k *KeyManager) AddController(editor, target common.Address, perms permissions.Set) error {
	controllers, err := k.store.Controllers()
	if err != nil {
		return err
	}
	if slices.Contains(controllers, target) {
		return k.SetPermissions(editor, target, perms)
	}

	length, err := k.store.ControllersLength()
	if err != nil {
		return err
	}
	if !length.IsUint64() {
		return errTooManyControllers
	}
	index := length.Uint64()
	return k.setData(editor, []erc725.SetDataInput{
		{Key: datakeys.AddressPermissionsArrayKey, Value: datakeys.EncodeArrayLength(index + 1)},
		{Key: datakeys.ArrayIndexKey(index), Value: target.Bytes()},
		{Key: datakeys.PermissionsKey(target), Value: encodePermissions(perms)},
	})
}

// RemoveController clears the permissions of [target]. Its entry in
// AddressPermissions[] is left in place.
func (k *KeyManager) RemoveController(editor, target common.Address) error {
	return k.setData(editor, []erc725.SetDataInput{
		{Key: datakeys.PermissionsKey(target), Value: []byte{}},
	})
}

func (k *KeyManager) setData(editor common.Address, inputs []erc725.SetDataInput) error {
	var (
		payload []byte
		err     error
	)
	if len(inputs) == 1 {
		payload, err = erc725.PackSetData(inputs[0].Key, inputs[0].Value)
	} else {
		payload, err = erc725.PackSetDataBatch(inputs)
	}
	if err != nil {
		return err
	}
	_, err = k.Execute(editor, new(uint256.Int), payload)
	return err
}

func encodePermissions(perms permissions.Set) []byte {
	if perms.IsZero() {
		return []byte{}
	}
	return perms.Bytes()
}
