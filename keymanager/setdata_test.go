// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/keymanager/allowedcalls"
	"github.com/ava-labs/keymanager/datakeys"
	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/permissions"
)

func TestSetDataPermissionKeys(t *testing.T) {
	var (
		someEntries = allowedcalls.List{
			callEntry(allowedcalls.CallTypeCall, targetAddr, transferSelector),
		}.Encode()
		someDataKeys, _ = datakeys.Allowed{{0xca, 0xfe}}.Encode()
		callPerms       = permissions.Combine(permissions.Call).Bytes()
		extension       = otherAddr.Bytes()
		shortPerms      = bytes.Repeat([]byte{0xaa}, 16)
		longPerms       = bytes.Repeat([]byte{0xaa}, 40)
		unknownKey      = common.HexToHash("0x4b80742de2bf00000000000000000000000000000000000000000000000000aa")
		extensionKey    = datakeys.ExtensionKey(transferSelector)
		urdKey          = datakeys.LSP1UniversalReceiverDelegateKey
	)

	tests := []struct {
		name        string
		perms       []permissions.Permission
		all         bool
		stored      map[common.Hash][]byte
		key         common.Hash
		value       []byte
		expectedErr error
		permission  permissions.Permission
	}{
		{
			name:  "add permissions",
			perms: []permissions.Permission{permissions.AddController},
			key:   datakeys.PermissionsKey(otherAddr),
			value: callPerms,
		},
		{
			name:        "edit permissions without permission",
			perms:       []permissions.Permission{permissions.AddController},
			stored:      map[common.Hash][]byte{datakeys.PermissionsKey(otherAddr): callPerms},
			key:         datakeys.PermissionsKey(otherAddr),
			value:       []byte{},
			expectedErr: ErrNotAuthorised,
			permission:  permissions.EditPermissions,
		},
		{
			name:   "edit permissions",
			perms:  []permissions.Permission{permissions.EditPermissions},
			stored: map[common.Hash][]byte{datakeys.PermissionsKey(otherAddr): callPerms},
			key:    datakeys.PermissionsKey(otherAddr),
			value:  permissions.Combine(permissions.SetData).Bytes(),
		},
		{
			name:        "invalid permissions length",
			all:         true,
			key:         datakeys.PermissionsKey(otherAddr),
			value:       make([]byte, 16),
			expectedErr: ErrInvalidDataValuesForDataKeys,
		},
		{
			name:   "permissions shorter than 32 bytes count as unset",
			perms:  []permissions.Permission{permissions.AddController},
			stored: map[common.Hash][]byte{datakeys.PermissionsKey(otherAddr): shortPerms},
			key:    datakeys.PermissionsKey(otherAddr),
			value:  callPerms,
		},
		{
			name:   "permissions longer than 32 bytes count as unset",
			perms:  []permissions.Permission{permissions.AddController},
			stored: map[common.Hash][]byte{datakeys.PermissionsKey(otherAddr): longPerms},
			key:    datakeys.PermissionsKey(otherAddr),
			value:  callPerms,
		},
		{
			name:        "edit permissions cannot overwrite a malformed value",
			perms:       []permissions.Permission{permissions.EditPermissions},
			stored:      map[common.Hash][]byte{datakeys.PermissionsKey(otherAddr): shortPerms},
			key:         datakeys.PermissionsKey(otherAddr),
			value:       callPerms,
			expectedErr: ErrNotAuthorised,
			permission:  permissions.AddController,
		},
		{
			name:        "super set data cannot add controllers",
			perms:       []permissions.Permission{permissions.SuperSetData},
			key:         datakeys.PermissionsKey(otherAddr),
			value:       callPerms,
			expectedErr: ErrNotAuthorised,
			permission:  permissions.AddController,
		},
		{
			name:        "edit allowed calls without permission",
			perms:       []permissions.Permission{permissions.AddController},
			stored:      map[common.Hash][]byte{datakeys.AllowedCallsKey(otherAddr): someEntries},
			key:         datakeys.AllowedCallsKey(otherAddr),
			value:       someEntries,
			expectedErr: ErrNotAuthorised,
			permission:  permissions.EditPermissions,
		},
		{
			name:   "all zero allowed calls count as unset",
			perms:  []permissions.Permission{permissions.AddController},
			stored: map[common.Hash][]byte{datakeys.AllowedCallsKey(otherAddr): make([]byte, 34)},
			key:    datakeys.AllowedCallsKey(otherAddr),
			value:  someEntries,
		},
		{
			name:        "invalid allowed calls",
			all:         true,
			key:         datakeys.AllowedCallsKey(otherAddr),
			value:       []byte{0x00, 0x20, 0x01},
			expectedErr: allowedcalls.ErrInvalidEncodedAllowedCalls,
		},
		{
			name:  "add allowed data keys",
			perms: []permissions.Permission{permissions.AddController},
			key:   datakeys.AllowedDataKeysKey(otherAddr),
			value: someDataKeys,
		},
		{
			name:        "edit allowed data keys without permission",
			perms:       []permissions.Permission{permissions.AddController},
			stored:      map[common.Hash][]byte{datakeys.AllowedDataKeysKey(otherAddr): someDataKeys},
			key:         datakeys.AllowedDataKeysKey(otherAddr),
			value:       someDataKeys,
			expectedErr: ErrNotAuthorised,
			permission:  permissions.EditPermissions,
		},
		{
			name:        "invalid allowed data keys",
			all:         true,
			key:         datakeys.AllowedDataKeysKey(otherAddr),
			value:       []byte{0x00, 0x21},
			expectedErr: datakeys.ErrInvalidEncodedAllowedERC725YDataKeys,
		},
		{
			name:  "grow controllers array",
			perms: []permissions.Permission{permissions.AddController},
			key:   datakeys.AddressPermissionsArrayKey,
			value: datakeys.EncodeArrayLength(1),
		},
		{
			name:        "shrink controllers array without permission",
			perms:       []permissions.Permission{permissions.AddController},
			stored:      map[common.Hash][]byte{datakeys.AddressPermissionsArrayKey: datakeys.EncodeArrayLength(2)},
			key:         datakeys.AddressPermissionsArrayKey,
			value:       datakeys.EncodeArrayLength(1),
			expectedErr: ErrNotAuthorised,
			permission:  permissions.EditPermissions,
		},
		{
			name:        "invalid controllers array length",
			all:         true,
			key:         datakeys.AddressPermissionsArrayKey,
			value:       []byte{0x01, 0x02, 0x03},
			expectedErr: ErrInvalidDataValuesForDataKeys,
		},
		{
			name:  "add controllers array element",
			perms: []permissions.Permission{permissions.AddController},
			key:   datakeys.ArrayIndexKey(0),
			value: otherAddr.Bytes(),
		},
		{
			name:        "replace controllers array element without permission",
			perms:       []permissions.Permission{permissions.AddController},
			stored:      map[common.Hash][]byte{datakeys.ArrayIndexKey(0): controllerAddr.Bytes()},
			key:         datakeys.ArrayIndexKey(0),
			value:       otherAddr.Bytes(),
			expectedErr: ErrNotAuthorised,
			permission:  permissions.EditPermissions,
		},
		{
			name:        "invalid controllers array element",
			all:         true,
			key:         datakeys.ArrayIndexKey(0),
			value:       make([]byte, 19),
			expectedErr: ErrInvalidDataValuesForDataKeys,
		},
		{
			name:        "unknown permission key",
			all:         true,
			key:         unknownKey,
			value:       []byte{1},
			expectedErr: ErrNotRecognisedPermissionKey,
		},
		{
			name:  "add universal receiver delegate",
			perms: []permissions.Permission{permissions.AddUniversalReceiverDelegate},
			key:   urdKey,
			value: extension,
		},
		{
			name:        "change universal receiver delegate without permission",
			perms:       []permissions.Permission{permissions.AddUniversalReceiverDelegate, permissions.SuperSetData},
			stored:      map[common.Hash][]byte{urdKey: extension},
			key:         urdKey,
			value:       []byte{},
			expectedErr: ErrNotAuthorised,
			permission:  permissions.ChangeUniversalReceiverDelegate,
		},
		{
			name:  "add extension",
			perms: []permissions.Permission{permissions.AddExtensions},
			key:   extensionKey,
			value: extension,
		},
		{
			name:  "add extension forwarding value",
			perms: []permissions.Permission{permissions.AddExtensions},
			key:   extensionKey,
			value: append(append([]byte{}, extension...), 0x01),
		},
		{
			name:        "invalid extension",
			all:         true,
			key:         extensionKey,
			value:       []byte{1, 2, 3, 4, 5},
			expectedErr: ErrInvalidDataValuesForDataKeys,
		},
		{
			name:        "change extension without permission",
			perms:       []permissions.Permission{permissions.AddExtensions},
			stored:      map[common.Hash][]byte{extensionKey: extension},
			key:         extensionKey,
			value:       []byte{},
			expectedErr: ErrNotAuthorised,
			permission:  permissions.ChangeExtensions,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			if test.all {
				env.grantAll(t, controllerAddr)
			} else {
				env.grant(t, controllerAddr, test.perms...)
			}
			for key, value := range test.stored {
				env.set(t, key, value)
			}

			_, err := env.km.Execute(controllerAddr, nil, packSetData(t, test.key, test.value))
			require.ErrorIs(err, test.expectedErr)
			if test.expectedErr == nil {
				require.Equal(test.value, env.get(t, test.key))
				return
			}
			if test.expectedErr == ErrNotAuthorised {
				var notAuthorised *NotAuthorisedError
				require.ErrorAs(err, &notAuthorised)
				require.Equal(test.permission, notAuthorised.Permission)
			}
		})
	}
}

func TestSetDataAllowedDataKeys(t *testing.T) {
	allowedKey := common.HexToHash("0xcafe000000000000000000000000000000000000000000000000000000000001")
	otherKey := common.HexToHash("0xbeef000000000000000000000000000000000000000000000000000000000001")

	tests := []struct {
		name        string
		perms       []permissions.Permission
		prefixes    [][]byte
		key         common.Hash
		expectedErr error
	}{
		{
			name:     "allowed prefix",
			perms:    []permissions.Permission{permissions.SetData},
			prefixes: [][]byte{{0xca, 0xfe}},
			key:      allowedKey,
		},
		{
			name:     "exact key",
			perms:    []permissions.Permission{permissions.SetData},
			prefixes: [][]byte{allowedKey.Bytes()},
			key:      allowedKey,
		},
		{
			name:        "outside prefixes",
			perms:       []permissions.Permission{permissions.SetData},
			prefixes:    [][]byte{{0xca, 0xfe}},
			key:         otherKey,
			expectedErr: ErrNotAllowedERC725YDataKey,
		},
		{
			name:        "no allowed data keys",
			perms:       []permissions.Permission{permissions.SetData},
			key:         allowedKey,
			expectedErr: ErrNoERC725YDataKeysAllowed,
		},
		{
			name:        "no set data",
			perms:       []permissions.Permission{permissions.Call},
			prefixes:    [][]byte{{0xca, 0xfe}},
			key:         allowedKey,
			expectedErr: ErrNotAuthorised,
		},
		{
			name:  "super set data",
			perms: []permissions.Permission{permissions.SuperSetData},
			key:   otherKey,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.grant(t, controllerAddr, test.perms...)
			if len(test.prefixes) > 0 {
				env.allowDataKeys(t, controllerAddr, test.prefixes...)
			}

			_, err := env.km.Execute(controllerAddr, nil, packSetData(t, test.key, []byte{1}))
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestSetDataBatch(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grant(t, controllerAddr, permissions.SetData, permissions.AddController)
	env.allowDataKeys(t, controllerAddr, []byte{0xca, 0xfe})

	payload, err := erc725.PackSetDataBatch(nil)
	require.NoError(err)
	_, err = env.km.Execute(controllerAddr, nil, payload)
	require.ErrorIs(err, ErrDataKeysValuesEmptyArray)

	payload, err = erc725.ERC725ABI.Pack("setDataBatch", [][32]byte{{0xca, 0xfe}}, [][]byte{})
	require.NoError(err)
	_, err = env.km.Execute(controllerAddr, nil, payload)
	require.ErrorIs(err, ErrDataKeysValuesLengthMismatch)

	dataKey := common.HexToHash("0xcafe000000000000000000000000000000000000000000000000000000000002")
	payload, err = erc725.PackSetDataBatch([]erc725.SetDataInput{
		{Key: dataKey, Value: []byte{1}},
		{Key: datakeys.PermissionsKey(otherAddr), Value: permissions.Combine(permissions.Sign).Bytes()},
	})
	require.NoError(err)
	_, err = env.km.Execute(controllerAddr, nil, payload)
	require.NoError(err)
	require.Equal([]byte{1}, env.get(t, dataKey))

	perms, err := env.km.Store().Permissions(otherAddr)
	require.NoError(err)
	require.True(perms.Has(permissions.Sign))
}
