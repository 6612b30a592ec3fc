// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package datakeys defines the ERC725Y data keys the key manager reads and
// guards, and the encoding of the allowed data keys list.
package datakeys

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// ArrayLengthLen is the byte length of an LSP2 array length value.
	ArrayLengthLen = 16
	// ArrayElementLen is the byte length of an AddressPermissions[] element.
	ArrayElementLen = common.AddressLength
)

var (
	// AddressPermissionsArrayKey stores the number of controllers.
	AddressPermissionsArrayKey = common.HexToHash("0xdf30dba06db6a30e65354d9a64c609861f089545ca58c6b4dbe31a5f338cb0e3")

	// LSP1UniversalReceiverDelegateKey stores the default universal receiver
	// delegate of the profile.
	LSP1UniversalReceiverDelegateKey = common.HexToHash("0x0cfc51aec37c55a4d0b1a65c6255c4bf2fbdf6277f3cc0730c45b828b6db8b47")

	// AddressPermissionsArrayPrefix is the first half of every
	// AddressPermissions[] index key.
	AddressPermissionsArrayPrefix = mustPrefix("0xdf30dba06db6a30e65354d9a64c60986", 16)

	// AddressPermissionsNamespace covers every AddressPermissions:<...> key.
	AddressPermissionsNamespace = mustPrefix("0x4b80742de2bf", 6)

	PermissionsPrefix                   = mustPrefix("0x4b80742de2bf82acb3630000", 12)
	AllowedCallsPrefix                  = mustPrefix("0x4b80742de2bf393a64c70000", 12)
	AllowedERC725YDataKeysPrefix        = mustPrefix("0x4b80742de2bf866c29110000", 12)
	LSP1UniversalReceiverDelegatePrefix = mustPrefix("0x0cfc51aec37c55a4d0b10000", 12)
	LSP17ExtensionPrefix                = mustPrefix("0xcee78b4094da860110960000", 12)

	ErrInvalidArrayLength  = errors.New("invalid AddressPermissions[] length value")
	ErrInvalidArrayElement = errors.New("invalid AddressPermissions[] element value")
)

func mustPrefix(hex string, length int) []byte {
	b := common.FromHex(hex)
	if len(b) != length {
		panic(fmt.Sprintf("prefix %s has length %d, expected %d", hex, len(b), length))
	}
	return b
}

// Kind classifies an ERC725Y data key by the permission guarding writes to it.
type Kind uint8

const (
	KindOther Kind = iota
	KindArrayLength
	KindArrayIndex
	KindPermissions
	KindAllowedCalls
	KindAllowedDataKeys
	KindUnknownPermissionKey
	KindUniversalReceiverDelegate
	KindExtension
)

func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindArrayLength:
		return "AddressPermissions[]"
	case KindArrayIndex:
		return "AddressPermissions[index]"
	case KindPermissions:
		return "AddressPermissions:Permissions"
	case KindAllowedCalls:
		return "AddressPermissions:AllowedCalls"
	case KindAllowedDataKeys:
		return "AddressPermissions:AllowedERC725YDataKeys"
	case KindUnknownPermissionKey:
		return "AddressPermissions:unknown"
	case KindUniversalReceiverDelegate:
		return "LSP1UniversalReceiverDelegate"
	case KindExtension:
		return "LSP17Extension"
	default:
		return "unknown"
	}
}

// IsControllerKey reports whether writes to keys of this kind change the set
// of controllers or their permissions.
func (k Kind) IsControllerKey() bool {
	switch k {
	case KindArrayLength, KindArrayIndex, KindPermissions, KindAllowedCalls, KindAllowedDataKeys, KindUnknownPermissionKey:
		return true
	default:
		return false
	}
}

// Classify returns the kind of [key]. The array length key shares its first
// 16 bytes with the index keys so it is matched first.
func Classify(key common.Hash) Kind {
	switch {
	case key == AddressPermissionsArrayKey:
		return KindArrayLength
	case hasPrefix(key, AddressPermissionsArrayPrefix):
		return KindArrayIndex
	case hasPrefix(key, AddressPermissionsNamespace):
		switch {
		case hasPrefix(key, PermissionsPrefix):
			return KindPermissions
		case hasPrefix(key, AllowedCallsPrefix):
			return KindAllowedCalls
		case hasPrefix(key, AllowedERC725YDataKeysPrefix):
			return KindAllowedDataKeys
		default:
			return KindUnknownPermissionKey
		}
	case key == LSP1UniversalReceiverDelegateKey, hasPrefix(key, LSP1UniversalReceiverDelegatePrefix):
		return KindUniversalReceiverDelegate
	case hasPrefix(key, LSP17ExtensionPrefix):
		return KindExtension
	default:
		return KindOther
	}
}

func hasPrefix(key common.Hash, prefix []byte) bool {
	for i, b := range prefix {
		if key[i] != b {
			return false
		}
	}
	return true
}

func mappingKey(prefix []byte, addr common.Address) common.Hash {
	var key common.Hash
	copy(key[:], prefix)
	copy(key[len(prefix):], addr[:])
	return key
}

// PermissionsKey is AddressPermissions:Permissions:<addr>.
func PermissionsKey(addr common.Address) common.Hash {
	return mappingKey(PermissionsPrefix, addr)
}

// AllowedCallsKey is AddressPermissions:AllowedCalls:<addr>.
func AllowedCallsKey(addr common.Address) common.Hash {
	return mappingKey(AllowedCallsPrefix, addr)
}

// AllowedDataKeysKey is AddressPermissions:AllowedERC725YDataKeys:<addr>.
func AllowedDataKeysKey(addr common.Address) common.Hash {
	return mappingKey(AllowedERC725YDataKeysPrefix, addr)
}

// ExtensionKey is LSP17Extension:<selector>.
func ExtensionKey(selector [4]byte) common.Hash {
	var key common.Hash
	copy(key[:], LSP17ExtensionPrefix)
	copy(key[len(LSP17ExtensionPrefix):], selector[:])
	return key
}

// Controller returns the address embedded in a controller mapping key.
func Controller(key common.Hash) common.Address {
	return common.BytesToAddress(key[len(PermissionsPrefix):])
}

// ArrayIndexKey is AddressPermissions[index].
func ArrayIndexKey(index uint64) common.Hash {
	var key common.Hash
	copy(key[:], AddressPermissionsArrayPrefix)
	binary.BigEndian.PutUint64(key[common.HashLength-8:], index)
	return key
}

// ParseArrayLength decodes an AddressPermissions[] length value. An empty
// value is a zero length.
func ParseArrayLength(value []byte) (*uint256.Int, error) {
	switch len(value) {
	case 0:
		return new(uint256.Int), nil
	case ArrayLengthLen:
		return new(uint256.Int).SetBytes(value), nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidArrayLength, len(value))
	}
}

// EncodeArrayLength encodes [length] as a 16-byte uint128.
func EncodeArrayLength(length uint64) []byte {
	b := make([]byte, ArrayLengthLen)
	binary.BigEndian.PutUint64(b[ArrayLengthLen-8:], length)
	return b
}

// ValidateArrayElement checks an AddressPermissions[index] value. An empty
// value clears the element.
func ValidateArrayElement(value []byte) error {
	if len(value) != 0 && len(value) != ArrayElementLen {
		return fmt.Errorf("%w: length %d", ErrInvalidArrayElement, len(value))
	}
	return nil
}
