// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/ava-labs/keymanager/permissions"
)

// Authorization errors
var (
	ErrNotAuthorised              = errors.New("not authorised")
	ErrNoPermissionsSet           = errors.New("no permissions set")
	ErrNoCallsAllowed             = errors.New("no calls allowed")
	ErrNotAllowedCall             = errors.New("not allowed call")
	ErrNoERC725YDataKeysAllowed   = errors.New("no ERC725Y data keys allowed")
	ErrNotAllowedERC725YDataKey   = errors.New("not allowed ERC725Y data key")
	ErrNotRecognisedPermissionKey = errors.New("not recognised permission key")

	ErrDelegateCallDisallowedViaKeyManager = errors.New("delegate call disallowed via key manager")
	ErrCallingKeyManagerNotAllowed         = errors.New("calling key manager not allowed")
)

// Payload errors
var (
	ErrInvalidPayload               = errors.New("invalid payload")
	ErrInvalidERC725Function        = errors.New("invalid ERC725 function")
	ErrUnknownOperationType         = errors.New("unknown operation type")
	ErrInvalidDataValuesForDataKeys = errors.New("invalid data values for data keys")
	ErrDataKeysValuesLengthMismatch = errors.New("data keys and values length mismatch")
	ErrDataKeysValuesEmptyArray     = errors.New("data keys and values empty arrays")
)

// Batch and relay errors
var (
	ErrBatchExecuteParamsLengthMismatch          = errors.New("batch execute params length mismatch")
	ErrBatchExecuteRelayCallParamsLengthMismatch = errors.New("batch execute relay call params length mismatch")
	ErrInsufficientValueSent                     = errors.New("insufficient value sent")
	ErrExcessiveValueSent                        = errors.New("excessive value sent")
	ErrValueOverflow                             = errors.New("total value overflows")
	ErrInvalidRelayNonce                         = errors.New("invalid relay nonce")
	ErrInvalidSignature                          = errors.New("invalid signature")
)

// NotAuthorisedError reports the permission [Controller] lacks.
type NotAuthorisedError struct {
	Controller common.Address
	Permission permissions.Permission
}

func (e *NotAuthorisedError) Error() string {
	return fmt.Sprintf("%s: %s does not have %s", ErrNotAuthorised, e.Controller, e.Permission)
}

func (*NotAuthorisedError) Unwrap() error {
	return ErrNotAuthorised
}

func notAuthorised(controller common.Address, p permissions.Permission) error {
	return &NotAuthorisedError{Controller: controller, Permission: p}
}

// NotAllowedCallError reports a call that no allowed-calls entry of
// [Controller] matches.
type NotAllowedCallError struct {
	Controller common.Address
	Target     common.Address
	Selector   [4]byte
}

func (e *NotAllowedCallError) Error() string {
	return fmt.Sprintf("%s: %s cannot call %s with selector %s",
		ErrNotAllowedCall, e.Controller, e.Target, hexutil.Encode(e.Selector[:]))
}

func (*NotAllowedCallError) Unwrap() error {
	return ErrNotAllowedCall
}

// NotAllowedERC725YDataKeyError reports a data key outside the allowed data
// keys of [Controller].
type NotAllowedERC725YDataKeyError struct {
	Controller common.Address
	Key        common.Hash
}

func (e *NotAllowedERC725YDataKeyError) Error() string {
	return fmt.Sprintf("%s: %s cannot set %s", ErrNotAllowedERC725YDataKey, e.Controller, e.Key)
}

func (*NotAllowedERC725YDataKeyError) Unwrap() error {
	return ErrNotAllowedERC725YDataKey
}

// InvalidDataValueError reports a value that cannot be stored under a
// permission data key.
type InvalidDataValueError struct {
	Key   common.Hash
	Value []byte
}

func (e *InvalidDataValueError) Error() string {
	return fmt.Sprintf("%s: %s => %s", ErrInvalidDataValuesForDataKeys, e.Key, hexutil.Encode(e.Value))
}

func (*InvalidDataValueError) Unwrap() error {
	return ErrInvalidDataValuesForDataKeys
}

// InvalidRelayNonceError reports a relay call whose nonce is not the next
// nonce of the recovered signer.
type InvalidRelayNonceError struct {
	Signer    common.Address
	Nonce     *uint256.Int
	Signature []byte
}

func (e *InvalidRelayNonceError) Error() string {
	return fmt.Sprintf("%s: signer %s, nonce %s, signature %s",
		ErrInvalidRelayNonce, e.Signer, e.Nonce.Hex(), hexutil.Encode(e.Signature))
}

func (*InvalidRelayNonceError) Unwrap() error {
	return ErrInvalidRelayNonce
}

// ValueSentError reports a batch whose declared values do not add up to the
// attached value. It unwraps to ErrInsufficientValueSent or
// ErrExcessiveValueSent.
type ValueSentError struct {
	Total    *uint256.Int
	Attached *uint256.Int
}

func (e *ValueSentError) Error() string {
	return fmt.Sprintf("%s: total %s, attached %s", e.Unwrap(), e.Total.ToBig(), e.Attached.ToBig())
}

func (e *ValueSentError) Unwrap() error {
	if e.Attached.Lt(e.Total) {
		return ErrInsufficientValueSent
	}
	return ErrExcessiveValueSent
}

func noPermissionsSet(controller common.Address) error {
	return fmt.Errorf("%w: %s", ErrNoPermissionsSet, controller)
}

func noCallsAllowed(controller common.Address) error {
	return fmt.Errorf("%w: %s", ErrNoCallsAllowed, controller)
}

func noDataKeysAllowed(controller common.Address) error {
	return fmt.Errorf("%w: %s", ErrNoERC725YDataKeysAllowed, controller)
}
