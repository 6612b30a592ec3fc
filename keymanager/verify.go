// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/permissions"
)

type requestKind uint8

const (
	setDataRequest requestKind = iota
	executeRequest
	ownershipRequest
)

// request is a decoded profile payload.
type request struct {
	kind requestKind

	// setData
	keys   []common.Hash
	values [][]byte

	// execute
	operations []erc725.ExecuteInput
}

func decodeRequest(payload []byte) (*request, error) {
	if len(payload) < erc725.SelectorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(payload))
	}

	switch erc725.Selector(payload) {
	case erc725.SetDataSelector:
		input, err := erc725.UnpackSetDataInput(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return &request{
			kind:   setDataRequest,
			keys:   []common.Hash{input.Key},
			values: [][]byte{input.Value},
		}, nil
	case erc725.SetDataBatchSelector:
		keys, values, err := erc725.UnpackSetDataBatchInput(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return &request{
			kind:   setDataRequest,
			keys:   keys,
			values: values,
		}, nil
	case erc725.ExecuteSelector:
		input, err := erc725.UnpackExecuteInput(payload)
		if err != nil {
			return nil, executeDecodeError(err)
		}
		return &request{
			kind:       executeRequest,
			operations: []erc725.ExecuteInput{input},
		}, nil
	case erc725.ExecuteBatchSelector:
		inputs, err := erc725.UnpackExecuteBatchInput(payload)
		if err != nil {
			return nil, executeDecodeError(err)
		}
		return &request{
			kind:       executeRequest,
			operations: inputs,
		}, nil
	case erc725.TransferOwnershipSelector, erc725.AcceptOwnershipSelector, erc725.RenounceOwnershipSelector:
		return &request{kind: ownershipRequest}, nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrInvalidERC725Function, payload[:erc725.SelectorLen])
	}
}

func executeDecodeError(err error) error {
	if errors.Is(err, erc725.ErrUnknownOperation) {
		return fmt.Errorf("%w: %v", ErrUnknownOperationType, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}

// preflight rejects operations that no permission can allow.
func (k *KeyManager) preflight(req *request) error {
	for _, op := range req.operations {
		switch {
		case op.Operation == erc725.OperationDelegateCall:
			return fmt.Errorf("%w: target %s", ErrDelegateCallDisallowedViaKeyManager, op.Target)
		case op.Target == k.address && (op.Operation == erc725.OperationCall || op.Operation == erc725.OperationStaticCall):
			return ErrCallingKeyManagerNotAllowed
		}
	}
	return nil
}

// verifyPermissions authorizes [payload] for [caller]. [relayed] requires
// the caller to hold EXECUTE_RELAY_CALL.
func (k *KeyManager) verifyPermissions(caller common.Address, payload []byte, relayed bool) error {
	req, err := decodeRequest(payload)
	if err != nil {
		return err
	}
	if err := k.preflight(req); err != nil {
		return err
	}

	perms, err := k.store.Permissions(caller)
	if err != nil {
		return err
	}
	if perms.IsZero() {
		return noPermissionsSet(caller)
	}
	if relayed && !perms.Has(permissions.ExecuteRelayCall) {
		return notAuthorised(caller, permissions.ExecuteRelayCall)
	}

	switch req.kind {
	case setDataRequest:
		return k.verifySetData(caller, perms, req.keys, req.values)
	case executeRequest:
		if perms.IsAll() {
			return nil
		}
		for _, op := range req.operations {
			if err := k.verifyOperation(caller, perms, op); err != nil {
				return err
			}
		}
		return nil
	default:
		if !perms.Has(permissions.ChangeOwner) {
			return notAuthorised(caller, permissions.ChangeOwner)
		}
		return nil
	}
}
