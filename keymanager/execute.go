// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/keymanager/allowedcalls"
	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/permissions"
)

// verifyOperation authorizes a single ERC725X operation for a caller that
// does not hold every permission.
func (k *KeyManager) verifyOperation(caller common.Address, perms permissions.Set, op erc725.ExecuteInput) error {
	switch op.Operation {
	case erc725.OperationCall:
		return k.verifyCanCall(caller, perms, op)
	case erc725.OperationStaticCall:
		return k.verifyCanStaticCall(caller, perms, op)
	case erc725.OperationCreate, erc725.OperationCreate2:
		return verifyCanDeploy(caller, perms, op)
	case erc725.OperationDelegateCall:
		return ErrDelegateCallDisallowedViaKeyManager
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOperationType, op.Operation)
	}
}

// verifyCanCall checks the base permissions implied by the value and the
// calldata, then consults the allowed calls for every call type whose SUPER_
// permission is missing.
func (k *KeyManager) verifyCanCall(caller common.Address, perms permissions.Set, op erc725.ExecuteInput) error {
	var (
		isTransferringValue = op.Value != nil && !op.Value.IsZero()
		hasCallData         = len(op.Data) != 0
	)
	if isTransferringValue && !hasEither(perms, permissions.TransferValuePair) {
		return notAuthorised(caller, permissions.TransferValue)
	}
	if hasCallData && !hasEither(perms, permissions.CallPair) {
		return notAuthorised(caller, permissions.Call)
	}

	var required allowedcalls.CallType
	if isTransferringValue && !perms.Has(permissions.SuperTransferValue) {
		required |= allowedcalls.CallTypeValue
	}
	if (hasCallData || !isTransferringValue) && !perms.Has(permissions.SuperCall) {
		required |= allowedcalls.CallTypeCall
	}
	if required == 0 {
		return nil
	}
	return k.verifyAllowedCall(caller, required, op)
}

func (k *KeyManager) verifyCanStaticCall(caller common.Address, perms permissions.Set, op erc725.ExecuteInput) error {
	if !hasEither(perms, permissions.StaticCallPair) {
		return notAuthorised(caller, permissions.StaticCall)
	}
	if perms.Has(permissions.SuperStaticCall) {
		return nil
	}
	return k.verifyAllowedCall(caller, allowedcalls.CallTypeStaticCall, op)
}

// verifyCanDeploy requires SUPER_TRANSFERVALUE to fund a deployment since the
// new address cannot be allow-listed in advance.
func verifyCanDeploy(caller common.Address, perms permissions.Set, op erc725.ExecuteInput) error {
	if !perms.Has(permissions.Deploy) {
		return notAuthorised(caller, permissions.Deploy)
	}
	if op.Value != nil && !op.Value.IsZero() && !perms.Has(permissions.SuperTransferValue) {
		return notAuthorised(caller, permissions.SuperTransferValue)
	}
	return nil
}

func (k *KeyManager) verifyAllowedCall(caller common.Address, required allowedcalls.CallType, op erc725.ExecuteInput) error {
	list, err := k.store.AllowedCalls(caller)
	if err != nil {
		return err
	}
	if list.Disabled() {
		return noCallsAllowed(caller)
	}

	call := allowedcalls.Call{
		Required: required,
		Target:   op.Target,
		Selector: erc725.Selector(op.Data),
	}
	if _, ok := list.Match(call, k.chain.SupportsInterface); !ok {
		return &NotAllowedCallError{
			Controller: caller,
			Target:     call.Target,
			Selector:   call.Selector,
		}
	}
	return nil
}

func hasEither(perms permissions.Set, pair permissions.Pair) bool {
	return perms.HasAny(pair.Super, pair.Plain)
}
