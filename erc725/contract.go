// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package erc725 holds the ABI of the profile account (ERC725X/ERC725Y and
// two-step ownership) and typed helpers to pack and unpack its calldata.
package erc725

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	_ "embed"
)

// SelectorLen is the length of a function selector.
const SelectorLen = 4

// Operation is an ERC725X operation type.
type Operation uint8

const (
	OperationCall Operation = iota
	OperationCreate
	OperationCreate2
	OperationStaticCall
	OperationDelegateCall
)

func (o Operation) String() string {
	switch o {
	case OperationCall:
		return "CALL"
	case OperationCreate:
		return "CREATE"
	case OperationCreate2:
		return "CREATE2"
	case OperationStaticCall:
		return "STATICCALL"
	case OperationDelegateCall:
		return "DELEGATECALL"
	default:
		return fmt.Sprintf("OPERATION_%d", uint8(o))
	}
}

var (
	ErrShortPayload       = errors.New("payload shorter than a selector")
	ErrUnknownSelector    = errors.New("unknown selector")
	ErrInvalidArguments   = errors.New("invalid arguments")
	ErrUnknownOperation   = errors.New("unknown operation type")
	ErrBatchLengthsDiffer = errors.New("batch argument lengths differ")

	// ERC725RawABI contains the raw ABI of the profile account.
	//go:embed contract.abi
	ERC725RawABI string

	ERC725ABI = parseABI(ERC725RawABI)

	SetDataSelector           = selector("setData")
	SetDataBatchSelector      = selector("setDataBatch")
	ExecuteSelector           = selector("execute")
	ExecuteBatchSelector      = selector("executeBatch")
	TransferOwnershipSelector = selector("transferOwnership")
	AcceptOwnershipSelector   = selector("acceptOwnership")
	RenounceOwnershipSelector = selector("renounceOwnership")
)

func parseABI(rawABI string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

func selector(name string) [SelectorLen]byte {
	var s [SelectorLen]byte
	copy(s[:], ERC725ABI.Methods[name].ID)
	return s
}

// Selector returns the first 4 bytes of [payload], or the zero selector when
// [payload] is shorter.
func Selector(payload []byte) [SelectorLen]byte {
	var s [SelectorLen]byte
	if len(payload) >= SelectorLen {
		copy(s[:], payload)
	}
	return s
}

// Method returns the profile method called by [payload].
func Method(payload []byte) (*abi.Method, error) {
	if len(payload) < SelectorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}
	method, err := ERC725ABI.MethodById(payload[:SelectorLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownSelector, payload[:SelectorLen])
	}
	return method, nil
}

func unpackInput(name string, payload []byte) ([]interface{}, error) {
	method := ERC725ABI.Methods[name]
	if len(payload) < SelectorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}
	res, err := method.Inputs.Unpack(payload[SelectorLen:])
	if err != nil {
		return nil, fmt.Errorf("%w to %s: %v", ErrInvalidArguments, name, err)
	}
	return res, nil
}

// SetDataInput is a single ERC725Y write.
type SetDataInput struct {
	Key   common.Hash
	Value []byte
}

func PackSetData(key common.Hash, value []byte) ([]byte, error) {
	return ERC725ABI.Pack("setData", key, value)
}

func PackSetDataBatch(inputs []SetDataInput) ([]byte, error) {
	keys := make([][32]byte, len(inputs))
	values := make([][]byte, len(inputs))
	for i, input := range inputs {
		keys[i] = input.Key
		values[i] = input.Value
	}
	return ERC725ABI.Pack("setDataBatch", keys, values)
}

// UnpackSetDataInput attempts to unpack [payload] as the arguments of
// setData.
func UnpackSetDataInput(payload []byte) (SetDataInput, error) {
	res, err := unpackInput("setData", payload)
	if err != nil {
		return SetDataInput{}, err
	}
	return SetDataInput{
		Key:   common.Hash(res[0].([32]byte)),
		Value: res[1].([]byte),
	}, nil
}

// UnpackSetDataBatchInput attempts to unpack [payload] as the arguments of
// setDataBatch. It does not check that the arrays have matching lengths.
func UnpackSetDataBatchInput(payload []byte) ([]common.Hash, [][]byte, error) {
	res, err := unpackInput("setDataBatch", payload)
	if err != nil {
		return nil, nil, err
	}
	rawKeys := res[0].([][32]byte)
	keys := make([]common.Hash, len(rawKeys))
	for i, key := range rawKeys {
		keys[i] = key
	}
	return keys, res[1].([][]byte), nil
}

// ExecuteInput is a single ERC725X operation.
type ExecuteInput struct {
	Operation Operation
	Target    common.Address
	Value     *uint256.Int
	Data      []byte
}

func PackExecute(input ExecuteInput) ([]byte, error) {
	return ERC725ABI.Pack(
		"execute",
		big.NewInt(int64(input.Operation)),
		input.Target,
		valueOrZero(input.Value).ToBig(),
		input.Data,
	)
}

func PackExecuteBatch(inputs []ExecuteInput) ([]byte, error) {
	var (
		operations = make([]*big.Int, len(inputs))
		targets    = make([]common.Address, len(inputs))
		values     = make([]*big.Int, len(inputs))
		datas      = make([][]byte, len(inputs))
	)
	for i, input := range inputs {
		operations[i] = big.NewInt(int64(input.Operation))
		targets[i] = input.Target
		values[i] = valueOrZero(input.Value).ToBig()
		datas[i] = input.Data
	}
	return ERC725ABI.Pack("executeBatch", operations, targets, values, datas)
}

func valueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// UnpackExecuteInput attempts to unpack [payload] as the arguments of
// execute.
func UnpackExecuteInput(payload []byte) (ExecuteInput, error) {
	res, err := unpackInput("execute", payload)
	if err != nil {
		return ExecuteInput{}, err
	}
	return newExecuteInput(
		res[0].(*big.Int),
		res[1].(common.Address),
		res[2].(*big.Int),
		res[3].([]byte),
	)
}

// UnpackExecuteBatchInput attempts to unpack [payload] as the arguments of
// executeBatch.
func UnpackExecuteBatchInput(payload []byte) ([]ExecuteInput, error) {
	res, err := unpackInput("executeBatch", payload)
	if err != nil {
		return nil, err
	}
	var (
		operations = res[0].([]*big.Int)
		targets    = res[1].([]common.Address)
		values     = res[2].([]*big.Int)
		datas      = res[3].([][]byte)
	)
	if len(operations) != len(targets) || len(operations) != len(values) || len(operations) != len(datas) {
		return nil, fmt.Errorf("%w: %d operations, %d targets, %d values, %d datas",
			ErrBatchLengthsDiffer, len(operations), len(targets), len(values), len(datas))
	}

	inputs := make([]ExecuteInput, len(operations))
	for i := range operations {
		input, err := newExecuteInput(operations[i], targets[i], values[i], datas[i])
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		inputs[i] = input
	}
	return inputs, nil
}

func newExecuteInput(operation *big.Int, target common.Address, value *big.Int, data []byte) (ExecuteInput, error) {
	if !operation.IsUint64() || operation.Uint64() > uint64(OperationDelegateCall) {
		return ExecuteInput{}, fmt.Errorf("%w: %s", ErrUnknownOperation, operation)
	}
	// uint256 arguments always fit
	v, _ := uint256.FromBig(value)
	return ExecuteInput{
		Operation: Operation(operation.Uint64()),
		Target:    target,
		Value:     v,
		Data:      data,
	}, nil
}

func PackTransferOwnership(newOwner common.Address) ([]byte, error) {
	return ERC725ABI.Pack("transferOwnership", newOwner)
}

// UnpackTransferOwnershipInput attempts to unpack [payload] as the arguments
// of transferOwnership.
func UnpackTransferOwnershipInput(payload []byte) (common.Address, error) {
	res, err := unpackInput("transferOwnership", payload)
	if err != nil {
		return common.Address{}, err
	}
	return res[0].(common.Address), nil
}

func PackAcceptOwnership() ([]byte, error) {
	return ERC725ABI.Pack("acceptOwnership")
}

func PackRenounceOwnership() ([]byte, error) {
	return ERC725ABI.Pack("renounceOwnership")
}

func PackGetDataOutput(value []byte) ([]byte, error) {
	return ERC725ABI.Methods["getData"].Outputs.Pack(value)
}

func PackExecuteOutput(result []byte) ([]byte, error) {
	return ERC725ABI.Methods["execute"].Outputs.Pack(result)
}

func PackExecuteBatchOutput(results [][]byte) ([]byte, error) {
	return ERC725ABI.Methods["executeBatch"].Outputs.Pack(results)
}

// UnpackExecuteBatchOutput decodes the bytes[] returned by executeBatch.
func UnpackExecuteBatchOutput(output []byte) ([][]byte, error) {
	res, err := ERC725ABI.Unpack("executeBatch", output)
	if err != nil {
		return nil, err
	}
	return res[0].([][]byte), nil
}

// UnpackExecuteOutput decodes the bytes returned by execute.
func UnpackExecuteOutput(output []byte) ([]byte, error) {
	res, err := ERC725ABI.Unpack("execute", output)
	if err != nil {
		return nil, err
	}
	return res[0].([]byte), nil
}
