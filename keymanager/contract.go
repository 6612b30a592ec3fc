// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

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

var (
	ErrUnknownKeyManagerFunction = errors.New("unknown key manager function")
	errInvalidKeyManagerInput    = errors.New("invalid key manager input")
	errValueToViewFunction       = errors.New("value sent to a view function")

	// KeyManagerRawABI contains the raw ABI of the key manager.
	//go:embed contract.abi
	KeyManagerRawABI string

	KeyManagerABI = parseABI(KeyManagerRawABI)
)

func parseABI(rawABI string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

type contractFunc func(k *KeyManager, caller common.Address, value *uint256.Int, args []interface{}) ([]byte, error)

var contractFuncs = map[string]contractFunc{
	"execute":               callExecute,
	"executeBatch":          callExecuteBatch,
	"executeRelayCall":      callExecuteRelayCall,
	"executeRelayCallBatch": callExecuteRelayCallBatch,
	"getNonce":              callGetNonce,
	"isValidSignature":      callIsValidSignature,
	"target":                callTarget,
}

// Call runs ABI encoded key manager calldata sent by [caller] with [value]
// attached and returns the ABI encoded result. It lets contracts reached
// through the profile call back into the key manager.
func (k *KeyManager) Call(caller common.Address, value *uint256.Int, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(input))
	}
	method, err := KeyManagerABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownKeyManagerFunction, input[:4])
	}
	f, ok := contractFuncs[method.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyManagerFunction, method.Name)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w to %s: %v", errInvalidKeyManagerInput, method.Name, err)
	}
	if value == nil {
		value = new(uint256.Int)
	}
	if !method.IsPayable() && !value.IsZero() {
		return nil, fmt.Errorf("%w: %s", errValueToViewFunction, method.Name)
	}
	return f(k, caller, value, args)
}

func callExecute(k *KeyManager, caller common.Address, value *uint256.Int, args []interface{}) ([]byte, error) {
	result, err := k.Execute(caller, value, args[0].([]byte))
	if err != nil {
		return nil, err
	}
	return KeyManagerABI.Methods["execute"].Outputs.Pack(result)
}

func callExecuteBatch(k *KeyManager, caller common.Address, value *uint256.Int, args []interface{}) ([]byte, error) {
	values, err := toUint256s(args[0].([]*big.Int))
	if err != nil {
		return nil, err
	}
	results, err := k.ExecuteBatch(caller, value, values, args[1].([][]byte))
	if err != nil {
		return nil, err
	}
	return KeyManagerABI.Methods["executeBatch"].Outputs.Pack(results)
}

func callExecuteRelayCall(k *KeyManager, caller common.Address, value *uint256.Int, args []interface{}) ([]byte, error) {
	nonce, err := toUint256(args[1].(*big.Int))
	if err != nil {
		return nil, err
	}
	validity, err := toUint256(args[2].(*big.Int))
	if err != nil {
		return nil, err
	}
	result, err := k.ExecuteRelayCall(caller, RelayCall{
		Signature:          args[0].([]byte),
		Nonce:              nonce,
		ValidityTimestamps: validity,
		Value:              value,
		Payload:            args[3].([]byte),
	})
	if err != nil {
		return nil, err
	}
	return KeyManagerABI.Methods["executeRelayCall"].Outputs.Pack(result)
}

func callExecuteRelayCallBatch(k *KeyManager, caller common.Address, value *uint256.Int, args []interface{}) ([]byte, error) {
	nonces, err := toUint256s(args[1].([]*big.Int))
	if err != nil {
		return nil, err
	}
	validities, err := toUint256s(args[2].([]*big.Int))
	if err != nil {
		return nil, err
	}
	values, err := toUint256s(args[3].([]*big.Int))
	if err != nil {
		return nil, err
	}
	calls, err := NewRelayCalls(args[0].([][]byte), nonces, validities, values, args[4].([][]byte))
	if err != nil {
		return nil, err
	}
	results, err := k.ExecuteRelayCallBatch(caller, value, calls)
	if err != nil {
		return nil, err
	}
	return KeyManagerABI.Methods["executeRelayCallBatch"].Outputs.Pack(results)
}

func callGetNonce(k *KeyManager, _ common.Address, _ *uint256.Int, args []interface{}) ([]byte, error) {
	channel, err := toUint256(args[1].(*big.Int))
	if err != nil {
		return nil, err
	}
	nonce, err := k.GetNonce(args[0].(common.Address), channel)
	if err != nil {
		return nil, err
	}
	return KeyManagerABI.Methods["getNonce"].Outputs.Pack(nonce.ToBig())
}

func callIsValidSignature(k *KeyManager, _ common.Address, _ *uint256.Int, args []interface{}) ([]byte, error) {
	status := k.IsValidSignature(common.Hash(args[0].([32]byte)), args[1].([]byte))
	return KeyManagerABI.Methods["isValidSignature"].Outputs.Pack(status)
}

func callTarget(k *KeyManager, _ common.Address, _ *uint256.Int, _ []interface{}) ([]byte, error) {
	return KeyManagerABI.Methods["target"].Outputs.Pack(k.Target())
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s overflows uint256", errInvalidKeyManagerInput, v)
	}
	return u, nil
}

func toUint256s(vs []*big.Int) ([]*uint256.Int, error) {
	us := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		u, err := toUint256(v)
		if err != nil {
			return nil, err
		}
		us[i] = u
	}
	return us, nil
}
