// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package profile

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/keymanager/database/memdb"
	"github.com/ava-labs/keymanager/database/prefixdb"
	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/utils/logging"
)

var (
	profileAddr = common.HexToAddress("0x00000000000000000000000000000000000f00d0")
	dataKey     = common.HexToHash("0x1234")
)

func newTestProfile(t *testing.T) (*Profile, *SimulatedChain) {
	t.Helper()

	chain := NewSimulatedChain(big.NewInt(1))
	return New(profileAddr, alice, memdb.New(), chain, logging.NoLog{}), chain
}

type testVerifier struct {
	verify  func(caller common.Address, value *uint256.Int, payload []byte) error
	results int
}

func (v *testVerifier) VerifyCall(caller common.Address, value *uint256.Int, payload []byte) error {
	return v.verify(caller, value, payload)
}

func (v *testVerifier) VerifyCallResult() {
	v.results++
}

func TestProfileSetData(t *testing.T) {
	require := require.New(t)

	p, _ := newTestProfile(t)

	payload, err := erc725.PackSetData(dataKey, []byte("hello"))
	require.NoError(err)
	_, err = p.Dispatch(alice, nil, payload)
	require.NoError(err)

	value, err := p.GetData(dataKey)
	require.NoError(err)
	require.Equal([]byte("hello"), value)

	payload, err = erc725.PackSetData(dataKey, nil)
	require.NoError(err)
	_, err = p.Dispatch(alice, nil, payload)
	require.NoError(err)

	values, err := p.GetDataBatch([]common.Hash{dataKey})
	require.NoError(err)
	require.Empty(values[0])
}

func TestProfileGetDataCall(t *testing.T) {
	require := require.New(t)

	p, _ := newTestProfile(t)
	require.NoError(p.SetData(dataKey, []byte{1, 2, 3}))

	payload, err := erc725.ERC725ABI.Pack("getData", dataKey)
	require.NoError(err)
	output, err := p.Dispatch(bob, nil, payload)
	require.NoError(err)

	expected, err := erc725.PackGetDataOutput([]byte{1, 2, 3})
	require.NoError(err)
	require.Equal(expected, output)
}

func TestProfileOnlyOwner(t *testing.T) {
	require := require.New(t)

	p, _ := newTestProfile(t)

	payload, err := erc725.PackSetData(dataKey, []byte{1})
	require.NoError(err)
	_, err = p.Dispatch(bob, nil, payload)
	require.ErrorIs(err, ErrCallerNotOwner)

	_, err = p.Call(bob, nil, payload)
	require.ErrorIs(err, ErrCallerNotOwner)
}

func TestProfileCallThroughVerifier(t *testing.T) {
	require := require.New(t)

	p, chain := newTestProfile(t)
	chain.Deploy(alice, ContractFunc(func(CallContext, []byte) ([]byte, error) {
		return nil, errBoom
	}))
	payload, err := erc725.PackSetData(dataKey, []byte{1})
	require.NoError(err)
	failing, err := erc725.PackExecute(erc725.ExecuteInput{
		Operation: erc725.OperationCall,
		Target:    alice,
		Data:      []byte{0x01},
	})
	require.NoError(err)

	verifier := &testVerifier{
		verify: func(caller common.Address, _ *uint256.Int, _ []byte) error {
			if caller != bob {
				return errBoom
			}
			return nil
		},
	}
	p.SetVerifier(verifier)

	_, err = p.Call(bob, nil, payload)
	require.NoError(err)
	require.Equal(1, verifier.results)

	value, err := p.GetData(dataKey)
	require.NoError(err)
	require.Equal([]byte{1}, value)

	// Rejected calls are never dispatched, so no result follows.
	_, err = p.Call(common.HexToAddress("0x03"), nil, payload)
	require.ErrorIs(err, errBoom)
	require.Equal(1, verifier.results)

	// Calls that fail once dispatched still report their result.
	_, err = p.Call(bob, nil, failing)
	require.ErrorIs(err, errBoom)
	require.Equal(2, verifier.results)
}

func TestProfileFinaliseCommitsBatch(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	chain := NewSimulatedChain(big.NewInt(1))
	p := New(profileAddr, alice, db, chain, logging.NoLog{})
	stored := prefixdb.New(profileAddr.Bytes(), db)

	otherKey := common.HexToHash("0x5678")
	require.NoError(stored.Put(otherKey[:], []byte{9}))

	require.NoError(p.SetData(dataKey, []byte{1}))
	require.NoError(p.SetData(otherKey, nil))

	// Staged writes are visible but not persisted.
	value, err := p.GetData(dataKey)
	require.NoError(err)
	require.Equal([]byte{1}, value)
	value, err = p.GetData(otherKey)
	require.NoError(err)
	require.Empty(value)
	has, err := stored.Has(dataKey[:])
	require.NoError(err)
	require.False(has)

	require.NoError(p.Finalise())

	value, err = stored.Get(dataKey[:])
	require.NoError(err)
	require.Equal([]byte{1}, value)
	has, err = stored.Has(otherKey[:])
	require.NoError(err)
	require.False(has)

	// Reverted writes never reach the database.
	id := p.Snapshot()
	require.NoError(p.SetData(dataKey, []byte{2}))
	p.RevertToSnapshot(id)
	require.NoError(p.Finalise())

	value, err = stored.Get(dataKey[:])
	require.NoError(err)
	require.Equal([]byte{1}, value)
}

func TestProfileDispatchDebitsSender(t *testing.T) {
	require := require.New(t)

	p, chain := newTestProfile(t)
	chain.SetBalance(alice, uint256.NewInt(10))

	payload, err := erc725.PackSetData(dataKey, []byte{1})
	require.NoError(err)

	_, err = p.Dispatch(alice, uint256.NewInt(4), payload)
	require.NoError(err)
	require.Equal(uint256.NewInt(6), chain.Balance(alice))
	require.Equal(uint256.NewInt(4), chain.Balance(profileAddr))

	_, err = p.Dispatch(alice, uint256.NewInt(7), payload)
	require.ErrorIs(err, ErrInsufficientBalance)
	require.Equal(uint256.NewInt(6), chain.Balance(alice))
	require.Equal(uint256.NewInt(4), chain.Balance(profileAddr))

	// A rejected payload refunds the sender.
	chain.SetBalance(bob, uint256.NewInt(3))
	_, err = p.Dispatch(bob, uint256.NewInt(3), payload)
	require.ErrorIs(err, ErrCallerNotOwner)
	require.Equal(uint256.NewInt(3), chain.Balance(bob))
	require.Equal(uint256.NewInt(4), chain.Balance(profileAddr))
}

func TestProfileOwnership(t *testing.T) {
	require := require.New(t)

	p, _ := newTestProfile(t)

	payload, err := erc725.PackTransferOwnership(profileAddr)
	require.NoError(err)
	_, err = p.Dispatch(alice, nil, payload)
	require.ErrorIs(err, ErrCannotTransferOwnershipToSelf)

	payload, err = erc725.PackTransferOwnership(bob)
	require.NoError(err)
	_, err = p.Dispatch(alice, nil, payload)
	require.NoError(err)
	require.Equal(bob, p.PendingOwner())
	require.Equal(alice, p.Owner())

	accept, err := erc725.PackAcceptOwnership()
	require.NoError(err)
	_, err = p.Dispatch(alice, nil, accept)
	require.ErrorIs(err, ErrCallerNotPendingOwner)

	_, err = p.Call(bob, nil, accept)
	require.NoError(err)
	require.Equal(bob, p.Owner())
	require.Equal(common.Address{}, p.PendingOwner())

	renounce, err := erc725.PackRenounceOwnership()
	require.NoError(err)
	_, err = p.Dispatch(bob, nil, renounce)
	require.NoError(err)
	require.Equal(common.Address{}, p.Owner())
}

func TestProfileExecuteCall(t *testing.T) {
	require := require.New(t)

	p, chain := newTestProfile(t)
	chain.Deploy(bob, ContractFunc(func(ctx CallContext, input []byte) ([]byte, error) {
		require.Equal(profileAddr, ctx.Caller)
		return append([]byte{0xaa}, input...), nil
	}))

	payload, err := erc725.PackExecute(erc725.ExecuteInput{
		Operation: erc725.OperationCall,
		Target:    bob,
		Value:     uint256.NewInt(2),
		Data:      []byte{0x01},
	})
	require.NoError(err)

	output, err := p.Dispatch(alice, uint256.NewInt(5), payload)
	require.NoError(err)
	result, err := erc725.UnpackExecuteOutput(output)
	require.NoError(err)
	require.Equal([]byte{0xaa, 0x01}, result)

	require.Equal(uint256.NewInt(3), chain.Balance(profileAddr))
	require.Equal(uint256.NewInt(2), chain.Balance(bob))
}

func TestProfileExecuteOperations(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40}
	salt := common.HexToHash("0x0102")

	tests := []struct {
		name        string
		input       erc725.ExecuteInput
		expected    []byte
		expectedErr error
	}{
		{
			name: "static call with value",
			input: erc725.ExecuteInput{
				Operation: erc725.OperationStaticCall,
				Target:    bob,
				Value:     uint256.NewInt(1),
			},
			expectedErr: ErrMsgValueDisallowedInStaticCall,
		},
		{
			name: "delegate call",
			input: erc725.ExecuteInput{
				Operation: erc725.OperationDelegateCall,
				Target:    bob,
			},
			expectedErr: ErrDelegateCallUnsupported,
		},
		{
			name: "delegate call with value",
			input: erc725.ExecuteInput{
				Operation: erc725.OperationDelegateCall,
				Target:    bob,
				Value:     uint256.NewInt(1),
			},
			expectedErr: ErrMsgValueDisallowedInDelegateCall,
		},
		{
			name: "create without code",
			input: erc725.ExecuteInput{
				Operation: erc725.OperationCreate,
			},
			expectedErr: ErrNoContractBytecodeProvided,
		},
		{
			name: "create",
			input: erc725.ExecuteInput{
				Operation: erc725.OperationCreate,
				Data:      code,
			},
			expected: crypto.CreateAddress(profileAddr, 0).Bytes(),
		},
		{
			name: "create2 without code",
			input: erc725.ExecuteInput{
				Operation: erc725.OperationCreate2,
				Data:      salt.Bytes(),
			},
			expectedErr: ErrNoContractBytecodeProvided,
		},
		{
			name: "create2",
			input: erc725.ExecuteInput{
				Operation: erc725.OperationCreate2,
				Data:      append(append([]byte{}, code...), salt.Bytes()...),
			},
			expected: crypto.CreateAddress2(profileAddr, salt, crypto.Keccak256(code)).Bytes(),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			p, _ := newTestProfile(t)
			result, err := p.execute(test.input)
			require.ErrorIs(err, test.expectedErr)
			require.Equal(test.expected, result)
		})
	}
}

func TestProfileDispatchReverts(t *testing.T) {
	require := require.New(t)

	p, chain := newTestProfile(t)
	chain.Deploy(bob, ContractFunc(func(CallContext, []byte) ([]byte, error) {
		return nil, errBoom
	}))

	setData, err := erc725.PackSetData(dataKey, []byte{1})
	require.NoError(err)
	call, err := erc725.PackExecute(erc725.ExecuteInput{
		Operation: erc725.OperationCall,
		Target:    bob,
		Data:      []byte{0x01},
	})
	require.NoError(err)

	id := p.Snapshot()
	_, err = p.Dispatch(alice, uint256.NewInt(1), setData)
	require.NoError(err)
	_, err = p.Dispatch(alice, uint256.NewInt(1), call)
	require.ErrorIs(err, errBoom)

	// The failed call left the first write and its value in place.
	value, err := p.GetData(dataKey)
	require.NoError(err)
	require.Equal([]byte{1}, value)
	require.Equal(uint256.NewInt(1), chain.Balance(profileAddr))

	p.RevertToSnapshot(id)
	value, err = p.GetData(dataKey)
	require.NoError(err)
	require.Empty(value)
	require.True(chain.Balance(profileAddr).IsZero())
}

func TestProfileUnsupportedFunction(t *testing.T) {
	require := require.New(t)

	p, _ := newTestProfile(t)
	payload, err := erc725.ERC725ABI.Pack("owner")
	require.NoError(err)
	_, err = p.Dispatch(alice, nil, payload)
	require.ErrorIs(err, ErrUnsupportedFunction)

	_, err = p.Dispatch(alice, nil, []byte{0x01})
	require.ErrorIs(err, erc725.ErrShortPayload)
}
