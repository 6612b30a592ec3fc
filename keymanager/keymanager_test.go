// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/mock/gomock"
	"github.com/holiman/uint256"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/keymanager/allowedcalls"
	"github.com/ava-labs/keymanager/database/memdb"
	"github.com/ava-labs/keymanager/datakeys"
	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/permissions"
	"github.com/ava-labs/keymanager/profile"
	"github.com/ava-labs/keymanager/relay"
	"github.com/ava-labs/keymanager/utils/logging"
)

var (
	keyManagerAddr = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	profileAddr    = common.HexToAddress("0x00000000000000000000000000000000000f00d0")
	controllerAddr = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	otherAddr      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	targetAddr     = common.HexToAddress("0x000000000000000000000000000000000000beef")

	testChainID = big.NewInt(4201)

	transferSelector = [4]byte{0xa9, 0x05, 0x9c, 0xbb}
	approveSelector  = [4]byte{0x09, 0x5e, 0xa7, 0xb3}
)

type testEnv struct {
	chain    *profile.SimulatedChain
	profile  *profile.Profile
	km       *KeyManager
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	chain := profile.NewSimulatedChain(testChainID)
	return newTestEnvWithChain(t, chain, chain)
}

func newTestEnvWithChain(t *testing.T, chain *profile.SimulatedChain, chainContext ChainContext) *testEnv {
	t.Helper()

	p := profile.New(profileAddr, keyManagerAddr, memdb.New(), chain, logging.NoLog{})
	registry := prometheus.NewRegistry()
	km, err := New(Config{
		Address:    keyManagerAddr,
		Profile:    p,
		Chain:      chainContext,
		Nonces:     relay.NewNonceTracker(memdb.New()),
		Registerer: registry,
	})
	require.NoError(t, err)
	p.SetVerifier(km)
	return &testEnv{
		chain:    chain,
		profile:  p,
		km:       km,
		registry: registry,
	}
}

func (e *testEnv) grant(t *testing.T, controller common.Address, ps ...permissions.Permission) {
	t.Helper()
	e.set(t, datakeys.PermissionsKey(controller), permissions.Combine(ps...).Bytes())
}

func (e *testEnv) grantAll(t *testing.T, controller common.Address) {
	t.Helper()
	e.set(t, datakeys.PermissionsKey(controller), permissions.All.Bytes())
}

func (e *testEnv) allowCalls(t *testing.T, controller common.Address, entries ...allowedcalls.Entry) {
	t.Helper()
	e.set(t, datakeys.AllowedCallsKey(controller), allowedcalls.List(entries).Encode())
}

func (e *testEnv) allowDataKeys(t *testing.T, controller common.Address, prefixes ...[]byte) {
	t.Helper()
	value, err := datakeys.Allowed(prefixes).Encode()
	require.NoError(t, err)
	e.set(t, datakeys.AllowedDataKeysKey(controller), value)
}

func (e *testEnv) set(t *testing.T, key common.Hash, value []byte) {
	t.Helper()
	require.NoError(t, e.profile.SetData(key, value))
	require.NoError(t, e.profile.Finalise())
}

func (e *testEnv) get(t *testing.T, key common.Hash) []byte {
	t.Helper()
	value, err := e.profile.GetData(key)
	require.NoError(t, err)
	return value
}

func callEntry(callTypes allowedcalls.CallType, target common.Address, selector [4]byte) allowedcalls.Entry {
	return allowedcalls.Entry{
		CallTypes: callTypes,
		Target:    allowedcalls.Exact(target),
		Standard:  allowedcalls.Any[[4]byte](),
		Selector:  allowedcalls.Exact(selector),
	}
}

func packSetData(t *testing.T, key common.Hash, value []byte) []byte {
	t.Helper()
	payload, err := erc725.PackSetData(key, value)
	require.NoError(t, err)
	return payload
}

func packExecute(t *testing.T, op erc725.Operation, target common.Address, value uint64, data []byte) []byte {
	t.Helper()
	payload, err := erc725.PackExecute(erc725.ExecuteInput{
		Operation: op,
		Target:    target,
		Value:     uint256.NewInt(value),
		Data:      data,
	})
	require.NoError(t, err)
	return payload
}

func TestNewRequiresCollaborators(t *testing.T) {
	chain := profile.NewSimulatedChain(testChainID)
	p := profile.New(profileAddr, keyManagerAddr, memdb.New(), chain, logging.NoLog{})
	nonces := relay.NewNonceTracker(memdb.New())

	tests := []struct {
		name        string
		config      Config
		expectedErr error
	}{
		{
			name:        "no profile",
			config:      Config{Chain: chain, Nonces: nonces},
			expectedErr: errNilProfile,
		},
		{
			name:        "no chain",
			config:      Config{Profile: p, Nonces: nonces},
			expectedErr: errNilChain,
		},
		{
			name:        "no nonces",
			config:      Config{Profile: p, Chain: chain},
			expectedErr: errNilNonces,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(test.config)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}

	km, err := New(Config{Address: keyManagerAddr, Profile: p, Chain: chain, Nonces: nonces})
	require.NoError(t, err)
	require.Equal(t, keyManagerAddr, km.Address())
	require.Equal(t, profileAddr, km.Target())
}

func TestExecuteRejectsMalformedPayloads(t *testing.T) {
	env := newTestEnv(t)
	env.grantAll(t, controllerAddr)

	ownerPayload, err := erc725.ERC725ABI.Pack("owner")
	require.NoError(t, err)

	tests := []struct {
		name        string
		payload     []byte
		expectedErr error
	}{
		{
			name:        "short payload",
			payload:     []byte{0x01, 0x02, 0x03},
			expectedErr: ErrInvalidPayload,
		},
		{
			name:        "not an ERC725 function",
			payload:     ownerPayload,
			expectedErr: ErrInvalidERC725Function,
		},
		{
			name:        "truncated arguments",
			payload:     erc725.ExecuteSelector[:],
			expectedErr: ErrInvalidPayload,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := env.km.Execute(controllerAddr, nil, test.payload)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestExecuteNoPermissionsSet(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	_, err := env.km.Execute(controllerAddr, nil, packSetData(t, common.HexToHash("0x01"), []byte{1}))
	require.ErrorIs(err, ErrNoPermissionsSet)
}

func TestExecuteDelegateCallDisallowed(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grantAll(t, controllerAddr)

	_, err := env.km.Execute(controllerAddr, nil, packExecute(t, erc725.OperationDelegateCall, targetAddr, 0, nil))
	require.ErrorIs(err, ErrDelegateCallDisallowedViaKeyManager)

	// Even a caller without permissions learns the operation is disallowed.
	_, err = env.km.Execute(otherAddr, nil, packExecute(t, erc725.OperationDelegateCall, targetAddr, 0, nil))
	require.ErrorIs(err, ErrDelegateCallDisallowedViaKeyManager)
}

func TestExecuteCallingKeyManagerNotAllowed(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grantAll(t, controllerAddr)

	_, err := env.km.Execute(controllerAddr, nil, packExecute(t, erc725.OperationCall, keyManagerAddr, 0, []byte{1, 2, 3, 4}))
	require.ErrorIs(err, ErrCallingKeyManagerNotAllowed)

	_, err = env.km.Execute(controllerAddr, nil, packExecute(t, erc725.OperationStaticCall, keyManagerAddr, 0, nil))
	require.ErrorIs(err, ErrCallingKeyManagerNotAllowed)
}

func TestExecuteAllowedCallSelector(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grant(t, controllerAddr, permissions.Call)
	env.allowCalls(t, controllerAddr, callEntry(allowedcalls.CallTypeCall, targetAddr, transferSelector))

	var called int
	env.chain.Deploy(targetAddr, profile.ContractFunc(func(profile.CallContext, []byte) ([]byte, error) {
		called++
		return []byte{0x01}, nil
	}))

	output, err := env.km.Execute(controllerAddr, nil, packExecute(t, erc725.OperationCall, targetAddr, 0, transferSelector[:]))
	require.NoError(err)
	result, err := erc725.UnpackExecuteOutput(output)
	require.NoError(err)
	require.Equal([]byte{0x01}, result)
	require.Equal(1, called)

	_, err = env.km.Execute(controllerAddr, nil, packExecute(t, erc725.OperationCall, targetAddr, 0, approveSelector[:]))
	var notAllowed *NotAllowedCallError
	require.ErrorAs(err, &notAllowed)
	require.Equal(controllerAddr, notAllowed.Controller)
	require.Equal(targetAddr, notAllowed.Target)
	require.Equal(approveSelector, notAllowed.Selector)
	require.Equal(1, called)
}

func TestExecuteCallPermissions(t *testing.T) {
	tests := []struct {
		name        string
		perms       []permissions.Permission
		entries     []allowedcalls.Entry
		value       uint64
		data        []byte
		expectedErr error
		permission  permissions.Permission
	}{
		{
			name:        "transfer value only with empty call",
			perms:       []permissions.Permission{permissions.TransferValue},
			expectedErr: ErrNoCallsAllowed,
		},
		{
			name:        "value without transfer value",
			perms:       []permissions.Permission{permissions.Call},
			value:       1,
			expectedErr: ErrNotAuthorised,
			permission:  permissions.TransferValue,
		},
		{
			name:        "calldata without call",
			perms:       []permissions.Permission{permissions.TransferValue},
			value:       1,
			data:        transferSelector[:],
			expectedErr: ErrNotAuthorised,
			permission:  permissions.Call,
		},
		{
			name:  "super call and super transfer value",
			perms: []permissions.Permission{permissions.SuperCall, permissions.SuperTransferValue},
			value: 1,
			data:  transferSelector[:],
		},
		{
			name:  "super call with empty call",
			perms: []permissions.Permission{permissions.SuperCall},
		},
		{
			name:    "value entry",
			perms:   []permissions.Permission{permissions.TransferValue},
			entries: []allowedcalls.Entry{callEntry(allowedcalls.CallTypeValue, targetAddr, [4]byte{})},
			value:   1,
		},
		{
			name:        "value entry does not allow calls",
			perms:       []permissions.Permission{permissions.TransferValue, permissions.Call},
			entries:     []allowedcalls.Entry{callEntry(allowedcalls.CallTypeValue, targetAddr, transferSelector)},
			value:       1,
			data:        transferSelector[:],
			expectedErr: ErrNotAllowedCall,
		},
		{
			name:    "value and call entry",
			perms:   []permissions.Permission{permissions.TransferValue, permissions.Call},
			entries: []allowedcalls.Entry{callEntry(allowedcalls.CallTypeValue|allowedcalls.CallTypeCall, targetAddr, transferSelector)},
			value:   1,
			data:    transferSelector[:],
		},
		{
			name:    "super call only checks value",
			perms:   []permissions.Permission{permissions.TransferValue, permissions.SuperCall},
			entries: []allowedcalls.Entry{callEntry(allowedcalls.CallTypeValue, targetAddr, transferSelector)},
			value:   1,
			data:    transferSelector[:],
		},
		{
			name:        "entry for another target",
			perms:       []permissions.Permission{permissions.Call},
			entries:     []allowedcalls.Entry{callEntry(allowedcalls.CallTypeCall, otherAddr, transferSelector)},
			data:        transferSelector[:],
			expectedErr: ErrNotAllowedCall,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			env.grant(t, controllerAddr, test.perms...)
			if len(test.entries) > 0 {
				env.allowCalls(t, controllerAddr, test.entries...)
			}

			_, err := env.km.Execute(
				controllerAddr,
				uint256.NewInt(test.value),
				packExecute(t, erc725.OperationCall, targetAddr, test.value, test.data),
			)
			require.ErrorIs(err, test.expectedErr)

			var notAuthorised *NotAuthorisedError
			if test.expectedErr == ErrNotAuthorised {
				require.ErrorAs(err, &notAuthorised)
				require.Equal(test.permission, notAuthorised.Permission)
			}
		})
	}
}

func TestExecuteStaticCallAndDeploy(t *testing.T) {
	code := []byte{0x60, 0x00}

	tests := []struct {
		name        string
		perms       []permissions.Permission
		entries     []allowedcalls.Entry
		op          erc725.Operation
		value       uint64
		data        []byte
		expectedErr error
	}{
		{
			name:        "static call without permission",
			perms:       []permissions.Permission{permissions.Call},
			op:          erc725.OperationStaticCall,
			expectedErr: ErrNotAuthorised,
		},
		{
			name:  "super static call",
			perms: []permissions.Permission{permissions.SuperStaticCall},
			op:    erc725.OperationStaticCall,
			data:  transferSelector[:],
		},
		{
			name:        "static call without allowed calls",
			perms:       []permissions.Permission{permissions.StaticCall},
			op:          erc725.OperationStaticCall,
			data:        transferSelector[:],
			expectedErr: ErrNoCallsAllowed,
		},
		{
			name:    "static call entry",
			perms:   []permissions.Permission{permissions.StaticCall},
			entries: []allowedcalls.Entry{callEntry(allowedcalls.CallTypeStaticCall, targetAddr, transferSelector)},
			op:      erc725.OperationStaticCall,
			data:    transferSelector[:],
		},
		{
			name:        "call entry does not allow static calls",
			perms:       []permissions.Permission{permissions.StaticCall},
			entries:     []allowedcalls.Entry{callEntry(allowedcalls.CallTypeCall, targetAddr, transferSelector)},
			op:          erc725.OperationStaticCall,
			data:        transferSelector[:],
			expectedErr: ErrNotAllowedCall,
		},
		{
			name:        "create without deploy",
			perms:       []permissions.Permission{permissions.SuperCall},
			op:          erc725.OperationCreate,
			data:        code,
			expectedErr: ErrNotAuthorised,
		},
		{
			name:  "create",
			perms: []permissions.Permission{permissions.Deploy},
			op:    erc725.OperationCreate,
			data:  code,
		},
		{
			name:        "funded create without super transfer value",
			perms:       []permissions.Permission{permissions.Deploy, permissions.TransferValue},
			op:          erc725.OperationCreate,
			value:       1,
			data:        code,
			expectedErr: ErrNotAuthorised,
		},
		{
			name:  "funded create2",
			perms: []permissions.Permission{permissions.Deploy, permissions.SuperTransferValue},
			op:    erc725.OperationCreate2,
			value: 1,
			data:  append(append([]byte{}, code...), common.HexToHash("0x01").Bytes()...),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.grant(t, controllerAddr, test.perms...)
			if len(test.entries) > 0 {
				env.allowCalls(t, controllerAddr, test.entries...)
			}

			_, err := env.km.Execute(
				controllerAddr,
				uint256.NewInt(test.value),
				packExecute(t, test.op, targetAddr, test.value, test.data),
			)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestExecuteAllowedCallStandard(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	chain := profile.NewSimulatedChain(testChainID)
	chainContext := NewMockChainContext(ctrl)
	env := newTestEnvWithChain(t, chain, chainContext)

	standard := [4]byte{0x5a, 0x1a, 0x1a, 0x5a}
	env.grant(t, controllerAddr, permissions.Call)
	env.allowCalls(t, controllerAddr, allowedcalls.Entry{
		CallTypes: allowedcalls.CallTypeCall,
		Target:    allowedcalls.Any[common.Address](),
		Standard:  allowedcalls.Exact(standard),
		Selector:  allowedcalls.Any[[4]byte](),
	})

	payload := packExecute(t, erc725.OperationCall, targetAddr, 0, transferSelector[:])

	chainContext.EXPECT().SupportsInterface(targetAddr, standard).Return(true)
	require.NoError(env.km.VerifyCall(controllerAddr, nil, payload))
	env.km.VerifyCallResult()

	chainContext.EXPECT().SupportsInterface(targetAddr, standard).Return(false)
	err := env.km.VerifyCall(controllerAddr, nil, payload)
	require.ErrorIs(err, ErrNotAllowedCall)
}

func TestExecuteOwnership(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grant(t, controllerAddr, permissions.SuperCall, permissions.SuperSetData)
	env.grant(t, otherAddr, permissions.ChangeOwner)

	payload, err := erc725.PackTransferOwnership(otherAddr)
	require.NoError(err)

	_, err = env.km.Execute(controllerAddr, nil, payload)
	var notAuthorised *NotAuthorisedError
	require.ErrorAs(err, &notAuthorised)
	require.Equal(permissions.ChangeOwner, notAuthorised.Permission)

	_, err = env.km.Execute(otherAddr, nil, payload)
	require.NoError(err)
	require.Equal(otherAddr, env.profile.PendingOwner())
}

func TestExecuteBatchValues(t *testing.T) {
	keyA := common.HexToHash("0x0a")
	keyB := common.HexToHash("0x0b")

	tests := []struct {
		name        string
		values      []uint64
		attached    uint64
		expectedErr error
	}{
		{
			name:        "excessive value",
			values:      []uint64{1, 2},
			attached:    4,
			expectedErr: ErrExcessiveValueSent,
		},
		{
			name:        "insufficient value",
			values:      []uint64{1, 2},
			attached:    2,
			expectedErr: ErrInsufficientValueSent,
		},
		{
			name:     "exact value",
			values:   []uint64{1, 2},
			attached: 3,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			env.grantAll(t, controllerAddr)

			values := make([]*uint256.Int, len(test.values))
			for i, v := range test.values {
				values[i] = uint256.NewInt(v)
			}
			payloads := [][]byte{
				packSetData(t, keyA, []byte{0xa}),
				packSetData(t, keyB, []byte{0xb}),
			}

			results, err := env.km.ExecuteBatch(controllerAddr, uint256.NewInt(test.attached), values, payloads)
			require.ErrorIs(err, test.expectedErr)
			if test.expectedErr != nil {
				var valueErr *ValueSentError
				require.ErrorAs(err, &valueErr)
				require.Equal(uint256.NewInt(3), valueErr.Total)
				require.Equal(uint256.NewInt(test.attached), valueErr.Attached)
				require.Empty(env.get(t, keyA))
				return
			}

			require.Len(results, 2)
			require.Equal([]byte{0xa}, env.get(t, keyA))
			require.Equal([]byte{0xb}, env.get(t, keyB))
			require.Equal(uint256.NewInt(3), env.chain.Balance(profileAddr))
		})
	}
}

func TestExecuteBatchLengthMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.grantAll(t, controllerAddr)

	_, err := env.km.ExecuteBatch(
		controllerAddr,
		nil,
		[]*uint256.Int{uint256.NewInt(0)},
		nil,
	)
	require.ErrorIs(t, err, ErrBatchExecuteParamsLengthMismatch)
}

func TestExecuteBatchIsAtomic(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grant(t, controllerAddr, permissions.SetData)
	env.allowDataKeys(t, controllerAddr, []byte{0x0a})

	allowedKey := common.HexToHash("0x0a00000000000000000000000000000000000000000000000000000000000000")
	deniedKey := common.HexToHash("0x0b00000000000000000000000000000000000000000000000000000000000000")

	_, err := env.km.ExecuteBatch(
		controllerAddr,
		nil,
		[]*uint256.Int{nil, nil},
		[][]byte{
			packSetData(t, allowedKey, []byte{1}),
			packSetData(t, deniedKey, []byte{2}),
		},
	)
	var notAllowed *NotAllowedERC725YDataKeyError
	require.ErrorAs(err, &notAllowed)
	require.Equal(deniedKey, notAllowed.Key)
	require.Empty(env.get(t, allowedKey))
}

func TestReentrancy(t *testing.T) {
	key := common.HexToHash("0x0c")

	tests := []struct {
		name        string
		perms       []permissions.Permission
		expectedErr error
	}{
		{
			name:        "without reentrancy",
			perms:       []permissions.Permission{permissions.SuperSetData},
			expectedErr: ErrNotAuthorised,
		},
		{
			name:  "with reentrancy",
			perms: []permissions.Permission{permissions.SuperSetData, permissions.Reentrancy},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			env.grantAll(t, controllerAddr)
			env.grant(t, targetAddr, test.perms...)

			inner, err := KeyManagerABI.Pack("execute", packSetData(t, key, []byte{1}))
			require.NoError(err)
			env.chain.Deploy(targetAddr, profile.ContractFunc(func(ctx profile.CallContext, _ []byte) ([]byte, error) {
				return env.km.Call(ctx.Self, nil, inner)
			}))

			_, err = env.km.Execute(controllerAddr, nil, packExecute(t, erc725.OperationCall, targetAddr, 0, transferSelector[:]))
			require.ErrorIs(err, test.expectedErr)
			if test.expectedErr != nil {
				var notAuthorised *NotAuthorisedError
				require.ErrorAs(err, &notAuthorised)
				require.Equal(permissions.Reentrancy, notAuthorised.Permission)
				require.Empty(env.get(t, key))
				return
			}
			require.Equal([]byte{1}, env.get(t, key))

			// The execution status is cleared once the outer call returns.
			_, err = env.km.Execute(targetAddr, nil, packSetData(t, key, []byte{2}))
			require.NoError(err)
		})
	}
}

func TestSetDataDoesNotLockReentrancy(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grant(t, controllerAddr, permissions.SuperSetData)

	_, err := env.km.Execute(controllerAddr, nil, packSetData(t, common.HexToHash("0x01"), []byte{1}))
	require.NoError(err)
	require.False(env.km.executing)
}

func TestVerifyCallThroughProfile(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grant(t, controllerAddr, permissions.SuperSetData)

	key := common.HexToHash("0x0d")
	payload := packSetData(t, key, []byte{1})

	_, err := env.profile.Call(controllerAddr, nil, payload)
	require.NoError(err)
	require.Equal([]byte{1}, env.get(t, key))

	_, err = env.profile.Call(otherAddr, nil, payload)
	require.ErrorIs(err, ErrNoPermissionsSet)
}

func TestMetricsRecordRejections(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	payload := packSetData(t, common.HexToHash("0x01"), []byte{1})

	_, err := env.km.Execute(controllerAddr, nil, payload)
	require.ErrorIs(err, ErrNoPermissionsSet)

	env.grant(t, controllerAddr, permissions.SuperSetData)
	_, err = env.km.Execute(controllerAddr, nil, payload)
	require.NoError(err)

	require.Equal(2.0, counterValue(t, env.registry, "calls", map[string]string{methodLabel: executeMethod}))
	require.Equal(1.0, counterValue(t, env.registry, "rejections", map[string]string{
		methodLabel: executeMethod,
		reasonLabel: "no_permissions_set",
	}))
}

func counterValue(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := gatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if labels[label.GetName()] != label.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	require.FailNow(t, "metric not found", name)
	return 0
}

func TestReason(t *testing.T) {
	require := require.New(t)

	require.Equal("not_authorised", reason(notAuthorised(controllerAddr, permissions.Call)))
	require.Equal("not_allowed_call", reason(&NotAllowedCallError{}))
	require.Equal("excessive_value", reason(&ValueSentError{Total: uint256.NewInt(1), Attached: uint256.NewInt(2)}))
	require.Equal("relay_expired", reason(relay.ErrRelayCallExpired))
	require.Equal("other", reason(errNilProfile))
}

func TestCheckValuesProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("values add up to the attached value", prop.ForAll(
		func(values []uint32) bool {
			total := new(uint256.Int)
			vs := make([]*uint256.Int, len(values))
			for i, v := range values {
				vs[i] = uint256.NewInt(uint64(v))
				total.AddUint64(total, uint64(v))
			}
			if checkValues(total, vs) != nil {
				return false
			}

			more := new(uint256.Int).AddUint64(total, 1)
			err := checkValues(more, vs)
			var valueErr *ValueSentError
			if !errors.As(err, &valueErr) || !errors.Is(err, ErrExcessiveValueSent) {
				return false
			}
			if !valueErr.Total.Eq(total) {
				return false
			}
			if total.IsZero() {
				return true
			}
			less := new(uint256.Int).Sub(total, uint256.NewInt(1))
			return errors.Is(checkValues(less, vs), ErrInsufficientValueSent)
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.TestingRun(t)
}

func TestCheckValuesOverflow(t *testing.T) {
	max := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))
	err := checkValues(max, []*uint256.Int{max, uint256.NewInt(1)})
	require.ErrorIs(t, err, ErrValueOverflow)
}

func TestReentrancyThroughProfileCall(t *testing.T) {
	key := common.HexToHash("0x0c")

	tests := []struct {
		name        string
		perms       []permissions.Permission
		expectedErr error
	}{
		{
			name:        "without reentrancy",
			perms:       []permissions.Permission{permissions.SuperSetData},
			expectedErr: ErrNotAuthorised,
		},
		{
			name:  "with reentrancy",
			perms: []permissions.Permission{permissions.SuperSetData, permissions.Reentrancy},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			env.grant(t, controllerAddr, permissions.SuperCall)
			env.grant(t, targetAddr, test.perms...)

			inner, err := KeyManagerABI.Pack("execute", packSetData(t, key, []byte{1}))
			require.NoError(err)
			env.chain.Deploy(targetAddr, profile.ContractFunc(func(ctx profile.CallContext, _ []byte) ([]byte, error) {
				return env.km.Call(ctx.Self, nil, inner)
			}))

			_, err = env.profile.Call(controllerAddr, nil, packExecute(t, erc725.OperationCall, targetAddr, 0, transferSelector[:]))
			require.ErrorIs(err, test.expectedErr)
			require.False(env.km.executing)
			require.Empty(env.km.releases)
			if test.expectedErr != nil {
				var notAuthorised *NotAuthorisedError
				require.ErrorAs(err, &notAuthorised)
				require.Equal(targetAddr, notAuthorised.Controller)
				require.Equal(permissions.Reentrancy, notAuthorised.Permission)
				require.Empty(env.get(t, key))
				return
			}
			require.Equal([]byte{1}, env.get(t, key))
		})
	}
}

func TestVerifyCallReleasesStatus(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.grant(t, controllerAddr, permissions.SuperCall)
	env.grant(t, otherAddr, permissions.SuperCall)

	payload := packExecute(t, erc725.OperationCall, targetAddr, 0, transferSelector[:])
	require.NoError(env.km.VerifyCall(controllerAddr, nil, payload))
	require.True(env.km.executing)

	// A second direct call made before the first returns is a nested call.
	err := env.km.VerifyCall(otherAddr, nil, payload)
	var notAuthorised *NotAuthorisedError
	require.ErrorAs(err, &notAuthorised)
	require.Equal(permissions.Reentrancy, notAuthorised.Permission)
	require.True(env.km.executing)

	env.km.VerifyCallResult()
	require.False(env.km.executing)
	require.Empty(env.km.releases)

	// Failed verifications hold nothing.
	_, err = env.profile.Call(targetAddr, nil, payload)
	require.ErrorIs(err, ErrNoPermissionsSet)
	require.False(env.km.executing)
	require.Empty(env.km.releases)

	// Writes never take the status.
	env.grant(t, controllerAddr, permissions.SuperSetData)
	require.NoError(env.km.VerifyCall(controllerAddr, nil, packSetData(t, common.HexToHash("0x01"), []byte{1})))
	require.False(env.km.executing)
	env.km.VerifyCallResult()
	require.Empty(env.km.releases)
}

func TestExecuteMovesAttachedValue(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.chain.SetBalance(keyManagerAddr, uint256.NewInt(5))
	env.grant(t, controllerAddr, permissions.SetData)
	env.grant(t, otherAddr, permissions.SuperCall)

	payload := packExecute(t, erc725.OperationCall, targetAddr, 0, transferSelector[:])

	_, err := env.km.Execute(controllerAddr, uint256.NewInt(5), payload)
	require.ErrorIs(err, ErrNotAuthorised)
	require.Equal(uint256.NewInt(5), env.chain.Balance(keyManagerAddr))
	require.True(env.chain.Balance(profileAddr).IsZero())

	_, err = env.km.Execute(otherAddr, uint256.NewInt(5), payload)
	require.NoError(err)
	require.True(env.chain.Balance(keyManagerAddr).IsZero())
	require.Equal(uint256.NewInt(5), env.chain.Balance(profileAddr))
}
