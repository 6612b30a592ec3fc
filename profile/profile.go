// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package profile is a reference ERC725X/ERC725Y account: a key-value data
// store and a generic call dispatcher, owned by a single address. It runs on
// a SimulatedChain and can be controlled by a key manager.
package profile

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/keymanager/database"
	"github.com/ava-labs/keymanager/database/prefixdb"
	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/utils/logging"
)

var (
	ErrCallerNotOwner                   = errors.New("caller is not the owner")
	ErrCallerNotPendingOwner            = errors.New("caller is not the pending owner")
	ErrCannotTransferOwnershipToSelf    = errors.New("cannot transfer ownership to self")
	ErrMsgValueDisallowedInStaticCall   = errors.New("value disallowed in static call")
	ErrMsgValueDisallowedInDelegateCall = errors.New("value disallowed in delegate call")
	ErrDelegateCallUnsupported          = errors.New("delegate call unsupported")
	ErrNoContractBytecodeProvided       = errors.New("no contract bytecode provided")
	ErrUnsupportedFunction              = errors.New("unsupported function")
)

// Verifier authorizes calls made to the profile by an address other than its
// owner. Every successful VerifyCall is followed by exactly one
// VerifyCallResult once the call returns, whether it failed or not.
type Verifier interface {
	VerifyCall(caller common.Address, value *uint256.Int, payload []byte) error
	VerifyCallResult()
}

type snapshot struct {
	journal int
	chain   int
}

// Profile is an ERC725 account. It is not safe for concurrent use.
type Profile struct {
	address      common.Address
	owner        common.Address
	pendingOwner common.Address
	verifier     Verifier

	chain *SimulatedChain
	data  database.Database
	log   logging.Logger

	// pending holds the writes not yet committed to [data]. An empty value
	// deletes the key.
	pending map[string][]byte

	journal   []func() error
	snapshots []snapshot
}

// New returns the profile at [address] owned by [owner]. Its data is stored
// in [db] under a prefix derived from [address].
func New(
	address common.Address,
	owner common.Address,
	db database.Database,
	chain *SimulatedChain,
	log logging.Logger,
) *Profile {
	return &Profile{
		address: address,
		owner:   owner,
		chain:   chain,
		data:    prefixdb.New(address.Bytes(), db),
		log:     log,
		pending: make(map[string][]byte),
	}
}

func (p *Profile) Address() common.Address {
	return p.address
}

func (p *Profile) Owner() common.Address {
	return p.owner
}

func (p *Profile) PendingOwner() common.Address {
	return p.pendingOwner
}

// SetVerifier sets the verifier consulted for calls from non-owners.
func (p *Profile) SetVerifier(verifier Verifier) {
	p.verifier = verifier
}

// GetData returns the value stored under [key], or an empty value.
// Uncommitted writes are visible.
func (p *Profile) GetData(key common.Hash) ([]byte, error) {
	if value, ok := p.pending[string(key[:])]; ok {
		return slices.Clone(value), nil
	}
	return database.GetOrEmpty(p.data, key[:])
}

func (p *Profile) GetDataBatch(keys []common.Hash) ([][]byte, error) {
	values := make([][]byte, len(keys))
	for i, key := range keys {
		value, err := p.GetData(key)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// SetData stages [value] under [key] without any authorization. An empty
// value clears the key. Staged writes reach the database on Finalise.
func (p *Profile) SetData(key common.Hash, value []byte) error {
	k := string(key[:])
	previous, staged := p.pending[k]
	if value == nil {
		value = []byte{}
	}
	p.pending[k] = slices.Clone(value)
	p.journal = append(p.journal, func() error {
		if staged {
			p.pending[k] = previous
		} else {
			delete(p.pending, k)
		}
		return nil
	})
	p.log.Verbo("data set",
		zap.Stringer("profile", p.address),
		zap.Stringer("key", key),
		zap.Int("length", len(value)),
	)
	return nil
}

func putOrDelete(db database.KeyValueWriterDeleter, key, value []byte) error {
	if len(value) == 0 {
		return db.Delete(key)
	}
	return db.Put(key, value)
}

// Snapshot returns an identifier of the current profile and chain state.
func (p *Profile) Snapshot() int {
	p.snapshots = append(p.snapshots, snapshot{
		journal: len(p.journal),
		chain:   p.chain.Snapshot(),
	})
	return len(p.snapshots) - 1
}

// RevertToSnapshot discards every change made after [Snapshot] returned
// [id].
func (p *Profile) RevertToSnapshot(id int) {
	if id < 0 || id >= len(p.snapshots) {
		p.log.Error("invalid profile snapshot",
			zap.Int("id", id),
			zap.Int("snapshots", len(p.snapshots)),
		)
		return
	}
	s := p.snapshots[id]
	for i := len(p.journal) - 1; i >= s.journal; i-- {
		if err := p.journal[i](); err != nil {
			p.log.Error("failed to revert profile data",
				zap.Stringer("profile", p.address),
				zap.Error(err),
			)
		}
	}
	p.journal = p.journal[:s.journal]
	p.snapshots = p.snapshots[:id]
	p.chain.RevertToSnapshot(s.chain)
}

// Finalise commits the staged writes in a single batch and drops the undo
// information of every change made so far. Nothing is dropped if the batch
// fails.
func (p *Profile) Finalise() error {
	batch := p.data.NewBatch()
	for key, value := range p.pending {
		if err := putOrDelete(batch, []byte(key), value); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	p.log.Verbo("profile data committed",
		zap.Stringer("profile", p.address),
		zap.Int("numKeys", len(p.pending)),
	)

	p.pending = make(map[string][]byte)
	p.journal = nil
	p.snapshots = nil
	return nil
}

// Call runs [payload] sent by [caller]. Calls from anyone but the owner must
// pass the verifier first.
func (p *Profile) Call(caller common.Address, value *uint256.Int, payload []byte) ([]byte, error) {
	if caller == p.owner || erc725.Selector(payload) == erc725.AcceptOwnershipSelector {
		return p.dispatchFrom(caller, caller, value, payload)
	}
	if p.verifier == nil {
		return nil, fmt.Errorf("%w: %s", ErrCallerNotOwner, caller)
	}
	if err := p.verifier.VerifyCall(caller, value, payload); err != nil {
		return nil, err
	}
	defer p.verifier.VerifyCallResult()

	return p.dispatchFrom(caller, p.owner, value, payload)
}

// Dispatch runs ERC725 calldata [payload] sent by [caller]. [value] is paid
// by [caller] before the payload runs. A failed dispatch leaves no state
// change behind.
func (p *Profile) Dispatch(caller common.Address, value *uint256.Int, payload []byte) ([]byte, error) {
	return p.dispatchFrom(caller, caller, value, payload)
}

// dispatchFrom runs [payload] as [caller] with [value] paid by [sender].
func (p *Profile) dispatchFrom(sender, caller common.Address, value *uint256.Int, payload []byte) ([]byte, error) {
	method, err := erc725.Method(payload)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = new(uint256.Int)
	}

	id := p.Snapshot()
	result, err := p.dispatch(sender, caller, value, method.Name, payload)
	if err != nil {
		p.RevertToSnapshot(id)
		return nil, err
	}
	return result, nil
}

// receive moves [value] from [sender] to the profile. Value sent by an
// account without any balance comes from outside the simulated chain and is
// minted.
func (p *Profile) receive(sender common.Address, value *uint256.Int) error {
	if p.chain.Balance(sender).IsZero() {
		p.chain.AddBalance(p.address, value)
		return nil
	}
	return p.chain.Transfer(sender, p.address, value)
}

func (p *Profile) dispatch(sender, caller common.Address, value *uint256.Int, method string, payload []byte) ([]byte, error) {
	if err := p.receive(sender, value); err != nil {
		return nil, err
	}

	switch method {
	case "acceptOwnership":
		return nil, p.acceptOwnership(caller)
	case "getData":
		args, err := erc725.ERC725ABI.Methods[method].Inputs.Unpack(payload[erc725.SelectorLen:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", erc725.ErrInvalidArguments, err)
		}
		data, err := p.GetData(common.Hash(args[0].([32]byte)))
		if err != nil {
			return nil, err
		}
		return erc725.PackGetDataOutput(data)
	}
	if caller != p.owner {
		return nil, fmt.Errorf("%w: %s", ErrCallerNotOwner, caller)
	}

	switch method {
	case "setData":
		input, err := erc725.UnpackSetDataInput(payload)
		if err != nil {
			return nil, err
		}
		return nil, p.SetData(input.Key, input.Value)
	case "setDataBatch":
		keys, values, err := erc725.UnpackSetDataBatchInput(payload)
		if err != nil {
			return nil, err
		}
		if len(keys) != len(values) {
			return nil, fmt.Errorf("%w: %d keys, %d values", erc725.ErrBatchLengthsDiffer, len(keys), len(values))
		}
		for i, key := range keys {
			if err := p.SetData(key, values[i]); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "execute":
		input, err := erc725.UnpackExecuteInput(payload)
		if err != nil {
			return nil, err
		}
		result, err := p.execute(input)
		if err != nil {
			return nil, err
		}
		return erc725.PackExecuteOutput(result)
	case "executeBatch":
		inputs, err := erc725.UnpackExecuteBatchInput(payload)
		if err != nil {
			return nil, err
		}
		results := make([][]byte, len(inputs))
		for i, input := range inputs {
			result, err := p.execute(input)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			results[i] = result
		}
		return erc725.PackExecuteBatchOutput(results)
	case "transferOwnership":
		newOwner, err := erc725.UnpackTransferOwnershipInput(payload)
		if err != nil {
			return nil, err
		}
		return nil, p.transferOwnership(newOwner)
	case "renounceOwnership":
		p.setOwners(common.Address{}, common.Address{})
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFunction, method)
	}
}

func (p *Profile) execute(input erc725.ExecuteInput) ([]byte, error) {
	value := input.Value
	if value == nil {
		value = new(uint256.Int)
	}

	switch input.Operation {
	case erc725.OperationCall:
		return p.chain.Call(p.address, input.Target, value, input.Data, false)
	case erc725.OperationStaticCall:
		if !value.IsZero() {
			return nil, ErrMsgValueDisallowedInStaticCall
		}
		return p.chain.Call(p.address, input.Target, value, input.Data, true)
	case erc725.OperationDelegateCall:
		if !value.IsZero() {
			return nil, ErrMsgValueDisallowedInDelegateCall
		}
		return nil, ErrDelegateCallUnsupported
	case erc725.OperationCreate:
		if len(input.Data) == 0 {
			return nil, ErrNoContractBytecodeProvided
		}
		addr, err := p.chain.Create(p.address, value, input.Data, nil)
		if err != nil {
			return nil, err
		}
		return addr.Bytes(), nil
	case erc725.OperationCreate2:
		if len(input.Data) <= common.HashLength {
			return nil, ErrNoContractBytecodeProvided
		}
		codeLen := len(input.Data) - common.HashLength
		salt := common.BytesToHash(input.Data[codeLen:])
		addr, err := p.chain.Create(p.address, value, input.Data[:codeLen], &salt)
		if err != nil {
			return nil, err
		}
		return addr.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", erc725.ErrUnknownOperation, input.Operation)
	}
}

func (p *Profile) transferOwnership(newOwner common.Address) error {
	if newOwner == p.address {
		return ErrCannotTransferOwnershipToSelf
	}
	p.setOwners(p.owner, newOwner)
	return nil
}

func (p *Profile) acceptOwnership(caller common.Address) error {
	if caller != p.pendingOwner {
		return fmt.Errorf("%w: %s", ErrCallerNotPendingOwner, caller)
	}
	p.setOwners(caller, common.Address{})
	return nil
}

func (p *Profile) setOwners(owner, pendingOwner common.Address) {
	previousOwner, previousPending := p.owner, p.pendingOwner
	p.owner, p.pendingOwner = owner, pendingOwner
	p.journal = append(p.journal, func() error {
		p.owner, p.pendingOwner = previousOwner, previousPending
		return nil
	})
	p.log.Debug("ownership changed",
		zap.Stringer("profile", p.address),
		zap.Stringer("owner", owner),
		zap.Stringer("pendingOwner", pendingOwner),
	)
}
