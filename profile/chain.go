// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package profile

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ava-labs/keymanager/utils/timer/mockable"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrContractExists      = errors.New("contract already exists")
	ErrWriteProtection     = errors.New("value transfer in read-only call")
)

// Contract is code deployed on a SimulatedChain.
type Contract interface {
	Run(ctx CallContext, input []byte) ([]byte, error)
}

// InterfaceSupporter is implemented by contracts that answer ERC165 queries.
type InterfaceSupporter interface {
	SupportsInterface(interfaceID [4]byte) bool
}

// ContractFunc adapts a function to the Contract interface.
type ContractFunc func(ctx CallContext, input []byte) ([]byte, error)

func (f ContractFunc) Run(ctx CallContext, input []byte) ([]byte, error) {
	return f(ctx, input)
}

// CallContext describes the call a contract is running.
type CallContext struct {
	Chain    *SimulatedChain
	Caller   common.Address
	Self     common.Address
	Value    *uint256.Int
	ReadOnly bool
}

// bytecode is a contract created through CREATE or CREATE2. Its code is
// stored but never interpreted.
type bytecode []byte

func (bytecode) Run(CallContext, []byte) ([]byte, error) {
	return nil, nil
}

// SimulatedChain is an in-memory chain environment: balances, contracts and
// a mockable block timestamp. It implements the chain context the key
// manager reads.
type SimulatedChain struct {
	Clock mockable.Clock

	chainID   *big.Int
	balances  map[common.Address]*uint256.Int
	contracts map[common.Address]Contract
	nonces    map[common.Address]uint64

	journal []func()
}

func NewSimulatedChain(chainID *big.Int) *SimulatedChain {
	return &SimulatedChain{
		chainID:   new(big.Int).Set(chainID),
		balances:  make(map[common.Address]*uint256.Int),
		contracts: make(map[common.Address]Contract),
		nonces:    make(map[common.Address]uint64),
	}
}

func (c *SimulatedChain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *SimulatedChain) Timestamp() uint64 {
	return c.Clock.Unix()
}

// SupportsInterface reports whether the contract at [addr] answers true to
// the ERC165 query [interfaceID].
func (c *SimulatedChain) SupportsInterface(addr common.Address, interfaceID [4]byte) bool {
	supporter, ok := c.contracts[addr].(InterfaceSupporter)
	return ok && supporter.SupportsInterface(interfaceID)
}

// Deploy places [contract] at [addr].
func (c *SimulatedChain) Deploy(addr common.Address, contract Contract) {
	previous, existed := c.contracts[addr]
	c.contracts[addr] = contract
	c.journal = append(c.journal, func() {
		if existed {
			c.contracts[addr] = previous
		} else {
			delete(c.contracts, addr)
		}
	})
}

// HasCode reports whether a contract is deployed at [addr].
func (c *SimulatedChain) HasCode(addr common.Address) bool {
	_, ok := c.contracts[addr]
	return ok
}

// Code returns the creation code stored at [addr], if it was created through
// CREATE or CREATE2.
func (c *SimulatedChain) Code(addr common.Address) []byte {
	code, _ := c.contracts[addr].(bytecode)
	return code
}

func (c *SimulatedChain) Balance(addr common.Address) *uint256.Int {
	if balance, ok := c.balances[addr]; ok {
		return new(uint256.Int).Set(balance)
	}
	return new(uint256.Int)
}

func (c *SimulatedChain) SetBalance(addr common.Address, balance *uint256.Int) {
	previous, existed := c.balances[addr]
	c.balances[addr] = new(uint256.Int).Set(balance)
	c.journal = append(c.journal, func() {
		if existed {
			c.balances[addr] = previous
		} else {
			delete(c.balances, addr)
		}
	})
}

// AddBalance credits [value] to [addr].
func (c *SimulatedChain) AddBalance(addr common.Address, value *uint256.Int) {
	if value.IsZero() {
		return
	}
	c.SetBalance(addr, new(uint256.Int).Add(c.Balance(addr), value))
}

// Transfer moves [value] from [from] to [to].
func (c *SimulatedChain) Transfer(from, to common.Address, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	balance := c.Balance(from)
	if balance.Lt(value) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, balance.ToBig(), value.ToBig())
	}
	c.SetBalance(from, new(uint256.Int).Sub(balance, value))
	c.AddBalance(to, value)
	return nil
}

// Call transfers [value] from [from] to [to] and runs the contract at [to],
// if any. Failed calls leave no state change behind.
func (c *SimulatedChain) Call(from, to common.Address, value *uint256.Int, input []byte, readOnly bool) ([]byte, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	if readOnly && !value.IsZero() {
		return nil, ErrWriteProtection
	}

	snapshot := c.Snapshot()
	if err := c.Transfer(from, to, value); err != nil {
		return nil, err
	}
	contract, ok := c.contracts[to]
	if !ok {
		return nil, nil
	}
	result, err := contract.Run(CallContext{
		Chain:    c,
		Caller:   from,
		Self:     to,
		Value:    new(uint256.Int).Set(value),
		ReadOnly: readOnly,
	}, input)
	if err != nil {
		c.RevertToSnapshot(snapshot)
		return nil, err
	}
	return result, nil
}

// Create deploys [code] from [from] with [value] and returns the new
// address. A nil [salt] derives the address as CREATE does, otherwise as
// CREATE2 does.
func (c *SimulatedChain) Create(from common.Address, value *uint256.Int, code []byte, salt *common.Hash) (common.Address, error) {
	var addr common.Address
	if salt == nil {
		nonce := c.nonces[from]
		addr = crypto.CreateAddress(from, nonce)
		c.nonces[from] = nonce + 1
		c.journal = append(c.journal, func() {
			c.nonces[from] = nonce
		})
	} else {
		addr = crypto.CreateAddress2(from, *salt, crypto.Keccak256(code))
	}
	if c.HasCode(addr) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrContractExists, addr)
	}

	if err := c.Transfer(from, addr, value); err != nil {
		return common.Address{}, err
	}
	c.Deploy(addr, bytecode(code))
	return addr, nil
}

// Snapshot returns an identifier of the current chain state.
func (c *SimulatedChain) Snapshot() int {
	return len(c.journal)
}

// RevertToSnapshot undoes every change made after [Snapshot] returned [id].
func (c *SimulatedChain) RevertToSnapshot(id int) {
	for i := len(c.journal) - 1; i >= id; i-- {
		c.journal[i]()
	}
	c.journal = c.journal[:id]
}
