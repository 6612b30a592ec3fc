// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DataReader reads the ERC725Y data store of a profile. Missing keys read as
// empty values.
type DataReader interface {
	GetData(key common.Hash) ([]byte, error)
	GetDataBatch(keys []common.Hash) ([][]byte, error)
}

// Profile is the account controlled by the key manager.
type Profile interface {
	DataReader

	Address() common.Address

	// Dispatch runs ERC725 calldata [payload] on the profile on behalf of
	// [caller], forwarding [value]. It is only called once the payload has
	// been authorized.
	Dispatch(caller common.Address, value *uint256.Int, payload []byte) ([]byte, error)

	// Snapshot returns an identifier of the current profile state.
	Snapshot() int
	// RevertToSnapshot discards every change made after [Snapshot] returned
	// [id].
	RevertToSnapshot(id int)
}

// ChainContext exposes the environment of the chain the key manager runs on.
type ChainContext interface {
	ChainID() *big.Int
	// Timestamp is the current block timestamp in seconds.
	Timestamp() uint64
	// SupportsInterface reports whether [addr] implements the ERC165
	// interface [interfaceID].
	SupportsInterface(addr common.Address, interfaceID [4]byte) bool
}
