// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay implements the LSP25 execute relay call message format and
// the primitives the key manager uses to verify relayed calls: EIP-191
// version 0 hashing, signer recovery, nonce channels and validity windows.
package relay

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LSP25Version is the version number prefixed to every signed message.
const LSP25Version = 25

var (
	ErrNilChainID      = errors.New("nil chain id")
	ErrChainIDTooLarge = errors.New("chain id does not fit in 256 bits")
	ErrNegativeChainID = errors.New("negative chain id")
)

// Message is the LSP25 message a controller signs to have a relayer submit
// [Payload] on its behalf.
type Message struct {
	ChainID            *big.Int
	Nonce              *uint256.Int
	ValidityTimestamps *uint256.Int
	Value              *uint256.Int
	Payload            []byte
}

// Bytes returns abi.encodePacked(LSP25Version, chainId, nonce,
// validityTimestamps, value, payload).
func (m *Message) Bytes() ([]byte, error) {
	chainID, err := chainIDWord(m.ChainID)
	if err != nil {
		return nil, err
	}

	words := [...]*uint256.Int{
		uint256.NewInt(LSP25Version),
		chainID,
		orZero(m.Nonce),
		orZero(m.ValidityTimestamps),
		orZero(m.Value),
	}

	b := make([]byte, 0, len(words)*common.HashLength+len(m.Payload))
	for _, word := range words {
		w := word.Bytes32()
		b = append(b, w[:]...)
	}
	return append(b, m.Payload...), nil
}

// Hash returns the EIP-191 version 0 hash of the message bound to
// [validator].
func (m *Message) Hash(validator common.Address) (common.Hash, error) {
	b, err := m.Bytes()
	if err != nil {
		return common.Hash{}, err
	}
	return HashWithIntendedValidator(validator, b), nil
}

func chainIDWord(chainID *big.Int) (*uint256.Int, error) {
	switch {
	case chainID == nil:
		return nil, ErrNilChainID
	case chainID.Sign() < 0:
		return nil, ErrNegativeChainID
	}
	word, overflow := uint256.FromBig(chainID)
	if overflow {
		return nil, ErrChainIDTooLarge
	}
	return word, nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
