// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	eip191Prefix = 0x19
	// eip191Version is the "data with intended validator" version.
	eip191Version = 0x00

	// SignatureLen is the length of an [R || S || V] signature.
	SignatureLen = crypto.SignatureLength

	// signatureVOffset is added to the recovery id by Ethereum signers.
	signatureVOffset = 27
)

// HashWithIntendedValidator returns
// keccak256(0x19 || 0x00 || validator || data).
func HashWithIntendedValidator(validator common.Address, data []byte) common.Hash {
	return crypto.Keccak256Hash(
		[]byte{eip191Prefix, eip191Version},
		validator[:],
		data,
	)
}

// SignWithIntendedValidator signs [data] for [validator] and returns a
// signature whose V is 27 or 28.
func SignWithIntendedValidator(key *ecdsa.PrivateKey, validator common.Address, data []byte) ([]byte, error) {
	return SignHash(key, HashWithIntendedValidator(validator, data))
}

// SignHash signs [hash] and returns a signature whose V is 27 or 28.
func SignHash(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, err
	}
	sig[SignatureLen-1] += signatureVOffset
	return sig, nil
}

// SignMessage signs [msg] for the key manager at [validator].
func SignMessage(key *ecdsa.PrivateKey, validator common.Address, msg *Message) ([]byte, error) {
	b, err := msg.Bytes()
	if err != nil {
		return nil, err
	}
	return SignWithIntendedValidator(key, validator, b)
}
