// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	decredecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	_ Recoverer = EthRecoverer{}
	_ Recoverer = CompactRecoverer{}

	ErrInvalidSignatureLength = errors.New("invalid signature length")
	ErrInvalidSignatureV      = errors.New("invalid signature v value")
	ErrInvalidSignatureS      = errors.New("invalid signature s value")
	ErrRecoveryFailed         = errors.New("failed to recover signer")
	ErrUnknownRecoverer       = errors.New("unknown signature recoverer")
)

const (
	EthRecovererName     = "eth"
	CompactRecovererName = "compact"
)

// NewRecoverer returns the Recoverer registered under [name].
func NewRecoverer(name string) (Recoverer, error) {
	switch name {
	case EthRecovererName:
		return EthRecoverer{}, nil
	case CompactRecovererName:
		return CompactRecoverer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q should be one of {%s, %s}",
			ErrUnknownRecoverer,
			name,
			EthRecovererName,
			CompactRecovererName,
		)
	}
}

// Recoverer returns the address that produced a 65 byte [R || S || V]
// signature over a 32 byte hash. V may be 0, 1, 27 or 28. Signatures with a
// high S value are rejected.
type Recoverer interface {
	Recover(hash common.Hash, sig []byte) (common.Address, error)
}

// recoveryID checks the signature shape and returns its 0/1 recovery id.
func recoveryID(sig []byte) (byte, error) {
	if len(sig) != SignatureLen {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSignatureLength, len(sig))
	}
	v := sig[SignatureLen-1]
	if v >= signatureVOffset {
		v -= signatureVOffset
	}
	if v > 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSignatureV, sig[SignatureLen-1])
	}
	return v, nil
}

// EthRecoverer recovers signers with go-ethereum's secp256k1 bindings.
type EthRecoverer struct{}

func (EthRecoverer) Recover(hash common.Hash, sig []byte) (common.Address, error) {
	v, err := recoveryID(sig)
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, ErrInvalidSignatureS
	}

	normalized := make([]byte, SignatureLen)
	copy(normalized, sig)
	normalized[SignatureLen-1] = v

	pub, err := crypto.SigToPub(hash[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// CompactRecoverer recovers signers with the pure Go decred implementation.
type CompactRecoverer struct{}

func (CompactRecoverer) Recover(hash common.Hash, sig []byte) (common.Address, error) {
	v, err := recoveryID(sig)
	if err != nil {
		return common.Address{}, err
	}

	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(sig[32:64]); overflow || s.IsZero() || s.IsOverHalfOrder() {
		return common.Address{}, ErrInvalidSignatureS
	}

	// compact signatures are [V || R || S] with V offset by 27
	compact := make([]byte, SignatureLen)
	compact[0] = v + signatureVOffset
	copy(compact[1:], sig[:64])

	pub, compressed, err := decredecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	if compressed {
		return common.Address{}, fmt.Errorf("%w: compressed key", ErrRecoveryFailed)
	}
	return pubkeyToAddress(pub), nil
}

func pubkeyToAddress(pub *secp256k1.PublicKey) common.Address {
	hasher := sha3.NewLegacyKeccak256()
	// drop the 0x04 uncompressed point marker
	_, _ = hasher.Write(pub.SerializeUncompressed()[1:])
	return common.BytesToAddress(hasher.Sum(nil)[12:])
}
