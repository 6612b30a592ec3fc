// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ava-labs/keymanager/database"
)

const (
	// halfBits is the width of a nonce channel and of its sequence.
	halfBits = 128
	halfLen  = halfBits / 8
)

var (
	ErrChannelTooLarge  = errors.New("nonce channel does not fit in 128 bits")
	ErrSequenceOverflow = errors.New("nonce sequence overflow")
	errCorruptSequence  = errors.New("corrupt stored nonce sequence")
	errCorruptNonceKey  = errors.New("corrupt stored nonce key")

	lowerMask = new(uint256.Int).SetBytes(common.FromHex("0xffffffffffffffffffffffffffffffff"))
)

// SplitNonce returns the channel (upper 128 bits) and sequence (lower 128
// bits) of [nonce].
func SplitNonce(nonce *uint256.Int) (channel, sequence *uint256.Int) {
	channel = new(uint256.Int).Rsh(nonce, halfBits)
	sequence = new(uint256.Int).And(nonce, lowerMask)
	return channel, sequence
}

// JoinNonce returns channel<<128 | sequence. Both halves are truncated to 128
// bits.
func JoinNonce(channel, sequence *uint256.Int) *uint256.Int {
	upper := new(uint256.Int).And(channel, lowerMask)
	upper.Lsh(upper, halfBits)
	lower := new(uint256.Int).And(sequence, lowerMask)
	return upper.Or(upper, lower)
}

// NonceDB is the storage of a NonceTracker.
type NonceDB interface {
	database.KeyValueReaderWriterDeleter
	database.Iteratee
}

// NonceTracker stores the next sequence number of every (signer, channel)
// pair. Missing entries read as zero. Entries are keyed by signer then
// channel, so the channels of a signer are iterated in ascending order.
type NonceTracker struct {
	db NonceDB
}

func NewNonceTracker(db NonceDB) *NonceTracker {
	return &NonceTracker{db: db}
}

func nonceKey(signer common.Address, channel *uint256.Int) []byte {
	channelBytes := channel.Bytes32()
	key := make([]byte, 0, common.AddressLength+halfLen)
	key = append(key, signer[:]...)
	return append(key, channelBytes[halfLen:]...)
}

func checkChannel(channel *uint256.Int) error {
	if channel.BitLen() > halfBits {
		return fmt.Errorf("%w: %s", ErrChannelTooLarge, channel.Hex())
	}
	return nil
}

// Sequence returns the next valid sequence of [signer] on [channel].
func (t *NonceTracker) Sequence(signer common.Address, channel *uint256.Int) (*uint256.Int, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	value, err := database.GetOrEmpty(t.db, nonceKey(signer, channel))
	if err != nil {
		return nil, err
	}
	switch len(value) {
	case 0:
		return new(uint256.Int), nil
	case halfLen:
		return new(uint256.Int).SetBytes(value), nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", errCorruptSequence, len(value))
	}
}

// Nonce returns the next valid nonce of [signer] on [channel], that is
// channel<<128 | sequence.
func (t *NonceTracker) Nonce(signer common.Address, channel *uint256.Int) (*uint256.Int, error) {
	sequence, err := t.Sequence(signer, channel)
	if err != nil {
		return nil, err
	}
	return JoinNonce(channel, sequence), nil
}

// IsValid reports whether [nonce] is the next valid nonce of [signer] on the
// channel it encodes.
func (t *NonceTracker) IsValid(signer common.Address, nonce *uint256.Int) (bool, error) {
	channel, sequence := SplitNonce(nonce)
	expected, err := t.Sequence(signer, channel)
	if err != nil {
		return false, err
	}
	return expected.Eq(sequence), nil
}

// SetSequence overwrites the next sequence of [signer] on [channel].
func (t *NonceTracker) SetSequence(signer common.Address, channel, sequence *uint256.Int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if sequence.BitLen() > halfBits {
		return fmt.Errorf("%w: %s", ErrSequenceOverflow, sequence.Hex())
	}
	key := nonceKey(signer, channel)
	if sequence.IsZero() {
		return t.db.Delete(key)
	}
	b := sequence.Bytes32()
	return t.db.Put(key, b[halfLen:])
}

// Channels returns the channels on which [signer] has a non zero sequence,
// in ascending order.
func (t *NonceTracker) Channels(signer common.Address) ([]*uint256.Int, error) {
	it := t.db.NewIteratorWithPrefix(signer[:])
	defer it.Release()

	var channels []*uint256.Int
	for it.Next() {
		key := it.Key()
		if len(key) != common.AddressLength+halfLen {
			return nil, fmt.Errorf("%w: %d bytes", errCorruptNonceKey, len(key))
		}
		channels = append(channels, new(uint256.Int).SetBytes(key[common.AddressLength:]))
	}
	return channels, it.Error()
}

// Increment advances the sequence of [signer] on [channel] and returns the
// sequence it replaced.
func (t *NonceTracker) Increment(signer common.Address, channel *uint256.Int) (*uint256.Int, error) {
	previous, err := t.Sequence(signer, channel)
	if err != nil {
		return nil, err
	}
	next := new(uint256.Int).AddUint64(previous, 1)
	if err := t.SetSequence(signer, channel, next); err != nil {
		return nil, err
	}
	return previous, nil
}
