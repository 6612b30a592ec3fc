// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/relay"
)

// RelayCall is a payload signed by a controller and submitted by a relayer.
type RelayCall struct {
	Signature          []byte
	Nonce              *uint256.Int
	ValidityTimestamps *uint256.Int
	Value              *uint256.Int
	Payload            []byte
}

// GetNonce returns the next nonce of [signer] on [channel].
func (k *KeyManager) GetNonce(signer common.Address, channel *uint256.Int) (*uint256.Int, error) {
	return k.nonces.Nonce(signer, channel)
}

// GetNonces returns the next nonce of every channel [signer] has used, in
// ascending channel order.
func (k *KeyManager) GetNonces(signer common.Address) ([]*uint256.Int, error) {
	channels, err := k.nonces.Channels(signer)
	if err != nil {
		return nil, err
	}
	nonces := make([]*uint256.Int, len(channels))
	for i, channel := range channels {
		nonces[i], err = k.nonces.Nonce(signer, channel)
		if err != nil {
			return nil, err
		}
	}
	return nonces, nil
}

// ExecuteRelayCall recovers the signer of [call], checks its nonce, validity
// window and EXECUTE_RELAY_CALL permission, then runs the payload with the
// signer as caller. [relayer] attaches [call.Value].
func (k *KeyManager) ExecuteRelayCall(relayer common.Address, call RelayCall) ([]byte, error) {
	result, err := k.atomic(func() ([]byte, error) {
		return k.executeRelayCall(relayer, call)
	})
	k.record(executeRelayCallMethod, relayer, call.Payload, err)
	return result, err
}

// ExecuteRelayCallBatch runs every call in order as ExecuteRelayCall would.
// The values of the calls must add up to [attached] exactly. Any failure
// reverts the whole batch, including nonce increments.
func (k *KeyManager) ExecuteRelayCallBatch(relayer common.Address, attached *uint256.Int, calls []RelayCall) ([][]byte, error) {
	results, err := k.atomicBatch(func() ([][]byte, error) {
		values := make([]*uint256.Int, len(calls))
		for i, call := range calls {
			values[i] = call.Value
		}
		if err := checkValues(attached, values); err != nil {
			return nil, err
		}

		results := make([][]byte, len(calls))
		for i, call := range calls {
			result, err := k.executeRelayCall(relayer, call)
			if err != nil {
				return nil, fmt.Errorf("batch relay call %d: %w", i, err)
			}
			results[i] = result
			k.metrics.batchedCalls.Inc()
		}
		return results, nil
	})
	k.record(executeRelayCallBatchMethod, relayer, nil, err)
	return results, err
}

// NewRelayCalls zips the parallel arrays of a relay batch.
func NewRelayCalls(
	signatures [][]byte,
	nonces []*uint256.Int,
	validityTimestamps []*uint256.Int,
	values []*uint256.Int,
	payloads [][]byte,
) ([]RelayCall, error) {
	n := len(signatures)
	if len(nonces) != n || len(validityTimestamps) != n || len(values) != n || len(payloads) != n {
		return nil, fmt.Errorf("%w: %d signatures, %d nonces, %d validity timestamps, %d values, %d payloads",
			ErrBatchExecuteRelayCallParamsLengthMismatch,
			n, len(nonces), len(validityTimestamps), len(values), len(payloads),
		)
	}
	calls := make([]RelayCall, n)
	for i := range calls {
		calls[i] = RelayCall{
			Signature:          signatures[i],
			Nonce:              nonces[i],
			ValidityTimestamps: validityTimestamps[i],
			Value:              values[i],
			Payload:            payloads[i],
		}
	}
	return calls, nil
}

func (k *KeyManager) executeRelayCall(relayer common.Address, call RelayCall) ([]byte, error) {
	if len(call.Payload) < erc725.SelectorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(call.Payload))
	}
	nonce := orZero(call.Nonce)
	validity := orZero(call.ValidityTimestamps)
	value := orZero(call.Value)

	msg := &relay.Message{
		ChainID:            k.chain.ChainID(),
		Nonce:              nonce,
		ValidityTimestamps: validity,
		Value:              value,
		Payload:            call.Payload,
	}
	hash, err := msg.Hash(k.address)
	if err != nil {
		return nil, err
	}
	signer, err := k.recoverer.Recover(hash, call.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	valid, err := k.nonces.IsValid(signer, nonce)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, &InvalidRelayNonceError{
			Signer:    signer,
			Nonce:     new(uint256.Int).Set(nonce),
			Signature: call.Signature,
		}
	}
	if err := relay.VerifyValidityTimestamps(validity, k.chain.Timestamp()); err != nil {
		return nil, err
	}

	release, err := k.nonReentrantBefore(signer, call.Payload)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := k.verifyPermissions(signer, call.Payload, true); err != nil {
		return nil, err
	}
	if err := k.incrementNonce(signer, nonce); err != nil {
		return nil, err
	}

	k.metrics.relayedCalls.Inc()
	k.log.Debug("relaying call",
		zap.Stringer("relayer", relayer),
		zap.Stringer("signer", signer),
		zap.String("nonce", nonce.Hex()),
	)
	return k.dispatch(value, call.Payload)
}

func (k *KeyManager) incrementNonce(signer common.Address, nonce *uint256.Int) error {
	channel, _ := relay.SplitNonce(nonce)
	previous, err := k.nonces.Increment(signer, channel)
	if err != nil {
		return err
	}
	k.journal.append(func() error {
		return k.nonces.SetSequence(signer, channel, previous)
	})
	return nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
