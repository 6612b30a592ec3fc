// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keymanager mediates every action a controller may perform on a
// profile: it reads the controller's permissions, allowed calls and allowed
// data keys from the profile, authorizes the payload, and only then
// dispatches it to the profile.
package keymanager

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ava-labs/keymanager/erc725"
	"github.com/ava-labs/keymanager/permissions"
	"github.com/ava-labs/keymanager/relay"
	"github.com/ava-labs/keymanager/utils/logging"
)

const (
	executeMethod               = "execute"
	executeBatchMethod          = "executeBatch"
	executeRelayCallMethod      = "executeRelayCall"
	executeRelayCallBatchMethod = "executeRelayCallBatch"
	verifyCallMethod            = "verifyCall"
)

var (
	errNilProfile = errors.New("nil profile")
	errNilChain   = errors.New("nil chain context")
	errNilNonces  = errors.New("nil nonce tracker")
)

// Config holds the collaborators of a KeyManager.
type Config struct {
	// Address of the key manager. Relay signatures are bound to it.
	Address common.Address
	Profile Profile
	Chain   ChainContext
	Nonces  *relay.NonceTracker

	// Recoverer defaults to relay.EthRecoverer.
	Recoverer relay.Recoverer
	// Log defaults to logging.NoLog.
	Log logging.Logger

	MetricsNamespace string
	// Registerer defaults to a fresh registry.
	Registerer prometheus.Registerer
}

// KeyManager authorizes and forwards calls to a single profile. It is not
// safe for concurrent use.
type KeyManager struct {
	address   common.Address
	profile   Profile
	chain     ChainContext
	store     *Store
	nonces    *relay.NonceTracker
	recoverer relay.Recoverer
	log       logging.Logger
	metrics   *metrics

	// executing is set while a non setData payload is being dispatched.
	executing bool
	// releases holds one release per VerifyCall awaiting its result.
	releases []func()
	// depth counts the nested atomic sections in progress.
	depth   int
	journal journal
}

func New(config Config) (*KeyManager, error) {
	switch {
	case config.Profile == nil:
		return nil, errNilProfile
	case config.Chain == nil:
		return nil, errNilChain
	case config.Nonces == nil:
		return nil, errNilNonces
	}
	if config.Recoverer == nil {
		config.Recoverer = relay.EthRecoverer{}
	}
	if config.Log == nil {
		config.Log = logging.NoLog{}
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}

	m, err := newMetrics(config.MetricsNamespace, config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("couldn't register key manager metrics: %w", err)
	}
	return &KeyManager{
		address:   config.Address,
		profile:   config.Profile,
		chain:     config.Chain,
		store:     NewStore(config.Profile),
		nonces:    config.Nonces,
		recoverer: config.Recoverer,
		log:       config.Log,
		metrics:   m,
	}, nil
}

// Address returns the address of the key manager.
func (k *KeyManager) Address() common.Address {
	return k.address
}

// Target returns the address of the profile controlled by the key manager.
func (k *KeyManager) Target() common.Address {
	return k.profile.Address()
}

// Store returns the reader of the controller records.
func (k *KeyManager) Store() *Store {
	return k.store
}

// Execute authorizes [payload] for [caller] and dispatches it to the profile
// along with [value].
func (k *KeyManager) Execute(caller common.Address, value *uint256.Int, payload []byte) ([]byte, error) {
	result, err := k.atomic(func() ([]byte, error) {
		return k.execute(caller, value, payload)
	})
	k.record(executeMethod, caller, payload, err)
	return result, err
}

// ExecuteBatch runs every (values[i], payloads[i]) pair in order as Execute
// would. The values must add up to [attached] exactly. Any failure reverts
// the whole batch.
func (k *KeyManager) ExecuteBatch(caller common.Address, attached *uint256.Int, values []*uint256.Int, payloads [][]byte) ([][]byte, error) {
	results, err := k.atomicBatch(func() ([][]byte, error) {
		if len(values) != len(payloads) {
			return nil, fmt.Errorf("%w: %d values, %d payloads",
				ErrBatchExecuteParamsLengthMismatch, len(values), len(payloads))
		}
		if err := checkValues(attached, values); err != nil {
			return nil, err
		}

		results := make([][]byte, len(payloads))
		for i, payload := range payloads {
			result, err := k.execute(caller, values[i], payload)
			if err != nil {
				return nil, fmt.Errorf("batch call %d: %w", i, err)
			}
			results[i] = result
			k.metrics.batchedCalls.Inc()
		}
		return results, nil
	})
	k.record(executeBatchMethod, caller, nil, err)
	return results, err
}

// VerifyCall authorizes [payload] for [caller] without dispatching it. It
// is used by a profile that is called directly by one of its controllers.
// Unless [payload] writes data, the execution status is held until the
// matching VerifyCallResult, so that calls made back into the key manager
// meanwhile require REENTRANCY.
func (k *KeyManager) VerifyCall(caller common.Address, _ *uint256.Int, payload []byte) error {
	err := k.verifyCall(caller, payload)
	k.record(verifyCallMethod, caller, payload, err)
	return err
}

func (k *KeyManager) verifyCall(caller common.Address, payload []byte) error {
	if len(payload) < erc725.SelectorLen {
		return fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(payload))
	}
	release, err := k.nonReentrantBefore(caller, payload)
	if err != nil {
		return err
	}
	if err := k.verifyPermissions(caller, payload, false); err != nil {
		release()
		return err
	}
	k.releases = append(k.releases, release)
	return nil
}

// VerifyCallResult is called once the call authorized by the latest
// successful VerifyCall has returned. It releases the execution status that
// call took.
func (k *KeyManager) VerifyCallResult() {
	last := len(k.releases) - 1
	if last < 0 {
		k.log.Warn("call result without a verified call")
		return
	}
	release := k.releases[last]
	k.releases = k.releases[:last]
	release()
}

func (k *KeyManager) execute(caller common.Address, value *uint256.Int, payload []byte) ([]byte, error) {
	if len(payload) < erc725.SelectorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(payload))
	}
	release, err := k.nonReentrantBefore(caller, payload)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := k.verifyPermissions(caller, payload, false); err != nil {
		return nil, err
	}
	return k.dispatch(value, payload)
}

func (k *KeyManager) dispatch(value *uint256.Int, payload []byte) ([]byte, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	return k.profile.Dispatch(k.address, value, payload)
}

// nonReentrantBefore checks that a nested call is made by a controller with
// REENTRANCY. The returned function clears the execution status if this call
// set it. setData payloads never set the status.
func (k *KeyManager) nonReentrantBefore(caller common.Address, payload []byte) (func(), error) {
	if k.executing {
		return func() {}, k.requireReentrancy(caller)
	}
	if isSetDataPayload(payload) {
		return func() {}, nil
	}
	k.executing = true
	return func() { k.executing = false }, nil
}

func (k *KeyManager) requireReentrancy(caller common.Address) error {
	perms, err := k.store.Permissions(caller)
	if err != nil {
		return err
	}
	if !perms.Has(permissions.Reentrancy) {
		return notAuthorised(caller, permissions.Reentrancy)
	}
	return nil
}

func isSetDataPayload(payload []byte) bool {
	selector := erc725.Selector(payload)
	return selector == erc725.SetDataSelector || selector == erc725.SetDataBatchSelector
}

// atomic runs [f] and reverts the profile and the key manager journal if it
// fails.
func (k *KeyManager) atomic(f func() ([]byte, error)) ([]byte, error) {
	results, err := k.atomicBatch(func() ([][]byte, error) {
		result, err := f()
		return [][]byte{result}, err
	})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (k *KeyManager) atomicBatch(f func() ([][]byte, error)) ([][]byte, error) {
	profileSnapshot := k.profile.Snapshot()
	journalSnapshot := k.journal.snapshot()
	k.depth++
	defer func() {
		k.depth--
		if k.depth == 0 {
			k.journal.reset()
		}
	}()

	results, err := f()
	if err == nil {
		return results, nil
	}

	k.profile.RevertToSnapshot(profileSnapshot)
	if revertErr := k.journal.revertTo(journalSnapshot); revertErr != nil {
		k.log.Error("failed to revert key manager state",
			zap.Error(revertErr),
		)
		return nil, fmt.Errorf("%w (revert failed: %v)", err, revertErr)
	}
	return nil, err
}

// checkValues returns a ValueSentError unless [values] add up to [attached].
func checkValues(attached *uint256.Int, values []*uint256.Int) error {
	if attached == nil {
		attached = new(uint256.Int)
	}
	total := new(uint256.Int)
	for i, value := range values {
		if value == nil {
			continue
		}
		total.Add(total, value)
		if total.Lt(value) {
			return fmt.Errorf("%w at index %d", ErrValueOverflow, i)
		}
	}
	if !total.Eq(attached) {
		return &ValueSentError{
			Total:    total,
			Attached: new(uint256.Int).Set(attached),
		}
	}
	return nil
}

func (k *KeyManager) record(method string, caller common.Address, payload []byte, err error) {
	k.metrics.observe(method, err)
	if err != nil {
		k.log.Debug("call rejected",
			zap.String("method", method),
			zap.Stringer("caller", caller),
			zap.Binary("selector", selectorOf(payload)),
			zap.Error(err),
		)
		return
	}
	k.log.Debug("call executed",
		zap.String("method", method),
		zap.Stringer("caller", caller),
		zap.Binary("selector", selectorOf(payload)),
	)
}

func selectorOf(payload []byte) []byte {
	if len(payload) < erc725.SelectorLen {
		return payload
	}
	return payload[:erc725.SelectorLen]
}
