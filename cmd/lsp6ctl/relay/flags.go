// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/pflag"

	"github.com/ava-labs/keymanager/relay"
)

const (
	ChainIDKey    = "chain-id"
	KeyManagerKey = "key-manager"
	NonceKey      = "nonce"
	ChannelKey    = "channel"
	NotBeforeKey  = "not-before"
	NotAfterKey   = "not-after"
	ValueKey      = "value"
	PayloadKey    = "payload"
	PrivateKeyKey = "private-key"
	SignatureKey  = "signature"
)

var (
	errInvalidAddress = errors.New("invalid address")
	errInvalidNumber  = errors.New("invalid number")
)

func AddMessageFlags(flags *pflag.FlagSet) {
	flags.Uint64(ChainIDKey, 4201, "Chain ID the message is bound to")
	flags.String(KeyManagerKey, "", "Address of the key manager executing the message")
	flags.String(NonceKey, "0", "Sequence number of the signer on the channel")
	flags.String(ChannelKey, "0", "Nonce channel of the message")
	flags.Uint64(NotBeforeKey, 0, "Earliest timestamp the message may execute at")
	flags.Uint64(NotAfterKey, 0, "Latest timestamp the message may execute at. 0 leaves the window open ended")
	flags.String(ValueKey, "0", "Value the relayer attaches")
	flags.String(PayloadKey, "", "Hex encoded payload to run on the profile")
}

// MessageConfig holds a relay message and the key manager it is bound to.
type MessageConfig struct {
	KeyManager common.Address
	Message    relay.Message
}

func ParseMessageFlags(flags *pflag.FlagSet) (*MessageConfig, error) {
	chainID, err := flags.GetUint64(ChainIDKey)
	if err != nil {
		return nil, err
	}

	keyManagerStr, err := flags.GetString(KeyManagerKey)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(keyManagerStr) {
		return nil, fmt.Errorf("%w for %s: %q", errInvalidAddress, KeyManagerKey, keyManagerStr)
	}

	sequence, err := getUint256(flags, NonceKey)
	if err != nil {
		return nil, err
	}
	channel, err := getUint256(flags, ChannelKey)
	if err != nil {
		return nil, err
	}

	notBefore, err := flags.GetUint64(NotBeforeKey)
	if err != nil {
		return nil, err
	}
	notAfter, err := flags.GetUint64(NotAfterKey)
	if err != nil {
		return nil, err
	}

	value, err := getUint256(flags, ValueKey)
	if err != nil {
		return nil, err
	}

	payloadStr, err := flags.GetString(PayloadKey)
	if err != nil {
		return nil, err
	}
	payload, err := hexutil.Decode(payloadStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", PayloadKey, payloadStr, err)
	}

	validity := relay.ValidityTimestamps{
		NotBefore: notBefore,
		NotAfter:  notAfter,
	}
	return &MessageConfig{
		KeyManager: common.HexToAddress(keyManagerStr),
		Message: relay.Message{
			ChainID:            new(big.Int).SetUint64(chainID),
			Nonce:              relay.JoinNonce(channel, sequence),
			ValidityTimestamps: validity.Uint256(),
			Value:              value,
			Payload:            payload,
		},
	}, nil
}

// getUint256 reads a decimal or 0x prefixed hex number.
func getUint256(flags *pflag.FlagSet, key string) (*uint256.Int, error) {
	s, err := flags.GetString(key)
	if err != nil {
		return nil, err
	}
	b, ok := new(big.Int).SetString(s, 0)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("%w for %s: %q", errInvalidNumber, key, s)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w for %s: %q", errInvalidNumber, key, s)
	}
	return u, nil
}

func getPrivateKey(flags *pflag.FlagSet) (*ecdsa.PrivateKey, error) {
	keyStr, err := flags.GetString(PrivateKeyKey)
	if err != nil {
		return nil, err
	}
	return crypto.HexToECDSA(trimHexPrefix(keyStr))
}

func getSignature(flags *pflag.FlagSet) ([]byte, error) {
	sigStr, err := flags.GetString(SignatureKey)
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(sigStr)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
