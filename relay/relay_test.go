// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	keyManagerAddr = common.HexToAddress("0x4b80742de2bf4b80742de2bf4b80742de2bf0001")
	testKeyHex     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

func TestMessageBytes(t *testing.T) {
	require := require.New(t)

	msg := &Message{
		ChainID:            big.NewInt(4201),
		Nonce:              uint256.NewInt(3),
		ValidityTimestamps: uint256.NewInt(0),
		Value:              uint256.NewInt(10),
		Payload:            []byte{0xca, 0xfe},
	}
	b, err := msg.Bytes()
	require.NoError(err)
	require.Len(b, 5*32+2)

	require.Equal(byte(LSP25Version), b[31])
	require.Zero(big.NewInt(4201).Cmp(new(big.Int).SetBytes(b[32:64])))
	require.Equal(byte(3), b[95])
	require.Equal(make([]byte, 32), b[96:128])
	require.Equal(byte(10), b[159])
	require.Equal([]byte{0xca, 0xfe}, b[160:])
}

func TestMessageBytesNilFields(t *testing.T) {
	require := require.New(t)

	_, err := (&Message{}).Bytes()
	require.ErrorIs(err, ErrNilChainID)

	_, err = (&Message{ChainID: big.NewInt(-1)}).Bytes()
	require.ErrorIs(err, ErrNegativeChainID)

	_, err = (&Message{ChainID: new(big.Int).Lsh(big.NewInt(1), 256)}).Bytes()
	require.ErrorIs(err, ErrChainIDTooLarge)

	b, err := (&Message{ChainID: big.NewInt(1)}).Bytes()
	require.NoError(err)
	require.Len(b, 5*32)
}

func TestHashWithIntendedValidator(t *testing.T) {
	require := require.New(t)

	data := []byte("payload")
	expected := crypto.Keccak256Hash(append(append([]byte{0x19, 0x00}, keyManagerAddr[:]...), data...))
	require.Equal(expected, HashWithIntendedValidator(keyManagerAddr, data))

	other := common.HexToAddress("0x01")
	require.NotEqual(expected, HashWithIntendedValidator(other, data))
}

func TestRecoverers(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	msg := &Message{
		ChainID:            big.NewInt(1),
		Nonce:              uint256.NewInt(0),
		ValidityTimestamps: uint256.NewInt(0),
		Value:              uint256.NewInt(0),
		Payload:            []byte{0x01, 0x02, 0x03, 0x04},
	}
	hash, err := msg.Hash(keyManagerAddr)
	require.NoError(t, err)
	sig, err := SignMessage(key, keyManagerAddr, msg)
	require.NoError(t, err)
	require.Contains(t, []byte{27, 28}, sig[SignatureLen-1])

	// the same signature with a 0/1 recovery id
	rawV := make([]byte, SignatureLen)
	copy(rawV, sig)
	rawV[SignatureLen-1] -= 27

	// the malleable twin: (r, n - s, v ^ 1)
	highS := make([]byte, SignatureLen)
	copy(highS, sig)
	s := new(big.Int).SetBytes(sig[32:64])
	s.Sub(crypto.S256().Params().N, s)
	s.FillBytes(highS[32:64])
	highS[SignatureLen-1] ^= 1

	badV := make([]byte, SignatureLen)
	copy(badV, sig)
	badV[SignatureLen-1] = 30

	for _, name := range []string{EthRecovererName, CompactRecovererName} {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			recoverer, err := NewRecoverer(name)
			require.NoError(err)

			addr, err := recoverer.Recover(hash, sig)
			require.NoError(err)
			require.Equal(signer, addr)

			addr, err = recoverer.Recover(hash, rawV)
			require.NoError(err)
			require.Equal(signer, addr)

			otherHash := HashWithIntendedValidator(common.HexToAddress("0x02"), msg.Payload)
			addr, err = recoverer.Recover(otherHash, sig)
			if err == nil {
				require.NotEqual(signer, addr)
			}

			_, err = recoverer.Recover(hash, sig[:64])
			require.ErrorIs(err, ErrInvalidSignatureLength)

			_, err = recoverer.Recover(hash, badV)
			require.ErrorIs(err, ErrInvalidSignatureV)

			_, err = recoverer.Recover(hash, highS)
			require.ErrorIs(err, ErrInvalidSignatureS)
		})
	}

	_, err = NewRecoverer("ledger")
	require.ErrorIs(t, err, ErrUnknownRecoverer)
}

func TestValidityTimestamps(t *testing.T) {
	const now = 10_000
	tests := []struct {
		name      string
		notBefore uint64
		notAfter  uint64
		expected  error
	}{
		{"unrestricted", 0, 0, nil},
		{"start equals now, end before start", now, now - 1000, ErrRelayCallExpired},
		{"both in the past, end before start", now - 1500, now - 2000, ErrRelayCallExpired},
		{"both in the future", now + 1000, now + 2000, ErrRelayCallBeforeStartTime},
		{"start in the future, end in the past", now + 1000, now - 1000, ErrRelayCallBeforeStartTime},
		{"start in the future, end now", now + 1000, now, ErrRelayCallBeforeStartTime},
		{"start now, end in the future", now, now + 1000, nil},
		{"both in the past", now - 1500, now - 1000, ErrRelayCallExpired},
		{"inside the window", now - 1000, now + 1500, nil},
		{"end now", now - 1000, now, nil},
		{"single second in the past", now - 100, now - 100, ErrRelayCallExpired},
		{"single second in the future", now + 100, now + 100, ErrRelayCallBeforeStartTime},
		{"single second now", now, now, nil},
		{"open ended, started", now - 100, 0, nil},
		{"open ended, not started", now + 100, 0, ErrRelayCallBeforeStartTime},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			v := ValidityTimestamps{NotBefore: test.notBefore, NotAfter: test.notAfter}
			packed := v.Uint256()
			require.Equal(v, ParseValidityTimestamps(packed))

			err := VerifyValidityTimestamps(packed, now)
			require.ErrorIs(err, test.expected)
		})
	}
}

func TestParseValidityTimestampsSaturates(t *testing.T) {
	require := require.New(t)

	v := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	parsed := ParseValidityTimestamps(v)
	require.Equal(^uint64(0), parsed.NotBefore)
	require.Zero(parsed.NotAfter)
	require.ErrorIs(parsed.Verify(1_000), ErrRelayCallBeforeStartTime)
}
