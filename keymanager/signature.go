// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ava-labs/keymanager/permissions"
)

var (
	// ERC1271MagicValue is returned for signatures of controllers with SIGN.
	ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}
	// ERC1271FailValue is returned for every other signature.
	ERC1271FailValue = [4]byte{0xff, 0xff, 0xff, 0xff}
)

// IsValidSignature implements ERC1271 on behalf of the profile: [signature]
// is valid iff it was produced over [hash] by a controller holding SIGN.
// Malformed signatures are reported as invalid rather than as errors.
func (k *KeyManager) IsValidSignature(hash common.Hash, signature []byte) [4]byte {
	valid := k.isValidSignature(hash, signature)
	k.metrics.signatureHits.WithLabelValues(strconv.FormatBool(valid)).Inc()
	if valid {
		return ERC1271MagicValue
	}
	return ERC1271FailValue
}

func (k *KeyManager) isValidSignature(hash common.Hash, signature []byte) bool {
	signer, err := k.recoverer.Recover(hash, signature)
	if err != nil {
		k.log.Debug("failed to recover ERC1271 signer",
			zap.Stringer("hash", hash),
			zap.Error(err),
		)
		return false
	}
	perms, err := k.store.Permissions(signer)
	if err != nil {
		k.log.Warn("failed to read signer permissions",
			zap.Stringer("signer", signer),
			zap.Error(err),
		)
		return false
	}
	return perms.Has(permissions.Sign)
}
