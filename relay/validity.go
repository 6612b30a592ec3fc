// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrRelayCallBeforeStartTime = errors.New("relay call before start time")
	ErrRelayCallExpired         = errors.New("relay call expired")
)

// ValidityTimestamps packs the window in which a relay call may execute:
// notBefore in the upper 128 bits and notAfter in the lower 128 bits.
type ValidityTimestamps struct {
	NotBefore uint64
	NotAfter  uint64
}

// ParseValidityTimestamps splits [v]. Halves larger than a uint64 saturate
// to the largest uint64.
func ParseValidityTimestamps(v *uint256.Int) ValidityTimestamps {
	notBefore, notAfter := SplitNonce(v)
	return ValidityTimestamps{
		NotBefore: saturate(notBefore),
		NotAfter:  saturate(notAfter),
	}
}

func saturate(v *uint256.Int) uint64 {
	if v.IsUint64() {
		return v.Uint64()
	}
	return ^uint64(0)
}

// Uint256 packs the window as notBefore<<128 | notAfter.
func (v ValidityTimestamps) Uint256() *uint256.Int {
	return JoinNonce(uint256.NewInt(v.NotBefore), uint256.NewInt(v.NotAfter))
}

// Unrestricted reports whether the window never restricts a call.
func (v ValidityTimestamps) Unrestricted() bool {
	return v.NotBefore == 0 && v.NotAfter == 0
}

// Verify returns an error unless [now] lies inside the window. A notAfter of
// zero leaves the window open ended.
func (v ValidityTimestamps) Verify(now uint64) error {
	if v.Unrestricted() {
		return nil
	}
	if now < v.NotBefore {
		return fmt.Errorf("%w: now %d, not before %d", ErrRelayCallBeforeStartTime, now, v.NotBefore)
	}
	if v.NotAfter != 0 && now > v.NotAfter {
		return fmt.Errorf("%w: now %d, not after %d", ErrRelayCallExpired, now, v.NotAfter)
	}
	return nil
}

// VerifyValidityTimestamps checks the packed window [v] against [now].
func VerifyValidityTimestamps(v *uint256.Int, now uint64) error {
	return ParseValidityTimestamps(v).Verify(now)
}
