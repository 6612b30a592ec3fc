// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

// journal records how to undo every state change the key manager makes
// outside of the profile.
type journal struct {
	undos []func() error
}

func (j *journal) append(undo func() error) {
	j.undos = append(j.undos, undo)
}

func (j *journal) snapshot() int {
	return len(j.undos)
}

// revertTo undoes every change made after [snapshot] in reverse order.
func (j *journal) revertTo(snapshot int) error {
	var firstErr error
	for i := len(j.undos) - 1; i >= snapshot; i-- {
		if err := j.undos[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	j.undos = j.undos[:snapshot]
	return firstErr
}

func (j *journal) reset() {
	j.undos = nil
}
