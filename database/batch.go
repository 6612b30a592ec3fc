// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import "golang.org/x/exp/slices"

const (
	// If, when a batch is reset, the cap(batch)/len(batch) > MaxExcessCapacityFactor,
	// the underlying array's capacity will be reduced by a factor of capacityReductionFactor.
	MaxExcessCapacityFactor = 4
	CapacityReductionFactor = 2
)

type BatchOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// BatchOps buffers writes for Batch implementations that replay them against
// their host database on Write.
type BatchOps struct {
	Ops  []BatchOp
	size int
}

func (b *BatchOps) Put(key, value []byte) error {
	b.Ops = append(b.Ops, BatchOp{
		Key:   slices.Clone(key),
		Value: slices.Clone(value),
	})
	b.size += len(key) + len(value)
	return nil
}

func (b *BatchOps) Delete(key []byte) error {
	b.Ops = append(b.Ops, BatchOp{
		Key:    slices.Clone(key),
		Delete: true,
	})
	b.size += len(key)
	return nil
}

func (b *BatchOps) Size() int {
	return b.size
}

func (b *BatchOps) Reset() {
	if cap(b.Ops) > len(b.Ops)*MaxExcessCapacityFactor {
		b.Ops = make([]BatchOp, 0, cap(b.Ops)/CapacityReductionFactor)
	} else {
		b.Ops = b.Ops[:0]
	}
	b.size = 0
}

// Replay applies the buffered operations to [w] in order.
func (b *BatchOps) Replay(w KeyValueWriterDeleter) error {
	for _, op := range b.Ops {
		if op.Delete {
			if err := w.Delete(op.Key); err != nil {
				return err
			}
		} else if err := w.Put(op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}
