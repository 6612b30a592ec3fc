// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package memdb

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/keymanager/database"
)

const (
	// Name is the name of this database for database switches
	Name = "memdb"

	degree = 32
)

var (
	_ database.Database = (*Database)(nil)
	_ database.Batch    = (*batch)(nil)
	_ database.Iterator = (*iterator)(nil)
)

type entry struct {
	key   []byte
	value []byte
}

func less(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Database is an ephemeral key-value store that implements the Database
// interface. Keys are kept ordered in a btree so iteration never sorts.
type Database struct {
	lock sync.RWMutex
	db   *btree.BTreeG[entry]
}

// New returns an empty in-memory Database.
func New() *Database {
	return &Database{db: btree.NewG(degree, less)}
}

// Copy returns a Database with the same key-value pairs as db
func Copy(db *Database) (*Database, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return nil, database.ErrClosed
	}
	return &Database{db: db.db.Clone()}, nil
}

func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return database.ErrClosed
	}
	db.db = nil
	return nil
}

func (db *Database) isClosed() bool {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return db.db == nil
}

func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return false, database.ErrClosed
	}
	return db.db.Has(entry{key: key}), nil
}

func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return nil, database.ErrClosed
	}
	if e, ok := db.db.Get(entry{key: key}); ok {
		return slices.Clone(e.value), nil
	}
	return nil, database.ErrNotFound
}

func (db *Database) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return database.ErrClosed
	}
	db.put(key, value)
	return nil
}

// Assumes [db.lock] is held
func (db *Database) put(key []byte, value []byte) {
	v := slices.Clone(value)
	if v == nil {
		v = []byte{}
	}
	db.db.ReplaceOrInsert(entry{
		key:   slices.Clone(key),
		value: v,
	})
}

func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return database.ErrClosed
	}
	db.db.Delete(entry{key: key})
	return nil
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db}
}

func (db *Database) NewIterator() database.Iterator {
	return db.NewIteratorWithPrefix(nil)
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return &database.IteratorError{
			Err: database.ErrClosed,
		}
	}

	var entries []entry
	db.db.AscendGreaterOrEqual(entry{key: prefix}, func(e entry) bool {
		if !bytes.HasPrefix(e.key, prefix) {
			return false
		}
		entries = append(entries, e)
		return true
	})
	return &iterator{
		db:      db,
		entries: entries,
	}
}

func (db *Database) HealthCheck(context.Context) (interface{}, error) {
	if db.isClosed() {
		return nil, database.ErrClosed
	}
	return nil, nil
}

type batch struct {
	database.BatchOps

	db *Database
}

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	if b.db.db == nil {
		return database.ErrClosed
	}

	for _, op := range b.Ops {
		if op.Delete {
			b.db.db.Delete(entry{key: op.Key})
		} else {
			b.db.put(op.Key, op.Value)
		}
	}
	return nil
}

type iterator struct {
	db          *Database
	initialized bool
	entries     []entry
	err         error
}

func (it *iterator) Next() bool {
	// Short-circuit and set an error if the underlying database has been closed.
	if it.db.isClosed() {
		it.entries = nil
		it.err = database.ErrClosed
		return false
	}

	// If the iterator was not yet initialized, do it now
	if !it.initialized {
		it.initialized = true
		return len(it.entries) > 0
	}
	// Iterator already initialized, advance it
	if len(it.entries) > 0 {
		it.entries = it.entries[1:]
	}
	return len(it.entries) > 0
}

func (it *iterator) Error() error {
	return it.err
}

func (it *iterator) Key() []byte {
	if it.initialized && len(it.entries) > 0 {
		return slices.Clone(it.entries[0].key)
	}
	return nil
}

func (it *iterator) Value() []byte {
	if it.initialized && len(it.entries) > 0 {
		return slices.Clone(it.entries[0].value)
	}
	return nil
}

func (it *iterator) Release() {
	it.entries = nil
}
