// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package prefixdb

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ava-labs/keymanager/database"
)

var (
	_ database.Database = (*Database)(nil)
	_ database.Batch    = (*batch)(nil)
	_ database.Iterator = (*iterator)(nil)
)

// Database partitions a database into a sub-database by prefixing all keys with
// a unique value.
type Database struct {
	// All keys in this db begin with this byte slice
	dbPrefix []byte

	// lock needs to be held during Close to guarantee db will not be set to nil
	// concurrently with another operation. All other operations can hold RLock.
	lock sync.RWMutex
	// The underlying storage
	db     database.Database
	closed bool
}

// New returns a new prefixed database
func New(prefix []byte, db database.Database) *Database {
	if prefixDB, ok := db.(*Database); ok {
		return &Database{
			dbPrefix: JoinPrefixes(prefixDB.dbPrefix, prefix),
			db:       prefixDB.db,
		}
	}
	return &Database{
		dbPrefix: MakePrefix(prefix),
		db:       db,
	}
}

// MakePrefix hashes [prefix] so that no two prefixes overlap.
func MakePrefix(prefix []byte) []byte {
	return crypto.Keccak256(prefix)
}

func JoinPrefixes(firstPrefix, secondPrefix []byte) []byte {
	return MakePrefix(PrefixKey(firstPrefix, secondPrefix))
}

func PrefixKey(prefix, key []byte) []byte {
	prefixedKey := make([]byte, len(prefix)+len(key))
	copy(prefixedKey, prefix)
	copy(prefixedKey[len(prefix):], key)
	return prefixedKey
}

func (db *Database) prefix(key []byte) []byte {
	return PrefixKey(db.dbPrefix, key)
}

func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return false, database.ErrClosed
	}
	return db.db.Has(db.prefix(key))
}

func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	return db.db.Get(db.prefix(key))
}

func (db *Database) Put(key, value []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.db.Put(db.prefix(key), value)
}

func (db *Database) Delete(key []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.db.Delete(db.prefix(key))
}

func (db *Database) NewBatch() database.Batch {
	return &batch{
		batch: db.db.NewBatch(),
		db:    db,
	}
}

func (db *Database) NewIterator() database.Iterator {
	return db.NewIteratorWithPrefix(nil)
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return &database.IteratorError{
			Err: database.ErrClosed,
		}
	}
	return &iterator{
		Iterator: db.db.NewIteratorWithPrefix(db.prefix(prefix)),
		db:       db,
	}
}

func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}
	db.closed = true
	return nil
}

func (db *Database) isClosed() bool {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return db.closed
}

func (db *Database) HealthCheck(ctx context.Context) (interface{}, error) {
	if db.isClosed() {
		return nil, database.ErrClosed
	}
	return db.db.HealthCheck(ctx)
}

// Batch of database operations
type batch struct {
	batch database.Batch
	db    *Database
}

func (b *batch) Put(key, value []byte) error {
	return b.batch.Put(b.db.prefix(key), value)
}

func (b *batch) Delete(key []byte) error {
	return b.batch.Delete(b.db.prefix(key))
}

func (b *batch) Size() int {
	return b.batch.Size()
}

func (b *batch) Write() error {
	if b.db.isClosed() {
		return database.ErrClosed
	}
	return b.batch.Write()
}

func (b *batch) Reset() {
	b.batch.Reset()
}

// iterator wraps the underlying iterator and strips the prefix from keys.
type iterator struct {
	database.Iterator
	db *Database

	err error
}

func (it *iterator) Next() bool {
	if it.db.isClosed() {
		it.err = database.ErrClosed
		return false
	}
	return it.Iterator.Next()
}

func (it *iterator) Key() []byte {
	key := it.Iterator.Key()
	if len(key) < len(it.db.dbPrefix) {
		return nil
	}
	return key[len(it.db.dbPrefix):]
}

func (it *iterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.Iterator.Error()
}
