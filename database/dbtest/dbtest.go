// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dbtest holds the conformance tests every database.Database
// implementation must pass.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/keymanager/database"
)

// Tests is a list of all database tests
var Tests = map[string]func(t *testing.T, db database.Database){
	"SimpleKeyValue":       TestSimpleKeyValue,
	"KeyEmptyValue":        TestKeyEmptyValue,
	"SimpleKeyValueClosed": TestSimpleKeyValueClosed,
	"BatchPut":             TestBatchPut,
	"BatchDelete":          TestBatchDelete,
	"BatchReset":           TestBatchReset,
	"Iterator":             TestIterator,
	"IteratorPrefix":       TestIteratorPrefix,
	"MemorySafety":         TestMemorySafetyDatabase,
}

// TestSimpleKeyValue tests to make sure that simple Put + Get + Delete + Has
// calls return the expected values.
func TestSimpleKeyValue(t *testing.T, db database.Database) {
	require := require.New(t)

	key := []byte("hello")
	value := []byte("world")

	has, err := db.Has(key)
	require.NoError(err)
	require.False(has)

	_, err = db.Get(key)
	require.ErrorIs(err, database.ErrNotFound)

	require.NoError(db.Delete(key))
	require.NoError(db.Put(key, value))

	has, err = db.Has(key)
	require.NoError(err)
	require.True(has)

	v, err := db.Get(key)
	require.NoError(err)
	require.Equal(value, v)

	require.NoError(db.Delete(key))

	has, err = db.Has(key)
	require.NoError(err)
	require.False(has)

	_, err = db.Get(key)
	require.ErrorIs(err, database.ErrNotFound)
}

func TestKeyEmptyValue(t *testing.T, db database.Database) {
	require := require.New(t)

	key := []byte("hello")
	val := []byte(nil)

	_, err := db.Get(key)
	require.ErrorIs(err, database.ErrNotFound)

	require.NoError(db.Put(key, val))

	value, err := db.Get(key)
	require.NoError(err)
	require.Empty(value)
}

// TestSimpleKeyValueClosed tests to make sure that Put + Get + Delete + Has
// calls return the correct error when the database has been closed.
func TestSimpleKeyValueClosed(t *testing.T, db database.Database) {
	require := require.New(t)

	key := []byte("hello")
	value := []byte("world")

	require.NoError(db.Put(key, value))
	require.NoError(db.Close())

	_, err := db.Has(key)
	require.ErrorIs(err, database.ErrClosed)

	_, err = db.Get(key)
	require.ErrorIs(err, database.ErrClosed)

	require.ErrorIs(db.Put(key, value), database.ErrClosed)
	require.ErrorIs(db.Delete(key), database.ErrClosed)
	require.ErrorIs(db.Close(), database.ErrClosed)
}

// TestBatchPut tests to make sure that batched writes work as expected.
func TestBatchPut(t *testing.T, db database.Database) {
	require := require.New(t)

	key := []byte("hello")
	value := []byte("world")

	batch := db.NewBatch()
	require.NotNil(batch)

	require.NoError(batch.Put(key, value))
	require.Positive(batch.Size())

	has, err := db.Has(key)
	require.NoError(err)
	require.False(has)

	require.NoError(batch.Write())

	v, err := db.Get(key)
	require.NoError(err)
	require.Equal(value, v)
}

// TestBatchDelete tests to make sure that batched deletes work as expected.
func TestBatchDelete(t *testing.T, db database.Database) {
	require := require.New(t)

	key := []byte("hello")
	value := []byte("world")

	require.NoError(db.Put(key, value))

	batch := db.NewBatch()
	require.NoError(batch.Delete(key))
	require.NoError(batch.Write())

	has, err := db.Has(key)
	require.NoError(err)
	require.False(has)
}

// TestBatchReset tests to make sure that a batch drops un-written operations
// when it is reset.
func TestBatchReset(t *testing.T, db database.Database) {
	require := require.New(t)

	key := []byte("hello")
	value := []byte("world")

	batch := db.NewBatch()
	require.NoError(batch.Put(key, value))
	batch.Reset()
	require.Zero(batch.Size())
	require.NoError(batch.Write())

	has, err := db.Has(key)
	require.NoError(err)
	require.False(has)
}

// TestIterator tests to make sure the database iterates over the database
// contents lexicographically.
func TestIterator(t *testing.T, db database.Database) {
	require := require.New(t)

	key1 := []byte("hello1")
	value1 := []byte("world1")

	key2 := []byte("hello2")
	value2 := []byte("world2")

	require.NoError(db.Put(key2, value2))
	require.NoError(db.Put(key1, value1))

	iterator := db.NewIterator()
	defer iterator.Release()

	require.True(iterator.Next())
	require.Equal(key1, iterator.Key())
	require.Equal(value1, iterator.Value())

	require.True(iterator.Next())
	require.Equal(key2, iterator.Key())
	require.Equal(value2, iterator.Value())

	require.False(iterator.Next())
	require.Nil(iterator.Key())
	require.Nil(iterator.Value())
	require.NoError(iterator.Error())
}

// TestIteratorPrefix tests to make sure the iterator can be configured to skip
// keys missing the provided prefix.
func TestIteratorPrefix(t *testing.T, db database.Database) {
	require := require.New(t)

	key1 := []byte("hello")
	value1 := []byte("world1")

	key2 := []byte("goodbye")
	value2 := []byte("world2")

	key3 := []byte("joy")
	value3 := []byte("world3")

	require.NoError(db.Put(key1, value1))
	require.NoError(db.Put(key2, value2))
	require.NoError(db.Put(key3, value3))

	iterator := db.NewIteratorWithPrefix([]byte("h"))
	defer iterator.Release()

	require.True(iterator.Next())
	require.Equal(key1, iterator.Key())
	require.Equal(value1, iterator.Value())

	require.False(iterator.Next())
	require.NoError(iterator.Error())
}

// TestMemorySafetyDatabase ensures it is safe to modify a key after passing it
// to Database.Put and Database.Get.
func TestMemorySafetyDatabase(t *testing.T, db database.Database) {
	require := require.New(t)

	key := []byte("1key")
	keyCopy := []byte("1key")
	value := []byte("value")
	key2 := []byte("2key")
	value2 := []byte("value2")

	require.NoError(db.Put(key, value))
	key[0] = '2'
	require.NoError(db.Put(key, value2))

	gotVal, err := db.Get(keyCopy)
	require.NoError(err)
	require.Equal(value, gotVal)

	gotVal, err = db.Get(key2)
	require.NoError(err)
	require.Equal(value2, gotVal)

	gotVal[0] = 'x'
	gotVal, err = db.Get(key2)
	require.NoError(err)
	require.Equal(value2, gotVal)
}
