// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package meterdb

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/keymanager/database"
	"github.com/ava-labs/keymanager/utils/wrappers"
)

const methodLabel = "method"

var (
	_ database.Database = (*Database)(nil)
	_ database.Batch    = (*batch)(nil)

	methodLabels = []string{methodLabel}
)

// Database tracks the number and latency of calls made against the wrapped
// database.
type Database struct {
	db database.Database

	calls    *prometheus.CounterVec
	duration *prometheus.GaugeVec
}

// New returns a new database with added metrics
func New(
	namespace string,
	registerer prometheus.Registerer,
	db database.Database,
) (*Database, error) {
	meterDB := &Database{
		db: db,
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls",
				Help:      "number of calls to the database",
			},
			methodLabels,
		),
		duration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "duration",
				Help:      "time spent in database calls (ns)",
			},
			methodLabels,
		),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(meterDB.calls),
		registerer.Register(meterDB.duration),
	)
	return meterDB, errs.Err
}

func (db *Database) observe(method string, start time.Time) {
	end := time.Since(start)
	labels := prometheus.Labels{methodLabel: method}
	db.calls.With(labels).Inc()
	db.duration.With(labels).Add(float64(end))
}

func (db *Database) Has(key []byte) (bool, error) {
	defer db.observe("has", time.Now())
	return db.db.Has(key)
}

func (db *Database) Get(key []byte) ([]byte, error) {
	defer db.observe("get", time.Now())
	return db.db.Get(key)
}

func (db *Database) Put(key, value []byte) error {
	defer db.observe("put", time.Now())
	return db.db.Put(key, value)
}

func (db *Database) Delete(key []byte) error {
	defer db.observe("delete", time.Now())
	return db.db.Delete(key)
}

func (db *Database) NewBatch() database.Batch {
	defer db.observe("new_batch", time.Now())
	return &batch{
		batch: db.db.NewBatch(),
		db:    db,
	}
}

func (db *Database) NewIterator() database.Iterator {
	defer db.observe("new_iterator", time.Now())
	return db.db.NewIterator()
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	defer db.observe("new_iterator", time.Now())
	return db.db.NewIteratorWithPrefix(prefix)
}

func (db *Database) Close() error {
	defer db.observe("close", time.Now())
	return db.db.Close()
}

func (db *Database) HealthCheck(ctx context.Context) (interface{}, error) {
	defer db.observe("health_check", time.Now())
	return db.db.HealthCheck(ctx)
}

type batch struct {
	batch database.Batch
	db    *Database
}

func (b *batch) Put(key, value []byte) error {
	defer b.db.observe("batch_put", time.Now())
	return b.batch.Put(key, value)
}

func (b *batch) Delete(key []byte) error {
	defer b.db.observe("batch_delete", time.Now())
	return b.batch.Delete(key)
}

func (b *batch) Size() int {
	return b.batch.Size()
}

func (b *batch) Write() error {
	defer b.db.observe("batch_write", time.Now())
	return b.batch.Write()
}

func (b *batch) Reset() {
	defer b.db.observe("batch_reset", time.Now())
	b.batch.Reset()
}
