// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package factory

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/keymanager/database"
	"github.com/ava-labs/keymanager/database/leveldb"
	"github.com/ava-labs/keymanager/database/memdb"
	"github.com/ava-labs/keymanager/database/meterdb"
	"github.com/ava-labs/keymanager/utils/logging"
)

type DatabaseConfig struct {
	// Path to database
	Path string `json:"path"`

	// Name of the database type to use
	Name string `json:"name"`
}

// NewDatabase creates a new database instance based on the provided
// configuration and wraps it with a meter DB registered under [namespace].
func NewDatabase(
	dbConfig DatabaseConfig,
	registerer prometheus.Registerer,
	logger logging.Logger,
	namespace string,
) (database.Database, error) {
	var (
		db  database.Database
		err error
	)
	switch dbConfig.Name {
	case leveldb.Name:
		db, err = leveldb.New(dbConfig.Path, logger)
		if err != nil {
			return nil, err
		}
	case memdb.Name:
		db = memdb.New()
	default:
		return nil, fmt.Errorf(
			"db-type was %q but should have been one of {%s, %s}",
			dbConfig.Name,
			leveldb.Name,
			memdb.Name,
		)
	}

	meterDB, err := meterdb.New(namespace, registerer, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create meterdb: %w", err)
	}
	return meterDB, nil
}
