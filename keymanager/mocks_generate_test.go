// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

//go:generate mockgen -package=${GOPACKAGE} -destination=mock_chain_context.go . ChainContext
