// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// This file contains structs used in arguments and responses in services

// EmptyReply indicates that an api doesn't have a response to return.
type EmptyReply struct{}

// SuccessResponse indicates success of an API call
type SuccessResponse struct {
	Success bool `json:"success"`
}

// JSONAddress contains an address
type JSONAddress struct {
	Address common.Address `json:"address"`
}

// JSONAddresses contains a list of addresses
type JSONAddresses struct {
	Addresses []common.Address `json:"addresses"`
}

// CallArgs are a payload sent by [Caller] with [Value] attached.
type CallArgs struct {
	Caller  common.Address `json:"caller"`
	Value   *hexutil.Big   `json:"value"`
	Payload hexutil.Bytes  `json:"payload"`
}

// ResultReply is the return data of a single call.
type ResultReply struct {
	Result hexutil.Bytes `json:"result"`
}

// ResultsReply is the return data of every call of a batch.
type ResultsReply struct {
	Results []hexutil.Bytes `json:"results"`
}
