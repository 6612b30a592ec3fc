// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package permissions implements the 256-bit permission bitmask granted to
// each controller of a profile.
package permissions

import (
	"errors"
	"fmt"
	"strings"
)

// Permission is the index of a single bit of a permission Set.
type Permission uint8

const (
	ChangeOwner Permission = iota
	AddController
	EditPermissions
	AddExtensions
	ChangeExtensions
	AddUniversalReceiverDelegate
	ChangeUniversalReceiverDelegate
	Reentrancy
	SuperTransferValue
	TransferValue
	SuperCall
	Call
	SuperStaticCall
	StaticCall
	SuperDelegateCall
	DelegateCall
	Deploy
	SuperSetData
	SetData
	Encrypt
	Decrypt
	Sign
	ExecuteRelayCall
	ERC1271Sign

	numPermissions
)

var (
	ErrUnknownPermission = errors.New("unknown permission")

	names = [numPermissions]string{
		ChangeOwner:                     "CHANGEOWNER",
		AddController:                   "ADDCONTROLLER",
		EditPermissions:                 "EDITPERMISSIONS",
		AddExtensions:                   "ADDEXTENSIONS",
		ChangeExtensions:                "CHANGEEXTENSIONS",
		AddUniversalReceiverDelegate:    "ADDUNIVERSALRECEIVERDELEGATE",
		ChangeUniversalReceiverDelegate: "CHANGEUNIVERSALRECEIVERDELEGATE",
		Reentrancy:                      "REENTRANCY",
		SuperTransferValue:              "SUPER_TRANSFERVALUE",
		TransferValue:                   "TRANSFERVALUE",
		SuperCall:                       "SUPER_CALL",
		Call:                            "CALL",
		SuperStaticCall:                 "SUPER_STATICCALL",
		StaticCall:                      "STATICCALL",
		SuperDelegateCall:               "SUPER_DELEGATECALL",
		DelegateCall:                    "DELEGATECALL",
		Deploy:                          "DEPLOY",
		SuperSetData:                    "SUPER_SETDATA",
		SetData:                         "SETDATA",
		Encrypt:                         "ENCRYPT",
		Decrypt:                         "DECRYPT",
		Sign:                            "SIGN",
		ExecuteRelayCall:                "EXECUTE_RELAY_CALL",
		ERC1271Sign:                     "ERC1271_SIGN",
	}

	byName = func() map[string]Permission {
		m := make(map[string]Permission, numPermissions)
		for p, name := range names {
			m[name] = Permission(p)
		}
		return m
	}()
)

// Pair couples a SUPER_ permission with its allow-list restricted variant.
type Pair struct {
	Super Permission
	Plain Permission
}

var (
	TransferValuePair = Pair{Super: SuperTransferValue, Plain: TransferValue}
	CallPair          = Pair{Super: SuperCall, Plain: Call}
	StaticCallPair    = Pair{Super: SuperStaticCall, Plain: StaticCall}
	DelegateCallPair  = Pair{Super: SuperDelegateCall, Plain: DelegateCall}
	SetDataPair       = Pair{Super: SuperSetData, Plain: SetData}
)

// Defined returns every named permission in bit order.
func Defined() []Permission {
	ps := make([]Permission, numPermissions)
	for i := range ps {
		ps[i] = Permission(i)
	}
	return ps
}

func (p Permission) String() string {
	if p < numPermissions {
		return names[p]
	}
	return fmt.Sprintf("PERMISSION_%d", uint8(p))
}

// Set returns the Set holding only [p].
func (p Permission) Set() Set {
	return Combine(p)
}

// Parse returns the permission named [name]. Matching ignores case.
func Parse(name string) (Permission, error) {
	p, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPermission, name)
	}
	return p, nil
}
