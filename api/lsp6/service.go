// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package lsp6 serves a key manager and the profile it controls over
// JSON-RPC.
package lsp6

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/rpc/v2"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ava-labs/keymanager/api"
	"github.com/ava-labs/keymanager/keymanager"
	"github.com/ava-labs/keymanager/permissions"
	"github.com/ava-labs/keymanager/profile"
	"github.com/ava-labs/keymanager/utils/logging"

	cjson "github.com/ava-labs/keymanager/utils/json"
)

const ServiceName = "lsp6"

var (
	errNegativeAmount = errors.New("amount is negative")
	errAmountTooLarge = errors.New("amount does not fit in 256 bits")
)

// Service is the API service of a key manager. Callers named in the
// arguments are trusted: the service plays the role of the chain submitting
// their transactions.
type Service struct {
	log     logging.Logger
	lock    sync.Mutex
	km      *keymanager.KeyManager
	profile *profile.Profile
	chain   *profile.SimulatedChain
}

// NewService returns a new key manager API handler.
func NewService(
	log logging.Logger,
	km *keymanager.KeyManager,
	p *profile.Profile,
	chain *profile.SimulatedChain,
) (http.Handler, error) {
	server := rpc.NewServer()
	codec := cjson.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	return server, server.RegisterService(&Service{
		log:     log,
		km:      km,
		profile: p,
		chain:   chain,
	}, ServiceName)
}

// GetTargetReply are the addresses the service manages.
type GetTargetReply struct {
	KeyManager   common.Address `json:"keyManager"`
	Profile      common.Address `json:"profile"`
	Owner        common.Address `json:"owner"`
	PendingOwner common.Address `json:"pendingOwner"`
}

func (s *Service) GetTarget(_ *http.Request, _ *struct{}, reply *GetTargetReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getTarget"),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	reply.KeyManager = s.km.Address()
	reply.Profile = s.km.Target()
	reply.Owner = s.profile.Owner()
	reply.PendingOwner = s.profile.PendingOwner()
	return nil
}

type GetNonceArgs struct {
	Signer  common.Address `json:"signer"`
	Channel *hexutil.Big   `json:"channel"`
}

type GetNonceReply struct {
	Nonce *hexutil.Big `json:"nonce"`
}

func (s *Service) GetNonce(_ *http.Request, args *GetNonceArgs, reply *GetNonceReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getNonce"),
		zap.Stringer("signer", args.Signer),
	)

	channel, err := toUint256(args.Channel)
	if err != nil {
		return fmt.Errorf("invalid channel: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	nonce, err := s.km.GetNonce(args.Signer, channel)
	if err != nil {
		return err
	}
	reply.Nonce = (*hexutil.Big)(nonce.ToBig())
	return nil
}

type GetNoncesReply struct {
	Nonces []*hexutil.Big `json:"nonces"`
}

// GetNonces returns the next nonce of every channel [Address] has used.
func (s *Service) GetNonces(_ *http.Request, args *api.JSONAddress, reply *GetNoncesReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getNonces"),
		zap.Stringer("signer", args.Address),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	nonces, err := s.km.GetNonces(args.Address)
	if err != nil {
		return err
	}
	reply.Nonces = make([]*hexutil.Big, len(nonces))
	for i, nonce := range nonces {
		reply.Nonces[i] = (*hexutil.Big)(nonce.ToBig())
	}
	return nil
}

type ControllerArgs struct {
	Controller common.Address `json:"controller"`
}

type GetPermissionsReply struct {
	Permissions permissions.Set `json:"permissions"`
	Names       []string        `json:"names"`
}

func (s *Service) GetPermissions(_ *http.Request, args *ControllerArgs, reply *GetPermissionsReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getPermissions"),
		zap.Stringer("controller", args.Controller),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	perms, err := s.km.Store().Permissions(args.Controller)
	if err != nil {
		return err
	}
	reply.Permissions = perms
	reply.Names = permissionNames(perms)
	return nil
}

type GetControllerReply struct {
	Controller      common.Address  `json:"controller"`
	Permissions     permissions.Set `json:"permissions"`
	Names           []string        `json:"names"`
	AllowedCalls    []string        `json:"allowedCalls"`
	AllowedDataKeys []hexutil.Bytes `json:"allowedDataKeys"`
}

func (s *Service) GetController(_ *http.Request, args *ControllerArgs, reply *GetControllerReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getController"),
		zap.Stringer("controller", args.Controller),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	record, err := s.km.Store().Controller(args.Controller)
	if err != nil {
		return err
	}
	reply.Controller = record.Address
	reply.Permissions = record.Permissions
	reply.Names = permissionNames(record.Permissions)
	reply.AllowedCalls = make([]string, len(record.AllowedCalls))
	for i, entry := range record.AllowedCalls {
		reply.AllowedCalls[i] = entry.String()
	}
	reply.AllowedDataKeys = make([]hexutil.Bytes, len(record.AllowedDataKeys))
	for i, prefix := range record.AllowedDataKeys {
		reply.AllowedDataKeys[i] = prefix
	}
	return nil
}

func (s *Service) GetControllers(_ *http.Request, _ *struct{}, reply *api.JSONAddresses) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getControllers"),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	controllers, err := s.km.Store().Controllers()
	if err != nil {
		return err
	}
	reply.Addresses = controllers
	return nil
}

type GetDataArgs struct {
	Keys []common.Hash `json:"keys"`
}

type GetDataReply struct {
	Values []hexutil.Bytes `json:"values"`
}

func (s *Service) GetData(_ *http.Request, args *GetDataArgs, reply *GetDataReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getData"),
		zap.Int("numKeys", len(args.Keys)),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	values, err := s.profile.GetDataBatch(args.Keys)
	if err != nil {
		return err
	}
	reply.Values = make([]hexutil.Bytes, len(values))
	for i, value := range values {
		reply.Values[i] = value
	}
	return nil
}

func (s *Service) VerifyCall(_ *http.Request, args *api.CallArgs, reply *api.SuccessResponse) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "verifyCall"),
		zap.Stringer("caller", args.Caller),
	)

	value, err := toUint256(args.Value)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.km.VerifyCall(args.Caller, value, args.Payload); err != nil {
		return err
	}
	// nothing is dispatched, release the call right away
	s.km.VerifyCallResult()
	reply.Success = true
	return nil
}

type IsValidSignatureArgs struct {
	Hash      common.Hash   `json:"hash"`
	Signature hexutil.Bytes `json:"signature"`
}

type IsValidSignatureReply struct {
	Valid      bool          `json:"valid"`
	MagicValue hexutil.Bytes `json:"magicValue"`
}

func (s *Service) IsValidSignature(_ *http.Request, args *IsValidSignatureArgs, reply *IsValidSignatureReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "isValidSignature"),
		zap.Stringer("hash", args.Hash),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	magic := s.km.IsValidSignature(args.Hash, args.Signature)
	reply.Valid = magic == keymanager.ERC1271MagicValue
	reply.MagicValue = magic[:]
	return nil
}

// Execute runs a payload through the key manager as if [Caller] had sent it.
func (s *Service) Execute(_ *http.Request, args *api.CallArgs, reply *api.ResultReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "execute"),
		zap.Stringer("caller", args.Caller),
	)

	value, err := toUint256(args.Value)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	result, err := s.km.Execute(args.Caller, value, args.Payload)
	if err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	reply.Result = result
	return nil
}

type ExecuteBatchArgs struct {
	Caller   common.Address  `json:"caller"`
	Value    *hexutil.Big    `json:"value"`
	Values   []*hexutil.Big  `json:"values"`
	Payloads []hexutil.Bytes `json:"payloads"`
}

func (s *Service) ExecuteBatch(_ *http.Request, args *ExecuteBatchArgs, reply *api.ResultsReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "executeBatch"),
		zap.Stringer("caller", args.Caller),
		zap.Int("numPayloads", len(args.Payloads)),
	)

	attached, err := toUint256(args.Value)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	values, err := toUint256s(args.Values)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	results, err := s.km.ExecuteBatch(args.Caller, attached, values, toBytes(args.Payloads))
	if err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	reply.Results = fromBytes(results)
	return nil
}

type ExecuteRelayCallArgs struct {
	Relayer            common.Address `json:"relayer"`
	Signature          hexutil.Bytes  `json:"signature"`
	Nonce              *hexutil.Big   `json:"nonce"`
	ValidityTimestamps *hexutil.Big   `json:"validityTimestamps"`
	Value              *hexutil.Big   `json:"value"`
	Payload            hexutil.Bytes  `json:"payload"`
}

func (s *Service) ExecuteRelayCall(_ *http.Request, args *ExecuteRelayCallArgs, reply *api.ResultReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "executeRelayCall"),
		zap.Stringer("relayer", args.Relayer),
	)

	nums, err := toUint256s([]*hexutil.Big{args.Nonce, args.ValidityTimestamps, args.Value})
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	result, err := s.km.ExecuteRelayCall(args.Relayer, keymanager.RelayCall{
		Signature:          args.Signature,
		Nonce:              nums[0],
		ValidityTimestamps: nums[1],
		Value:              nums[2],
		Payload:            args.Payload,
	})
	if err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	reply.Result = result
	return nil
}

type ExecuteRelayCallBatchArgs struct {
	Relayer            common.Address  `json:"relayer"`
	Value              *hexutil.Big    `json:"value"`
	Signatures         []hexutil.Bytes `json:"signatures"`
	Nonces             []*hexutil.Big  `json:"nonces"`
	ValidityTimestamps []*hexutil.Big  `json:"validityTimestamps"`
	Values             []*hexutil.Big  `json:"values"`
	Payloads           []hexutil.Bytes `json:"payloads"`
}

func (s *Service) ExecuteRelayCallBatch(_ *http.Request, args *ExecuteRelayCallBatchArgs, reply *api.ResultsReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "executeRelayCallBatch"),
		zap.Stringer("relayer", args.Relayer),
		zap.Int("numCalls", len(args.Payloads)),
	)

	attached, err := toUint256(args.Value)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	nonces, err := toUint256s(args.Nonces)
	if err != nil {
		return err
	}
	validities, err := toUint256s(args.ValidityTimestamps)
	if err != nil {
		return err
	}
	values, err := toUint256s(args.Values)
	if err != nil {
		return err
	}
	calls, err := keymanager.NewRelayCalls(toBytes(args.Signatures), nonces, validities, values, toBytes(args.Payloads))
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	results, err := s.km.ExecuteRelayCallBatch(args.Relayer, attached, calls)
	if err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	reply.Results = fromBytes(results)
	return nil
}

// commit persists the profile writes of a successful call.
func (s *Service) commit() error {
	if err := s.profile.Finalise(); err != nil {
		s.log.Error("failed to commit profile data",
			zap.Error(err),
		)
		return fmt.Errorf("couldn't commit profile data: %w", err)
	}
	return nil
}

type GetBalanceReply struct {
	Balance *hexutil.Big `json:"balance"`
}

func (s *Service) GetBalance(_ *http.Request, args *api.JSONAddress, reply *GetBalanceReply) error {
	s.log.Debug("API called",
		zap.String("service", ServiceName),
		zap.String("method", "getBalance"),
		zap.Stringer("address", args.Address),
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	reply.Balance = (*hexutil.Big)(s.chain.Balance(args.Address).ToBig())
	return nil
}

func permissionNames(perms permissions.Set) []string {
	ps := perms.Permissions()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.String()
	}
	return names
}

func toUint256(v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	b := (*big.Int)(v)
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", errNegativeAmount, b)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s", errAmountTooLarge, b)
	}
	return u, nil
}

func toUint256s(vs []*hexutil.Big) ([]*uint256.Int, error) {
	us := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		u, err := toUint256(v)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %d: %w", i, err)
		}
		us[i] = u
	}
	return us, nil
}

func toBytes(bs []hexutil.Bytes) [][]byte {
	out := make([][]byte, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}

func fromBytes(bs [][]byte) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}
