// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lsp6

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ava-labs/keymanager/api"
	"github.com/ava-labs/keymanager/api/server"
	"github.com/ava-labs/keymanager/utils/rpc"
)

// Endpoint is the path the service is served under.
const Endpoint = "/ext/lsp6"

var _ Client = (*client)(nil)

// WithKeyManager rejects replies served by a node fronting a key manager
// other than [keyManager].
func WithKeyManager(keyManager common.Address) rpc.Option {
	return rpc.WithExpectedHeader(server.HTTPHeaderKeyManager, keyManager.Hex())
}

// Client interface for a key manager API client
type Client interface {
	GetTarget(context.Context, ...rpc.Option) (*GetTargetReply, error)
	GetNonce(ctx context.Context, signer common.Address, channel *hexutil.Big, options ...rpc.Option) (*hexutil.Big, error)
	GetNonces(ctx context.Context, signer common.Address, options ...rpc.Option) ([]*hexutil.Big, error)
	GetPermissions(ctx context.Context, controller common.Address, options ...rpc.Option) (*GetPermissionsReply, error)
	GetController(ctx context.Context, controller common.Address, options ...rpc.Option) (*GetControllerReply, error)
	GetControllers(context.Context, ...rpc.Option) ([]common.Address, error)
	GetData(ctx context.Context, keys []common.Hash, options ...rpc.Option) ([]hexutil.Bytes, error)
	GetBalance(ctx context.Context, addr common.Address, options ...rpc.Option) (*hexutil.Big, error)
	VerifyCall(ctx context.Context, args *api.CallArgs, options ...rpc.Option) error
	IsValidSignature(ctx context.Context, hash common.Hash, signature []byte, options ...rpc.Option) (*IsValidSignatureReply, error)
	Execute(ctx context.Context, args *api.CallArgs, options ...rpc.Option) (hexutil.Bytes, error)
	ExecuteBatch(ctx context.Context, args *ExecuteBatchArgs, options ...rpc.Option) ([]hexutil.Bytes, error)
	ExecuteRelayCall(ctx context.Context, args *ExecuteRelayCallArgs, options ...rpc.Option) (hexutil.Bytes, error)
	ExecuteRelayCallBatch(ctx context.Context, args *ExecuteRelayCallBatchArgs, options ...rpc.Option) ([]hexutil.Bytes, error)
}

type client struct {
	requester rpc.EndpointRequester
}

// NewClient returns a new key manager API client
func NewClient(uri string) Client {
	return &client{requester: rpc.NewEndpointRequester(
		uri+Endpoint,
		ServiceName,
	)}
}

func (c *client) GetTarget(ctx context.Context, options ...rpc.Option) (*GetTargetReply, error) {
	res := &GetTargetReply{}
	err := c.requester.SendRequest(ctx, "getTarget", struct{}{}, res, options...)
	return res, err
}

func (c *client) GetNonce(ctx context.Context, signer common.Address, channel *hexutil.Big, options ...rpc.Option) (*hexutil.Big, error) {
	res := &GetNonceReply{}
	err := c.requester.SendRequest(ctx, "getNonce", &GetNonceArgs{
		Signer:  signer,
		Channel: channel,
	}, res, options...)
	return res.Nonce, err
}

func (c *client) GetNonces(ctx context.Context, signer common.Address, options ...rpc.Option) ([]*hexutil.Big, error) {
	res := &GetNoncesReply{}
	err := c.requester.SendRequest(ctx, "getNonces", &api.JSONAddress{
		Address: signer,
	}, res, options...)
	return res.Nonces, err
}

func (c *client) GetPermissions(ctx context.Context, controller common.Address, options ...rpc.Option) (*GetPermissionsReply, error) {
	res := &GetPermissionsReply{}
	err := c.requester.SendRequest(ctx, "getPermissions", &ControllerArgs{
		Controller: controller,
	}, res, options...)
	return res, err
}

func (c *client) GetController(ctx context.Context, controller common.Address, options ...rpc.Option) (*GetControllerReply, error) {
	res := &GetControllerReply{}
	err := c.requester.SendRequest(ctx, "getController", &ControllerArgs{
		Controller: controller,
	}, res, options...)
	return res, err
}

func (c *client) GetControllers(ctx context.Context, options ...rpc.Option) ([]common.Address, error) {
	res := &api.JSONAddresses{}
	err := c.requester.SendRequest(ctx, "getControllers", struct{}{}, res, options...)
	return res.Addresses, err
}

func (c *client) GetData(ctx context.Context, keys []common.Hash, options ...rpc.Option) ([]hexutil.Bytes, error) {
	res := &GetDataReply{}
	err := c.requester.SendRequest(ctx, "getData", &GetDataArgs{
		Keys: keys,
	}, res, options...)
	return res.Values, err
}

func (c *client) GetBalance(ctx context.Context, addr common.Address, options ...rpc.Option) (*hexutil.Big, error) {
	res := &GetBalanceReply{}
	err := c.requester.SendRequest(ctx, "getBalance", &api.JSONAddress{
		Address: addr,
	}, res, options...)
	return res.Balance, err
}

func (c *client) VerifyCall(ctx context.Context, args *api.CallArgs, options ...rpc.Option) error {
	return c.requester.SendRequest(ctx, "verifyCall", args, &api.SuccessResponse{}, options...)
}

func (c *client) IsValidSignature(ctx context.Context, hash common.Hash, signature []byte, options ...rpc.Option) (*IsValidSignatureReply, error) {
	res := &IsValidSignatureReply{}
	err := c.requester.SendRequest(ctx, "isValidSignature", &IsValidSignatureArgs{
		Hash:      hash,
		Signature: signature,
	}, res, options...)
	return res, err
}

func (c *client) Execute(ctx context.Context, args *api.CallArgs, options ...rpc.Option) (hexutil.Bytes, error) {
	res := &api.ResultReply{}
	err := c.requester.SendRequest(ctx, "execute", args, res, options...)
	return res.Result, err
}

func (c *client) ExecuteBatch(ctx context.Context, args *ExecuteBatchArgs, options ...rpc.Option) ([]hexutil.Bytes, error) {
	res := &api.ResultsReply{}
	err := c.requester.SendRequest(ctx, "executeBatch", args, res, options...)
	return res.Results, err
}

func (c *client) ExecuteRelayCall(ctx context.Context, args *ExecuteRelayCallArgs, options ...rpc.Option) (hexutil.Bytes, error) {
	res := &api.ResultReply{}
	err := c.requester.SendRequest(ctx, "executeRelayCall", args, res, options...)
	return res.Result, err
}

func (c *client) ExecuteRelayCallBatch(ctx context.Context, args *ExecuteRelayCallBatchArgs, options ...rpc.Option) ([]hexutil.Bytes, error) {
	res := &api.ResultsReply{}
	err := c.requester.SendRequest(ctx, "executeRelayCallBatch", args, res, options...)
	return res.Results, err
}
