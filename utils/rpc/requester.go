// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

var _ EndpointRequester = (*endpointRequester)(nil)

type EndpointRequester interface {
	SendRequest(ctx context.Context, method string, params interface{}, reply interface{}, options ...Option) error
}

type endpointRequester struct {
	client *http.Client
	uri    string
	base   string
}

// NewEndpointRequester returns a requester calling methods of the service
// named [base] served at [uri].
func NewEndpointRequester(uri, base string) EndpointRequester {
	return &endpointRequester{
		client: http.DefaultClient,
		uri:    uri,
		base:   base,
	}
}

func (e *endpointRequester) SendRequest(
	ctx context.Context,
	method string,
	params interface{},
	reply interface{},
	options ...Option,
) error {
	uri, err := url.Parse(e.uri)
	if err != nil {
		return err
	}
	return SendJSONRequest(
		ctx,
		e.client,
		uri,
		fmt.Sprintf("%s.%s", e.base, method),
		params,
		reply,
		options...,
	)
}
