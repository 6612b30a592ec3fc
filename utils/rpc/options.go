// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"net/http"
	"net/url"
)

type Option func(*Options)

type Options struct {
	headers         http.Header
	queryParams     url.Values
	expectedHeaders map[string]string
}

func NewOptions(ops []Option) *Options {
	o := &Options{
		headers:         http.Header{},
		queryParams:     url.Values{},
		expectedHeaders: make(map[string]string),
	}
	o.applyOptions(ops)
	return o
}

func (o *Options) applyOptions(ops []Option) {
	for _, op := range ops {
		op(o)
	}
}

func (o *Options) Headers() http.Header {
	return o.headers
}

func (o *Options) QueryParams() url.Values {
	return o.queryParams
}

// ExpectedHeaders are the response headers a reply must carry, keyed by
// canonical header name.
func (o *Options) ExpectedHeaders() map[string]string {
	return o.expectedHeaders
}

func WithHeader(key, val string) Option {
	return func(o *Options) {
		o.headers.Set(key, val)
	}
}

func WithQueryParam(key, val string) Option {
	return func(o *Options) {
		o.queryParams.Set(key, val)
	}
}

// WithExpectedHeader rejects responses whose [key] header is not [val].
func WithExpectedHeader(key, val string) Option {
	return func(o *Options) {
		o.expectedHeaders[http.CanonicalHeaderKey(key)] = val
	}
}
