// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	rpc "github.com/gorilla/rpc/v2/json2"
)

var (
	ErrThrottled          = errors.New("request throttled")
	ErrUnexpectedStatus   = errors.New("unexpected status code")
	ErrUnexpectedResponse = errors.New("response header mismatch")
)

// CleanlyCloseBody reads the whole body before closing it so the connection
// can be reused.
func CleanlyCloseBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// SendJSONRequest calls [method] at [uri] with [params] and decodes the
// result into [reply]. Responses missing a header required by [options] are
// rejected before they are decoded.
func SendJSONRequest(
	ctx context.Context,
	client *http.Client,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	options ...Option,
) error {
	ops := NewOptions(options)
	request, err := newJSONRequest(ctx, uri, method, params, ops)
	if err != nil {
		return err
	}

	//nolint:bodyclose // body is closed via CleanlyCloseBody
	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("couldn't call %s at %s: %w", method, uri.Redacted(), err)
	}
	defer CleanlyCloseBody(resp.Body)

	if err := checkResponse(resp, ops); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := rpc.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

func newJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params interface{},
	ops *Options,
) (*http.Request, error) {
	body, err := rpc.EncodeClientRequest(method, params)
	if err != nil {
		return nil, fmt.Errorf("couldn't encode %s params: %w", method, err)
	}

	target := *uri
	target.RawQuery = ops.QueryParams().Encode()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("couldn't create request to %s: %w", target.Redacted(), err)
	}
	request.Header = ops.Headers().Clone()
	request.Header.Set("Content-Type", "application/json")
	return request, nil
}

// checkResponse rejects throttled and unsuccessful responses, and responses
// that do not carry the headers the caller expects.
func checkResponse(resp *http.Response, ops *Options) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrThrottled
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	for key, expected := range ops.ExpectedHeaders() {
		if got := resp.Header.Get(key); got != expected {
			return fmt.Errorf("%w: %s is %q, expected %q", ErrUnexpectedResponse, key, got, expected)
		}
	}
	return nil
}
