// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keymanager

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/keymanager/allowedcalls"
	"github.com/ava-labs/keymanager/datakeys"
	"github.com/ava-labs/keymanager/relay"
	"github.com/ava-labs/keymanager/utils/wrappers"
)

const (
	methodLabel = "method"
	reasonLabel = "reason"
)

type metrics struct {
	calls         *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	relayedCalls  prometheus.Counter
	batchedCalls  prometheus.Counter
	signatureHits *prometheus.CounterVec
}

func newMetrics(namespace string, registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls",
				Help:      "number of calls into the key manager",
			},
			[]string{methodLabel},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections",
				Help:      "number of rejected calls by reason",
			},
			[]string{methodLabel, reasonLabel},
		),
		relayedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_calls",
			Help:      "number of relay calls that passed signature, nonce and validity checks",
		}),
		batchedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batched_calls",
			Help:      "number of sub-calls dispatched as part of a batch",
		}),
		signatureHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signature_checks",
				Help:      "number of ERC1271 signature checks by result",
			},
			[]string{"valid"},
		),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(m.calls),
		registerer.Register(m.rejections),
		registerer.Register(m.relayedCalls),
		registerer.Register(m.batchedCalls),
		registerer.Register(m.signatureHits),
	)
	return m, errs.Err
}

func (m *metrics) observe(method string, err error) {
	m.calls.WithLabelValues(method).Inc()
	if err != nil {
		m.rejections.WithLabelValues(method, reason(err)).Inc()
	}
}

// reasonErrs are checked in order, so more specific errors come first.
var reasonErrs = []struct {
	err    error
	reason string
}{
	{ErrNotAuthorised, "not_authorised"},
	{ErrNoPermissionsSet, "no_permissions_set"},
	{ErrNoCallsAllowed, "no_calls_allowed"},
	{ErrNotAllowedCall, "not_allowed_call"},
	{ErrNoERC725YDataKeysAllowed, "no_data_keys_allowed"},
	{ErrNotAllowedERC725YDataKey, "not_allowed_data_key"},
	{ErrNotRecognisedPermissionKey, "not_recognised_permission_key"},
	{ErrDelegateCallDisallowedViaKeyManager, "delegate_call"},
	{ErrCallingKeyManagerNotAllowed, "calling_key_manager"},
	{allowedcalls.ErrInvalidEncodedAllowedCalls, "invalid_allowed_calls"},
	{datakeys.ErrInvalidEncodedAllowedERC725YDataKeys, "invalid_allowed_data_keys"},
	{ErrInvalidDataValuesForDataKeys, "invalid_data_value"},
	{ErrInvalidRelayNonce, "invalid_relay_nonce"},
	{relay.ErrRelayCallBeforeStartTime, "relay_before_start"},
	{relay.ErrRelayCallExpired, "relay_expired"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrInsufficientValueSent, "insufficient_value"},
	{ErrExcessiveValueSent, "excessive_value"},
	{ErrInvalidPayload, "invalid_payload"},
	{ErrInvalidERC725Function, "invalid_function"},
}

func reason(err error) string {
	for _, r := range reasonErrs {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
