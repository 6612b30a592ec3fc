// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	ConfigFileKey           = "config-file"
	ChainIDKey              = "chain-id"
	KeyManagerAddressKey    = "key-manager-address"
	ProfileAddressKey       = "profile-address"
	BootstrapControllerKey  = "bootstrap-controller"
	SignatureRecovererKey   = "signature-recoverer"
	DBTypeKey               = "db-type"
	DBPathKey               = "db-dir"
	LogsDirKey              = "log-dir"
	LogLevelKey             = "log-level"
	LogDisplayLevelKey      = "log-display-level"
	LogFormatKey            = "log-format"
	LogDisableDisplayingKey = "log-disable-display-plugin-logs"
	HTTPHostKey             = "http-host"
	HTTPPortKey             = "http-port"
	HTTPAllowedOriginsKey   = "http-allowed-origins"
	HTTPThrottleLimitKey    = "http-throttle-limit"
	MetricsNamespaceKey     = "metrics-namespace"
)
