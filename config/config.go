// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/keymanager/database/factory"
	"github.com/ava-labs/keymanager/database/leveldb"
	"github.com/ava-labs/keymanager/database/memdb"
	"github.com/ava-labs/keymanager/relay"
	"github.com/ava-labs/keymanager/utils/logging"
	"github.com/ava-labs/keymanager/utils/wrappers"
)

const (
	AppName = "lsp6"

	envPrefix = "LSP6"

	defaultChainID   = 4201
	defaultHTTPPort  = 9650
	defaultNamespace = "lsp6"
)

var (
	homeDir         = os.ExpandEnv("$HOME")
	prefixedAppName = fmt.Sprintf(".%s", AppName)
	defaultDataDir  = filepath.Join(homeDir, prefixedAppName)
	defaultDBDir    = filepath.Join(defaultDataDir, "db")
	defaultLogDir   = filepath.Join(defaultDataDir, "logs")

	errInvalidChainID       = errors.New("chain id must be positive")
	errInvalidAddress       = errors.New("invalid address")
	errZeroKeyManager       = errors.New("key manager address must be set")
	errZeroProfile          = errors.New("profile address must be set")
	errSameAddress          = errors.New("key manager and profile addresses must differ")
	errUnknownDBType        = errors.New("unknown db type")
	errMissingDBPath        = errors.New("db path must be set for persistent databases")
	errInvalidLogDisplayLvl = errors.New("invalid log display level")
	errNegativeThrottle     = errors.New("throttle limit must not be negative")
)

// Config is everything needed to serve a key manager.
type Config struct {
	ChainID           *big.Int       `json:"chainID"`
	KeyManagerAddress common.Address `json:"keyManagerAddress"`
	ProfileAddress    common.Address `json:"profileAddress"`
	// BootstrapController is granted every permission when the profile has
	// no controllers yet. The zero address disables bootstrapping.
	BootstrapController common.Address `json:"bootstrapController"`
	// SignatureRecoverer names the relay.Recoverer used to recover relay
	// and ERC1271 signers.
	SignatureRecoverer string `json:"signatureRecoverer"`

	DatabaseConfig factory.DatabaseConfig `json:"databaseConfig"`
	LoggingConfig  logging.Config         `json:"loggingConfig"`

	HTTPHost           string   `json:"httpHost"`
	HTTPPort           uint16   `json:"httpPort"`
	HTTPAllowedOrigins []string `json:"httpAllowedOrigins"`
	// HTTPThrottleLimit is the number of requests served per second. 0
	// disables throttling.
	HTTPThrottleLimit int `json:"httpThrottleLimit"`

	MetricsNamespace string `json:"metricsNamespace"`
}

// Verify returns the first problem found in [c].
func (c *Config) Verify() error {
	errs := wrappers.Errs{}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		errs.Add(fmt.Errorf("%w: %v", errInvalidChainID, c.ChainID))
	}
	if c.KeyManagerAddress == (common.Address{}) {
		errs.Add(errZeroKeyManager)
	}
	if c.ProfileAddress == (common.Address{}) {
		errs.Add(errZeroProfile)
	}
	if c.KeyManagerAddress == c.ProfileAddress {
		errs.Add(errSameAddress)
	}
	if _, err := relay.NewRecoverer(c.SignatureRecoverer); err != nil {
		errs.Add(err)
	}
	if c.HTTPThrottleLimit < 0 {
		errs.Add(fmt.Errorf("%w: %d", errNegativeThrottle, c.HTTPThrottleLimit))
	}
	switch c.DatabaseConfig.Name {
	case memdb.Name:
	case leveldb.Name:
		if c.DatabaseConfig.Path == "" {
			errs.Add(errMissingDBPath)
		}
	default:
		errs.Add(fmt.Errorf("%w: %q should be one of {%s, %s}",
			errUnknownDBType,
			c.DatabaseConfig.Name,
			leveldb.Name,
			memdb.Name,
		))
	}
	return errs.Err
}

// BuildFlagSet returns the complete set of flags for the key manager server
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)

	fs.String(ConfigFileKey, "", "Specifies a config file")

	// Key manager
	fs.Uint64(ChainIDKey, defaultChainID, "Chain ID relay signatures are bound to")
	fs.String(KeyManagerAddressKey, "", "Address of the key manager")
	fs.String(ProfileAddressKey, "", "Address of the profile controlled by the key manager")
	fs.String(BootstrapControllerKey, "", "Controller granted every permission if the profile has none yet")
	fs.String(SignatureRecovererKey, relay.EthRecovererName, fmt.Sprintf("Signature recovery backend. Should be one of {%s, %s}", relay.EthRecovererName, relay.CompactRecovererName))

	// Database
	fs.String(DBTypeKey, leveldb.Name, fmt.Sprintf("Database type to use. Should be one of {%s, %s}", leveldb.Name, memdb.Name))
	fs.String(DBPathKey, defaultDBDir, "Path to database directory")

	// Logging
	fs.String(LogsDirKey, defaultLogDir, "Logging directory")
	fs.String(LogLevelKey, logging.Info.String(), "The log level. Should be one of {verbo, debug, trace, info, warn, error, fatal, off}")
	fs.String(LogDisplayLevelKey, "", "The log display level. If left blank, will inherit the value of log-level. Otherwise, should be one of {verbo, debug, trace, info, warn, error, fatal, off}")
	fs.String(LogFormatKey, "auto", "The log format. Should be one of {auto, plain, colors, json}")
	fs.Bool(LogDisableDisplayingKey, false, "If true, logs are only written to files")

	// HTTP
	fs.String(HTTPHostKey, "127.0.0.1", "Address of the HTTP server")
	fs.Uint16(HTTPPortKey, defaultHTTPPort, "Port of the HTTP server")
	fs.StringSlice(HTTPAllowedOriginsKey, []string{"*"}, "Origins to allow on the HTTP port")
	fs.Int(HTTPThrottleLimitKey, 0, "Maximum number of API requests served per second. 0 disables throttling")

	// Metrics
	fs.String(MetricsNamespaceKey, defaultNamespace, "Namespace of the exported metrics")
	return fs
}

// BuildViper returns the viper environment from parsing config file from
// default search paths, the environment and [args].
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(envPrefix)
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if v.IsSet(ConfigFileKey) {
		v.SetConfigFile(os.ExpandEnv(v.GetString(ConfigFileKey)))
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// GetConfig sets attributes on a Config based on the values defined in the
// [v] environment and verifies the result.
func GetConfig(v *viper.Viper) (Config, error) {
	config := Config{
		ChainID: new(big.Int).SetUint64(v.GetUint64(ChainIDKey)),
		DatabaseConfig: factory.DatabaseConfig{
			Name: v.GetString(DBTypeKey),
			Path: os.ExpandEnv(v.GetString(DBPathKey)),
		},
		SignatureRecoverer: v.GetString(SignatureRecovererKey),
		HTTPHost:           v.GetString(HTTPHostKey),
		HTTPPort:           uint16(v.GetUint(HTTPPortKey)),
		HTTPAllowedOrigins: v.GetStringSlice(HTTPAllowedOriginsKey),
		HTTPThrottleLimit:  v.GetInt(HTTPThrottleLimitKey),
		MetricsNamespace:   v.GetString(MetricsNamespaceKey),
	}

	var err error
	config.KeyManagerAddress, err = getAddress(v, KeyManagerAddressKey)
	if err != nil {
		return Config{}, err
	}
	config.ProfileAddress, err = getAddress(v, ProfileAddressKey)
	if err != nil {
		return Config{}, err
	}
	config.BootstrapController, err = getAddress(v, BootstrapControllerKey)
	if err != nil {
		return Config{}, err
	}

	config.LoggingConfig, err = getLoggingConfig(v)
	if err != nil {
		return Config{}, err
	}
	return config, config.Verify()
}

// getAddress reads the hex address at [key]. An unset key is the zero
// address.
func getAddress(v *viper.Viper, key string) (common.Address, error) {
	s := v.GetString(key)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w for %s: %q", errInvalidAddress, key, s)
	}
	return common.HexToAddress(s), nil
}

func getLoggingConfig(v *viper.Viper) (logging.Config, error) {
	loggingConfig := logging.Config{}
	loggingConfig.Directory = os.ExpandEnv(v.GetString(LogsDirKey))
	var err error
	loggingConfig.LogLevel, err = logging.ToLevel(v.GetString(LogLevelKey))
	if err != nil {
		return loggingConfig, err
	}
	logDisplayLevel := v.GetString(LogDisplayLevelKey)
	if logDisplayLevel == "" {
		logDisplayLevel = v.GetString(LogLevelKey)
	}
	loggingConfig.DisplayLevel, err = logging.ToLevel(logDisplayLevel)
	if err != nil {
		return loggingConfig, fmt.Errorf("%w: %v", errInvalidLogDisplayLvl, err)
	}
	loggingConfig.LogFormat, err = logging.ToFormat(v.GetString(LogFormatKey), os.Stdout.Fd())
	if err != nil {
		return loggingConfig, err
	}
	loggingConfig.DisableWriterDisplaying = v.GetBool(LogDisableDisplayingKey)
	loggingConfig.MaxSize = 8
	loggingConfig.MaxFiles = 7
	loggingConfig.MaxAge = 0
	loggingConfig.Compress = false
	return loggingConfig, nil
}
