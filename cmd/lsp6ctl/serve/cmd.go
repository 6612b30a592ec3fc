// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/keymanager/api/lsp6"
	"github.com/ava-labs/keymanager/api/server"
	"github.com/ava-labs/keymanager/config"
	"github.com/ava-labs/keymanager/database"
	"github.com/ava-labs/keymanager/database/factory"
	"github.com/ava-labs/keymanager/database/prefixdb"
	"github.com/ava-labs/keymanager/keymanager"
	"github.com/ava-labs/keymanager/profile"
	"github.com/ava-labs/keymanager/relay"
	"github.com/ava-labs/keymanager/utils/logging"
)

const metricsEndpoint = "metrics"

var nonceDBPrefix = []byte("lsp25/nonces")

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves a key manager and its profile over JSON-RPC",
		// Flags are parsed by config.BuildViper so that they can be mixed
		// with a config file and the environment.
		DisableFlagParsing: true,
		RunE:               serveFunc,
	}
}

func serveFunc(c *cobra.Command, args []string) error {
	fs := config.BuildFlagSet()
	v, err := config.BuildViper(fs, args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	cfg, err := config.GetConfig(v)
	if err != nil {
		return err
	}

	logFactory := logging.NewFactory(cfg.LoggingConfig)
	defer logFactory.Close()

	log, err := logFactory.Make("main")
	if err != nil {
		return fmt.Errorf("couldn't create main logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, log, cfg)
}

type node struct {
	db      database.Database
	profile *profile.Profile
	km      *keymanager.KeyManager
	server  *server.Server
}

func newNode(log logging.Logger, cfg config.Config) (*node, error) {
	recoverer, err := relay.NewRecoverer(cfg.SignatureRecoverer)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	db, err := factory.NewDatabase(
		cfg.DatabaseConfig,
		registry,
		log,
		cfg.MetricsNamespace+"_db",
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't create database: %w", err)
	}

	chain := profile.NewSimulatedChain(cfg.ChainID)
	p := profile.New(cfg.ProfileAddress, cfg.KeyManagerAddress, db, chain, log)
	km, err := keymanager.New(keymanager.Config{
		Address:          cfg.KeyManagerAddress,
		Profile:          p,
		Chain:            chain,
		Nonces:           relay.NewNonceTracker(prefixdb.New(nonceDBPrefix, db)),
		Recoverer:        recoverer,
		Log:              log,
		MetricsNamespace: cfg.MetricsNamespace,
		Registerer:       registry,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	p.SetVerifier(km)

	if _, err := bootstrap(log, p, cfg.BootstrapController); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("couldn't bootstrap controller: %w", err)
	}

	handler, err := lsp6.NewService(log, km, p, chain)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("couldn't create %s service: %w", lsp6.ServiceName, err)
	}

	srv := server.New(log, cfg.HTTPHost, cfg.HTTPPort, cfg.HTTPAllowedOrigins, cfg.KeyManagerAddress, cfg.HTTPThrottleLimit)
	if err := srv.AddRoute(handler, lsp6.ServiceName, ""); err != nil {
		_ = db.Close()
		return nil, err
	}
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	if err := srv.AddRoute(metricsHandler, metricsEndpoint, ""); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &node{
		db:      db,
		profile: p,
		km:      km,
		server:  srv,
	}, nil
}

// run serves until [ctx] is cancelled or the server fails.
func run(ctx context.Context, log logging.Logger, cfg config.Config) error {
	n, err := newNode(log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.db.Close(); err != nil {
			log.Error("failed to close database",
				zap.Error(err),
			)
		}
	}()

	log.Info("serving key manager",
		zap.Stringer("keyManager", cfg.KeyManagerAddress),
		zap.Stringer("profile", cfg.ProfileAddress),
		zap.Stringer("chainID", cfg.ChainID),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := n.server.Dispatch()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		return n.server.Shutdown()
	})
	return g.Wait()
}
