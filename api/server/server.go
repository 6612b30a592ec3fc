// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ava-labs/keymanager/utils/logging"
)

const (
	baseURL               = "/ext"
	serverShutdownTimeout = 10 * time.Second

	// HTTPHeaderKeyManager is set on every response to the address of the
	// key manager being served.
	HTTPHeaderKeyManager = "Key-Manager-Address"
)

var errAlreadyReserved = errors.New("route is either already aliased or already maps to a handle")

// Server maintains the HTTP router
type Server struct {
	// log this server writes to
	log logging.Logger

	lock   sync.Mutex
	router *mux.Router
	routes map[string]struct{}
	// points the the router handlers
	handler http.Handler

	// Listens for HTTP traffic on this address
	listenHost string
	listenPort uint16

	// http server
	srv *http.Server
}

// New creates the API server at the provided host and port
func New(
	log logging.Logger,
	host string,
	port uint16,
	allowedOrigins []string,
	keyManager common.Address,
	throttleLimit int,
) *Server {
	s := &Server{
		log:        log,
		router:     mux.NewRouter(),
		routes:     make(map[string]struct{}),
		listenHost: host,
		listenPort: port,
	}

	log.Info("API created",
		zap.Strings("allowedOrigins", allowedOrigins),
		zap.Int("throttleLimit", throttleLimit),
	)
	var h http.Handler = s.router
	if throttleLimit > 0 {
		h = throttleMiddleware(h, rate.NewLimiter(rate.Limit(throttleLimit), throttleLimit))
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
	}).Handler(h)
	gzipHandler := gziphandler.GzipHandler(corsHandler)
	keyManagerHex := keyManager.Hex()
	s.handler = http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HTTPHeaderKeyManager, keyManagerHex)
			gzipHandler.ServeHTTP(w, r)
		},
	)
	return s
}

// AddRoute registers [handler] at /ext/[base][endpoint].
func (s *Server) AddRoute(handler http.Handler, base, endpoint string) error {
	url := fmt.Sprintf("%s/%s%s", baseURL, base, endpoint)

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.routes[url]; exists {
		return fmt.Errorf("%w: %s", errAlreadyReserved, url)
	}
	s.log.Info("adding route",
		zap.String("url", url),
	)
	s.routes[url] = struct{}{}
	s.router.Handle(url, handler)
	return nil
}

// Dispatch starts the API server. It returns http.ErrServerClosed once
// Shutdown is called.
func (s *Server) Dispatch() error {
	listenAddress := net.JoinHostPort(s.listenHost, fmt.Sprint(s.listenPort))
	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return err
	}

	s.log.Info("HTTP API server listening",
		zap.Stringer("address", listener.Addr()),
	)

	s.lock.Lock()
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: serverShutdownTimeout,
	}
	srv := s.srv
	s.lock.Unlock()
	return srv.Serve(listener)
}

// Shutdown this server
func (s *Server) Shutdown() error {
	s.lock.Lock()
	srv := s.srv
	s.lock.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// throttleMiddleware rejects requests beyond the rate allowed by [limiter].
func throttleMiddleware(handler http.Handler, limiter *rate.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			// Doesn't matter if there's an error while writing. They'll get the StatusTooManyRequests code.
			_, _ = w.Write([]byte("API call rejected because of too many requests"))
			return
		}
		handler.ServeHTTP(w, r)
	})
}
