// Package server runs an rpc node: it builds the runtime from configuration,
// registers local services and publishes the configured one.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/zeusync/zeusrpc/internal/config"
	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/rpc"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/services/account"
)

type Server struct {
	config  *config.Config
	runtime *rpc.Runtime
	account account.Service
	logger  log.Log

	running atomic.Bool
	closed  atomic.Bool
}

// NewServer wires a server from cfg.
func NewServer(cfg *config.Config, logger log.Log) (*Server, error) {
	if logger == nil {
		var err error
		if logger, err = ProvideLogger(cfg); err != nil {
			return nil, err
		}
	}
	reg, err := ProvideRegistry(cfg)
	if err != nil {
		return nil, err
	}
	factory, err := ProvideTransportFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	runtime, err := ProvideRuntime(cfg, reg, factory, logger)
	if err != nil {
		return nil, err
	}
	return New(cfg, runtime, ProvideAccountService(cfg, logger), logger), nil
}

func New(cfg *config.Config, runtime *rpc.Runtime, accounts account.Service, logger log.Log) *Server {
	return &Server{
		config:  cfg,
		runtime: runtime,
		account: accounts,
		logger:  logger.With(log.String("component", "server")),
	}
}

// Start starts the runtime. When a service is configured for publishing it
// is registered locally and announced. A failure after registration stops
// the runtime and closes the server.
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	publish := s.config.Publish
	switch publish.Service {
	case "":
	case account.ServiceName:
		if err := account.Register(s.runtime, s.account); err != nil {
			return s.abort(err)
		}
	default:
		s.running.Store(false)
		return fmt.Errorf("%w: %q", ErrUnknownService, publish.Service)
	}

	if err := s.runtime.Start(ctx); err != nil {
		return s.abort(err)
	}

	if publish.Service != "" {
		err := s.runtime.Publish(ctx, rpc.PublishOptions{
			Service:    publish.Service,
			Host:       publish.Host,
			Broadcast:  publish.Broadcast,
			Port:       publish.Port,
			ListenHost: publish.ListenHost,
		})
		if err != nil {
			s.logger.Error("Failed to publish service", log.String("service", publish.Service), log.Error(err))
			return s.abort(err)
		}
	}

	s.logger.Info("Server started",
		log.String("transport", s.config.Transport.Kind),
		log.String("published", publish.Service),
	)
	return nil
}

func (s *Server) abort(cause error) error {
	s.closed.Store(true)
	s.running.Store(false)
	if err := s.runtime.Stop(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (s *Server) Stop(_ context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	s.closed.Store(true)

	s.logger.Info("Stopping server")
	err := s.runtime.Stop()
	s.logger.Info("Server stopped")
	return err
}

// Accounts returns the account service: the local one when this node serves
// it, a remote stub otherwise.
func (s *Server) Accounts() account.Service {
	return account.Bind(s.runtime, account.ServiceName)
}

func (s *Server) Runtime() *rpc.Runtime {
	return s.runtime
}

func (s *Server) Addr() string {
	return s.runtime.Transport().Addr()
}

type Stats struct {
	Running   bool
	Services  int
	Transport transport.Stats
}

func (s *Server) GetStats() Stats {
	return Stats{
		Running:   s.running.Load(),
		Services:  s.runtime.Table().Len(),
		Transport: s.runtime.Transport().Stats(),
	}
}
