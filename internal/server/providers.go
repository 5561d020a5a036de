package server

import (
	"fmt"

	"github.com/zeusync/zeusrpc/internal/config"
	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/registry"
	"github.com/zeusync/zeusrpc/internal/core/rpc"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/core/transport/quic"
	"github.com/zeusync/zeusrpc/internal/core/transport/websocket"
	"github.com/zeusync/zeusrpc/internal/services/account"
)

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (log.Log, error) {
	opts := log.DefaultOptions(log.ParseLevel(cfg.Log.Level))
	opts.Format = cfg.Log.Format
	if len(cfg.Log.Outputs) > 0 {
		opts.Outputs = cfg.Log.Outputs
	}
	return log.NewWithOptions(opts)
}

// ProvideRegistry builds the registry selected by registry.kind. The static
// one loads the registry file first, then inline entries; the nats one gets
// the inline entries written to its bucket.
func ProvideRegistry(cfg *config.Config) (registry.Registry, error) {
	switch cfg.Registry.Kind {
	case config.RegistryNATS:
		return provideNATSRegistry(cfg)
	case config.RegistryStatic, "":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegistry, cfg.Registry.Kind)
	}

	reg := registry.NewMemoryRegistry()
	if cfg.Registry.File != "" {
		loaded, err := registry.LoadFile(cfg.Registry.File)
		if err != nil {
			return nil, fmt.Errorf("load registry file: %w", err)
		}
		reg = loaded
	}
	for name, addr := range cfg.Registry.Services {
		if err := reg.Set(name, addr); err != nil {
			return nil, fmt.Errorf("registry entry %q: %w", name, err)
		}
	}
	return reg, nil
}

func provideNATSRegistry(cfg *config.Config) (registry.Registry, error) {
	nc := registry.DefaultNATSConfig()
	nc.URL = cfg.Registry.NATS.URL
	if cfg.Registry.NATS.Bucket != "" {
		nc.Bucket = cfg.Registry.NATS.Bucket
	}
	nc.TTL = cfg.Registry.NATS.TTL

	reg, err := registry.DialNATS(nc)
	if err != nil {
		return nil, err
	}
	for name, addr := range cfg.Registry.Services {
		if err := reg.Set(name, addr); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("registry entry %q: %w", name, err)
		}
	}
	return reg, nil
}

// ProvideTransportFactory selects the transport implementation by kind.
func ProvideTransportFactory(cfg *config.Config, logger log.Log) (transport.Factory, error) {
	tc := transport.Config{
		DialTimeout:   cfg.Transport.DialTimeout,
		SendQueueSize: cfg.Transport.SendQueueSize,
		MaxPayload:    cfg.Transport.MaxPayload,
	}

	switch cfg.Transport.Kind {
	case config.TransportTCP:
		return transport.TCPFactory(tc, logger), nil
	case config.TransportQUIC:
		qc := quic.DefaultConfig()
		qc.MaxIdleTimeout = cfg.Transport.QUIC.MaxIdleTimeout
		qc.KeepAlivePeriod = cfg.Transport.QUIC.KeepAlivePeriod
		return quic.Factory(tc, qc, logger)
	case config.TransportWebSocket:
		return websocket.Factory(tc, cfg.Transport.WebSocket.Path, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport.Kind)
	}
}

// ProvideRuntime assembles a Runtime from its collaborators.
func ProvideRuntime(cfg *config.Config, reg registry.Registry, factory transport.Factory, logger log.Log) (*rpc.Runtime, error) {
	return rpc.NewRuntime(rpc.Options{
		Registry:          reg,
		Transport:         factory,
		Workers:           cfg.Workers.Size,
		WorkerQueue:       cfg.Workers.Queue,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		Logger:            logger,
	})
}

// ProvideAccountService builds the in-memory account service.
func ProvideAccountService(cfg *config.Config, logger log.Log) account.Service {
	return account.NewMemoryService(cfg.Account.SessionTTL, logger)
}
