//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/zeusrpc/internal/config"
	"github.com/zeusync/zeusrpc/internal/server"
)

func InitializeServer(cfg *config.Config) (*server.Server, error) {
	wire.Build(
		server.ProvideLogger,
		server.ProvideRegistry,
		server.ProvideTransportFactory,
		server.ProvideRuntime,
		server.ProvideAccountService,
		server.New,
	)
	return nil, nil
}
