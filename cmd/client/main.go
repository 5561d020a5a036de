package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zeusync/zeusrpc/internal/config"
	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/injector"
	"github.com/zeusync/zeusrpc/internal/services/account"
)

func main() {
	app := cli.NewApp()
	app.Name = "zeusrpc-client"
	app.Usage = "Create account sessions through a remote account service"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the YAML config file",
		},
		&cli.StringFlag{
			Name:  "account-addr",
			Usage: "host:port of the account service, added to the static registry",
		},
		&cli.Uint64Flag{
			Name:     "uid",
			Required: true,
			Usage:    "account id to create the session for",
		},
		&cli.StringFlag{
			Name:  "device",
			Value: "cli",
			Usage: "device id",
		},
		&cli.StringFlag{
			Name:  "platform",
			Value: "linux",
			Usage: "device platform",
		},
		&cli.IntFlag{
			Name:  "count",
			Value: 1,
			Usage: "number of sessions to create",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Value: time.Second,
			Usage: "pause between calls",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Second,
			Usage: "deadline of a single call",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return err
		}
	}
	cfg.Publish.Service = ""
	if addr := c.String("account-addr"); addr != "" {
		if cfg.Registry.Services == nil {
			cfg.Registry.Services = make(map[string]string)
		}
		cfg.Registry.Services[account.ServiceName] = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	node, err := injector.InitializeServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = node.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = node.Stop(context.Background()) }()

	logger := log.Provide().With(log.String("component", "client"))
	accounts := node.Accounts()
	req := &account.CreateSessionReq{
		Device: account.Device{ID: c.String("device"), Platform: c.String("platform")},
		UID:    c.Uint64("uid"),
	}

	for i := 0; i < c.Int("count"); i++ {
		if i > 0 {
			select {
			case <-time.After(c.Duration("interval")):
			case <-ctx.Done():
				return nil
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
		session, err := accounts.CreateSession(callCtx, req)
		cancel()
		if err != nil {
			logger.Error("Create session failed", log.Int("attempt", i+1), log.Error(err))
			continue
		}
		logger.Info("Session created",
			log.String("token", session.Token),
			log.Uint64("uid", session.UID),
			log.Any("expires_at", session.ExpiresAt),
		)
		fmt.Println(session.Token)
	}
	return nil
}
