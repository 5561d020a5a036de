package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/zeusync/zeusrpc/internal/config"
	"github.com/zeusync/zeusrpc/internal/injector"
)

func main() {
	app := cli.NewApp()
	app.Name = "zeusrpc-server"
	app.Usage = "Serve and publish the account service"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the YAML config file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override log.level from the config",
		},
		&cli.IntFlag{
			Name:  "port",
			Value: -1,
			Usage: "override publish.port from the config",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if port := c.Int("port"); port >= 0 {
		cfg.Publish.Port = port
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	srv, err := injector.InitializeServer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

	if err = srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	<-stopCh
	cancel()
	if err = srv.Stop(context.Background()); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}
