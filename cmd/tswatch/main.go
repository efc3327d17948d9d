package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/tswatch/internal/companion"
	"github.com/danmuck/tswatch/internal/config"
	"github.com/danmuck/tswatch/internal/logging"
	"github.com/danmuck/tswatch/internal/monitor"
	"github.com/danmuck/tswatch/internal/observability"
	"github.com/danmuck/tswatch/internal/query"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the configuration file")
	consoleHost := flag.String("server", "localhost", "admin console host")
	consolePort := flag.Int("port", 25639, "admin console port")
	metricsAddr := flag.String("metrics", "", "optional metrics listen address")
	flag.Parse()

	logging.ConfigureRuntime()

	if err := run(*configPath, fmt.Sprintf("%s:%d", *consoleHost, *consolePort), *metricsAddr); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(configPath, consoleAddr, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info().Msg("interrupt received, stopping")
		cancel()
		<-sigCh
		log.Info().Msg("second interrupt, forcing exit")
		os.Exit(137)
	}()

	if metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(metricsAddr, observability.Handler()); err != nil {
				log.Error().Err(err).Str("addr", metricsAddr).Msg("metrics listener failed")
			}
		}()
	}

	session, err := query.Connect(ctx, consoleAddr, cfg.Server.Timeout())
	if err != nil {
		return fmt.Errorf("connect admin console: %w", err)
	}
	defer session.Close()
	if err := session.Login(ctx, cfg.APIKey); err != nil {
		return err
	}

	player, err := companion.Dial(ctx, cfg.Companion.Addr, cfg.Companion.Password, cfg.Server.Timeout())
	if err != nil {
		return fmt.Errorf("connect companion console: %w", err)
	}
	defer player.Close()

	log.Info().Str("console", consoleAddr).Str("companion", cfg.Companion.Addr).Msg("connected")
	return monitor.New(cfg, session, player).Run(ctx)
}
