package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"payvault.org/internal/config"
	"payvault.org/internal/keeper"
	"payvault.org/internal/obs"
	"payvault.org/internal/payroll/remote"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	obs.SetLevel(cfg.LogLevel)

	client, err := remote.New(cfg.APIURL)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("dial payroll api")
	}

	obs.Logger().Info().
		Str("version", version).
		Str("api_url", cfg.APIURL).
		Dur("poll_interval", cfg.PollInterval).
		Msg("starting payvault-keeper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := keeper.New(client, cfg.PollInterval).Run(ctx); err != nil && err != context.Canceled {
		obs.Logger().Fatal().Err(err).Msg("keeper stopped")
	}
	obs.Logger().Info().Msg("stopped")
}
