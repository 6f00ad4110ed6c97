package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payvault.org/internal/config"
	"payvault.org/internal/httpapi"
	"payvault.org/internal/obs"
	"payvault.org/internal/payroll"
	"payvault.org/internal/store/pg"
	"payvault.org/internal/stream"
)

// Заполняются через -ldflags при сборке релиза.
var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}

	obs.SetLevel(cfg.LogLevel)

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	st := stream.New()

	// Хранилище: Postgres при заданном DSN, иначе in-memory.
	var (
		svc   payroll.Service
		probe httpapi.ReadyProbe
		pgs   *pg.Store
	)
	if cfg.DatabaseURL != "" {
		pgs, err = pg.Open(cfg.DatabaseURL, pg.WithNotifier(st))
		if err != nil {
			obs.Logger().Fatal().Err(err).Msg("open postgres store")
		}
		svc = pgs
		probe = httpapi.ReadyProbe{DB: pgs.DB()}
	} else {
		svc = payroll.NewInMemory(payroll.WithNotifier(st))
		obs.Logger().Warn().Msg("no PAYVAULT_DATABASE_URL set, using in-memory vault")
	}

	api := httpapi.New(probe, version, svc, st)
	api.SetRateLimit(cfg.RatePerSec, cfg.RateBurst)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout нулевой: /v1/payroll/stream держит соединение открытым.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	obs.Logger().Info().
		Str("version", version).
		Str("addr", srv.Addr).
		Msg("starting payvault-api")

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger().Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Logger().Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgs != nil {
		_ = pgs.Close()
	}
	obs.Logger().Info().Msg("stopped")
}
