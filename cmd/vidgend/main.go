package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidgen/internal/artifacts"
	"vidgen/internal/credentials"
	"vidgen/internal/httpapi"
	"vidgen/internal/infra"
	"vidgen/internal/orchestrator"
	"vidgen/internal/templates"
	"vidgen/internal/videoapi"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	db, err := infra.OpenDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	credsStore, err := credentials.NewStore(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init credential store")
	}
	templateStore, err := templates.NewStore(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init template store")
	}

	client, err := videoapi.NewClient(videoapi.Options{
		Credentials:    credentials.NewSource(cfg.APIKey, credsStore),
		BaseURL:        cfg.APIBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build api client")
	}

	fileStore, err := artifacts.NewFileStore(cfg.ArtifactDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init artifact store")
	}
	fetcher, err := artifacts.NewFetcher(client, fileStore, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init artifact fetcher")
	}

	hub := httpapi.NewHub(&logger)

	orc, err := orchestrator.New(orchestrator.Options{
		API:            client,
		Downloader:     fetcher,
		Sink:           hub,
		Logger:         &logger,
		DefaultModel:   cfg.DefaultModel,
		DefaultSeconds: cfg.DefaultSeconds,
		DefaultSize:    cfg.DefaultSize,
		PollInterval:   cfg.PollInterval,
		MaxBackoff:     cfg.PollMaxBackoff,
		MaxConcurrent:  cfg.PollConcurrency,
		ListPageSize:   cfg.ListPageSize,
		RefreshPageCap: cfg.RefreshPageCap,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	// Pick up jobs submitted in earlier sessions and resume tracking the
	// ones still in flight. The daemon is useful without a reachable
	// upstream, so a failure here only logs.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := orc.RefreshAll(ctx); err != nil {
			logger.Warn().Err(err).Msg("startup job refresh failed")
		}
	}()

	app := httpapi.NewApp(orc, templateStore, hub, &logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("daemon listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	orc.Shutdown()
	logger.Info().Msg("daemon stopped")
}
