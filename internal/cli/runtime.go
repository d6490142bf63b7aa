package cli

import (
	"database/sql"
	"fmt"

	"vidgen/internal/artifacts"
	"vidgen/internal/credentials"
	"vidgen/internal/infra"
	"vidgen/internal/jobstore"
	"vidgen/internal/orchestrator"
	"vidgen/internal/templates"
	"vidgen/internal/videoapi"
)

// runtime is the composition root each command builds on demand: config,
// logger, local database, API client, and orchestrator, wired the same way
// the daemon wires them.
type runtime struct {
	cfg    *infra.Config
	logger infra.Logger
	db     *sql.DB

	creds     *credentials.Store
	templates *templates.Store
	client    *videoapi.Client
	orc       *orchestrator.Orchestrator
}

// newRuntime builds the full stack. sink may be nil when a command does not
// care about live job updates.
func newRuntime(sink jobstore.Sink) (*runtime, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	db, err := infra.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, db: db}

	rt.creds, err = credentials.NewStore(db)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.templates, err = templates.NewStore(db)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.client, err = videoapi.NewClient(videoapi.Options{
		Credentials:    credentials.NewSource(cfg.APIKey, rt.creds),
		BaseURL:        cfg.APIBaseURL,
		Logger:         &rt.logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	fileStore, err := artifacts.NewFileStore(cfg.ArtifactDir)
	if err != nil {
		rt.Close()
		return nil, err
	}
	fetcher, err := artifacts.NewFetcher(rt.client, fileStore, &rt.logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.orc, err = orchestrator.New(orchestrator.Options{
		API:            rt.client,
		Downloader:     fetcher,
		Sink:           sink,
		Logger:         &rt.logger,
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
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close tears the stack down in reverse order. Safe on a partially built
// runtime.
func (rt *runtime) Close() {
	if rt.orc != nil {
		rt.orc.Shutdown()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			fmt.Println("warning: closing database:", err)
		}
	}
}
