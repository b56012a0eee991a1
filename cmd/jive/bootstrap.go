package main

import (
	"fmt"
	"io"

	"github.com/jivehq/jive/internal/audit"
	"github.com/jivehq/jive/internal/cleanup"
	"github.com/jivehq/jive/internal/config"
	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/execution"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/mcp"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/namespace"
	"github.com/jivehq/jive/internal/search"
	"github.com/jivehq/jive/internal/syncdata"
	"github.com/jivehq/jive/internal/workitem"
)

// services bundles the server and its background loops so both transports
// share one bootstrap path.
type services struct {
	cfg       *config.Config
	server    *mcp.Server
	cleaner   *cleanup.Cleaner
	scheduler *syncdata.BackupScheduler // nil unless backup.enabled
	watcher   *syncdata.Watcher         // nil unless sync.watch
}

// buildServices loads configuration and assembles every manager behind the
// MCP server. console receives human-readable log lines; the stdio transport
// passes stderr so stdout stays protocol-clean.
func buildServices(console io.Writer) (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := logger.ParseLevel(cfg.Server.LogLevel)
	if err := logger.Init(cfg.Server.LogDir, console, level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := logger.InitSlog(cfg.Server.LogDir, console, false, level); err != nil {
		return nil, fmt.Errorf("failed to initialize structured logger: %w", err)
	}
	if err := audit.Init(cfg.Server.LogDir); err != nil {
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	logger.Info("🎷 Jive %s - agile work items for AI agents", Version)

	namespaces, err := namespace.NewManager(cfg.Database.DataPath, cfg.Namespace.Default, cfg.Namespace.AutoCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize namespaces: %w", err)
	}

	embedder := newEmbedder(cfg)
	logger.Info("🧮 Embedding model: %s (%d dimensions)", embedder.Name(), embedder.Dim())

	engine := workitem.NewEngine(embedder)
	searcher := search.NewEngine(embedder)
	executions := execution.NewManager(engine, nil, 4, 64)

	format, err := syncdata.ParseFormat(cfg.Sync.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid sync.format: %w", err)
	}
	syncer := syncdata.NewSyncer(cfg.Sync.Dir, format, embedder)

	backups, err := syncdata.NewBackups(namespaces, cfg.Backup.Dir, cfg.Backup.Retention)
	if err != nil {
		return nil, err
	}

	svc := &services{
		cfg:     cfg,
		server:  mcp.NewServer(cfg, namespaces, embedder, engine, searcher, executions, syncer, backups),
		cleaner: cleanup.New(cleanup.DefaultConfig(cfg.Database.DataPath, cfg.Server.LogDir)),
	}

	if cfg.Backup.Enabled {
		scheduler, err := syncdata.NewBackupScheduler(cfg.Backup.Schedule, backups)
		if err != nil {
			return nil, err
		}
		svc.scheduler = scheduler
	}
	if cfg.Sync.Watch {
		watcher, err := syncdata.NewWatcher(syncer, namespaces)
		if err != nil {
			return nil, err
		}
		svc.watcher = watcher
	}
	return svc, nil
}

// newEmbedder picks the configured embedder. Construction is lazy so a
// misconfigured remote endpoint fails the first search, not the boot.
func newEmbedder(cfg *config.Config) *embedding.Lazy {
	name := cfg.Database.EmbeddingModel
	if name == "azure-openai" {
		az := cfg.Embedding.Azure
		return embedding.NewLazy(name, model.EmbeddingDim, func() (embedding.Embedder, error) {
			return embedding.NewAzure(az.Endpoint, az.APIKey, az.Deployment, model.EmbeddingDim)
		})
	}
	return embedding.NewLazy(name, model.EmbeddingDim, func() (embedding.Embedder, error) {
		return embedding.NewLocal(model.EmbeddingDim), nil
	})
}

// startBackground launches the housekeeping loops the config enables.
func (s *services) startBackground() error {
	s.cleaner.Start()
	if s.scheduler != nil {
		s.scheduler.Start()
	}
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return err
		}
	}
	return nil
}

// stopBackground halts the loops in reverse start order.
func (s *services) stopBackground() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.cleaner.Stop()
}
