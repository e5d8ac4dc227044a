// Package application wires configuration into a ready core.Service. Both
// the server and the ddrcsv command build their dependencies here.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/ddrcsv/internal/config"
	"github.com/JonMunkholm/ddrcsv/internal/core"
	"github.com/JonMunkholm/ddrcsv/internal/docstore"
	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/store"
	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config  *config.Config
	Service *core.Service
	History core.HistoryStore

	pool *pgxpool.Pool
}

// New builds the service described by cfg. A configured database is
// connected and its history table created; a configured search index is
// pinged but an unreachable one only logs a warning.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	vs := vocab.Default()
	if cfg.Collection.VocabFile != "" {
		loaded, err := vocab.LoadFile(cfg.Collection.VocabFile)
		if err != nil {
			return nil, err
		}
		vs = loaded
	}

	var ix docstore.Indexer = docstore.Nop{}
	if cfg.Docstore.Enabled {
		es, err := docstore.NewElastic(cfg.Docstore.Hosts, cfg.Docstore.Index)
		if err != nil {
			return nil, err
		}
		if err := es.Ping(ctx); err != nil {
			slog.Warn("docstore unreachable, records will not be indexed until it returns", "error", err)
		}
		ix = es
	}

	a := &App{Config: cfg, History: core.NopHistory{}}
	if cfg.HistoryEnabled() {
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		h := core.NewPgHistory(pool)
		if err := h.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool, a.History = pool, h
	}

	st := store.New()
	im := core.NewImporter(st,
		dvcs.NewGit(cfg.Git.Binary, cfg.Git.Annex, cfg.Git.Timeout),
		vs, ix,
		core.ImporterConfig{
			Agent:       cfg.Collection.Agent,
			Templates:   cfg.Collection.EntityTemplates,
			Charset:     config.Charsets[strings.ToLower(cfg.Collection.Charset)],
			MaxFileSize: cfg.Import.MaxFileSize,
			Location:    cfg.Collection.Location(),
		})

	a.Service = core.NewService(core.ServiceConfig{
		MediaBase: cfg.Collection.MediaBase,
		LockFile:  cfg.Import.LockFile,
		Timeout:   cfg.Import.Timeout,
		Importer:  im,
		Exporter:  core.NewExporter(st, cfg.Collection.ExportDir),
		Limiter:   core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		History:   a.History,
	})
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(db.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}
