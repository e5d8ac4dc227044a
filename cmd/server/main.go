package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/ddrcsv/internal/application"
	"github.com/JonMunkholm/ddrcsv/internal/config"
	"github.com/JonMunkholm/ddrcsv/internal/core"
	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/inbox"
	"github.com/JonMunkholm/ddrcsv/internal/logging"
	"github.com/JonMunkholm/ddrcsv/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logOut, closeLog, err := logging.Output(cfg.Logging.File)
	if err != nil {
		slog.Error("failed to open log file", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, logOut)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"media_base", cfg.Collection.MediaBase,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"history", cfg.HistoryEnabled(),
		"docstore", cfg.Docstore.Enabled,
		"inbox", cfg.Inbox.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	service := app.Service

	server := web.NewServer(service, cfg)

	// Background jobs stop when jobCtx is cancelled.
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	if cfg.HistoryEnabled() {
		go core.StartHistoryScheduler(jobCtx, app.History, core.PurgeConfig{
			RetentionDays: cfg.History.RetentionDays,
			CheckInterval: cfg.History.CheckInterval,
		})
	}

	inboxDone := make(chan struct{})
	if cfg.Inbox.Enabled {
		w := inbox.New(inbox.Config{
			Dir:    cfg.Inbox.Dir,
			Settle: cfg.Inbox.Settle,
			Retry:  cfg.Inbox.Retry,
			Actor:  dvcs.Actor{Name: cfg.Inbox.GitName, Email: cfg.Inbox.GitMail},
		}, service)
		go func() {
			defer close(inboxDone)
			if err := w.Run(jobCtx); err != nil {
				slog.Error("inbox stopped", "error", err)
			}
		}()
	} else {
		close(inboxDone)
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		select {
		case <-inboxDone:
		case <-shutdownCtx.Done():
		}

		if st := service.Limiter().Status(); st.Active > 0 {
			slog.Info("waiting for imports to complete", "active", st.Active)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		app.Close()
		closeLog()
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("shutdown complete")
}
