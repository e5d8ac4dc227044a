// Command ddrcsv imports and exports DDR collection metadata as CSV.
//
//	ddrcsv import -kind entities -csv batch.csv -collection ddr-test-1 -user "Jo Doe" -mail jo@example.org
//	ddrcsv import -kind files -csv files.csv -collection /var/www/media/ddr/ddr-test-1 -dry-run
//	ddrcsv export -kind entities -collection ddr-test-1 -out objects.csv
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/ddrcsv/internal/application"
	"github.com/JonMunkholm/ddrcsv/internal/config"
	"github.com/JonMunkholm/ddrcsv/internal/logging"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&importCmd{out: os.Stdout}, "")
	subcommands.Register(&exportCmd{out: os.Stdout}, "")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(int(subcommands.ExitFailure))
	}
	w, closeLog, err := logging.Output(cfg.Logging.File)
	if err != nil {
		slog.Error("failed to open log file", "error", err)
		os.Exit(int(subcommands.ExitFailure))
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, w)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(int(subcommands.ExitFailure))
	}

	status := subcommands.Execute(ctx, app)
	app.Close()
	closeLog()
	os.Exit(int(status))
}
