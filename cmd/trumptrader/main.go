// Command trumptrader is the sentiment trading bot entry point. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and runs the requested command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Mmauz1001/trump-trader/internal/app"
	"github.com/Mmauz1001/trump-trader/internal/config"
)

const usage = `usage: trumptrader [-config path] <command>

commands:
  run      poll sentiment sources and trade on their signals
  status   show account balance and the open position
  close    close the open position
  signal   submit a sentiment score manually: signal <0-10>
  test     check connectivity to the exchange, database, and telegram
`

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command := args[0]

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = application.Run(ctx)
	case "status":
		err = application.Status(ctx)
	case "close":
		err = application.CloseOpen(ctx)
	case "signal":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "signal requires a score between 0 and 10")
			os.Exit(2)
		}
		var score int
		score, err = strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid score %q\n", args[1])
			os.Exit(2)
		}
		err = application.Submit(ctx, score, "cli")
	case "test":
		err = application.Test(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down gracefully")
			return
		}
		logger.Error("command failed",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
