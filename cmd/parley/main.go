package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to configuration file (defaults to PARLEY_CONFIG or ~/.config/parley/config.yaml)")
	modeFlag := flag.String("mode", "voice", "Session mode: camera, screen or voice")
	flag.Parse()

	mode, err := domain.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid --mode:", err)
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := newConsole(os.Stdout)
	services, err := bootstrap.BuildWith(cfg, console, console)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start:", err)
		return 1
	}
	defer func() {
		if err := services.Close(); err != nil {
			services.Logger.Warn("shutdown finished with errors", "error", err.Error())
		}
	}()

	services.Logger.Info("parley starting",
		"backend", cfg.Backend.URL+cfg.Backend.Path,
		"mode", string(mode),
		"config", cfg.Source,
		"metrics", services.MetricsAddr(),
	)

	if err := services.Controller.Start(ctx, mode); err != nil {
		fmt.Fprintln(os.Stderr, "failed to start session:", err)
		return 1
	}

	if err := console.Run(ctx, os.Stdin, services.Controller); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
