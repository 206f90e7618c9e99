package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carapaceos/carapaced/internal/api"
	"github.com/carapaceos/carapaced/internal/config"
	"github.com/carapaceos/carapaced/internal/ledger"
	"github.com/carapaceos/carapaced/internal/pool"
	"github.com/carapaceos/carapaced/internal/runner"
)

func main() {
	cfgPath := flag.String("config", "", "path to carapaced.yaml")
	listenOverride := flag.String("listen", "", "override the configured listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *listenOverride != "" {
		cfg.Listen = *listenOverride
	}

	if cfg.ImagePath == "" {
		logger.Error("image_path is required (config file or IMAGE_PATH env)")
		os.Exit(1)
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Error("open ledger", "error", err)
		os.Exit(1)
	}
	defer led.Close()

	newRunner := func() (*runner.Runner, error) {
		return runner.New(runner.Config{
			BaseImage:        cfg.ImagePath,
			MemoryMB:         cfg.Defaults.MemoryMB,
			SSHWaitSeconds:   cfg.Defaults.SSHWaitSeconds,
			HypervisorPath:   cfg.HypervisorPath,
			EnableAccel:      cfg.EnableAccel,
			ReuseSeedKeyPair: cfg.ReuseSeedKeyPair,
			Logger:           logger,
		})
	}

	p := pool.New(pool.Config{
		TargetSize:            cfg.Pool.TargetSize,
		MaxSize:               cfg.Pool.MaxSize,
		PerVMMemoryMB:         cfg.Defaults.MemoryMB,
		MaxWarmAge:            time.Duration(cfg.Pool.MaxWarmAgeSeconds) * time.Second,
		DefaultAcquireTimeout: time.Duration(cfg.Pool.DefaultAcquireTimeout) * time.Millisecond,
		RefillDebounce:        time.Duration(cfg.Pool.RefillDebounceMs) * time.Millisecond,
		BootRetryDelay:        time.Duration(cfg.Pool.BootRetryDelayMs) * time.Millisecond,
		NewRunner:             newRunner,
		Ledger:                led,
		Logger:                logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		logger.Error("pool start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("pool warm", "status", p.StatusLine())

	srv := api.NewServer(p, led, logger)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.MaxRunTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace()+10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx, httpServer); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.Listen)
	fmt.Fprintf(os.Stderr, "\n  carapaced ready at http://%s\n\n", cfg.Listen)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
