package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/server"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel"
	"github.com/GriffinCanCode/fiberkernel/internal/manifest"
	"github.com/GriffinCanCode/fiberkernel/internal/shared/id"
)

//go:embed default.toml
var defaultManifest []byte

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fiberd:", err)
		os.Exit(1)
	}
}

func run() error {
	manifestPath := flag.String("manifest", "", "Boot manifest (TOML); the built-in demo tree if empty")
	dev := flag.Bool("dev", false, "Development logging")
	metricsAddr := flag.String("metrics", "", "Serve metrics and debug endpoints on this address")
	dump := flag.String("dump", "", "Print the job tree on exit as yaml or json")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = *metricsAddr
	}

	logger, err := logging.New(logging.FromLogConfig(cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	if *dump != "" && *dump != "yaml" && *dump != "json" {
		return fmt.Errorf("unknown dump format %q", *dump)
	}

	m, err := loadManifest(*manifestPath)
	if err != nil {
		return err
	}

	bootID := id.NewBootID()
	k, err := kernel.New(cfg,
		kernel.WithLogger(logger.Kernel(bootID.String())),
		kernel.WithBootID(bootID),
	)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	var srv *server.Server
	if cfg.Metrics.Enabled {
		srv = server.New(cfg.Metrics, k, logger)
		go func() {
			if err := srv.Run(); err != nil {
				errChan <- err
			}
		}()
	}

	l := &launcher{k: k, log: logger.Named("init"), m: m}
	if _, err := k.Boot(context.Background(), l.launch, "init"); err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-k.Done():
		logger.Info("all jobs finished")
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-errChan:
		logger.Error("debug server failed", zap.Error(runErr))
	}

	if *dump != "" {
		out, err := encodeSnapshot(k.Snapshot(), *dump)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := k.Shutdown(ctx); err != nil {
		logger.Warn("kernel shutdown incomplete", zap.Error(err))
	}
	if srv != nil {
		if err := srv.Close(ctx); err != nil {
			logger.Warn("debug server close failed", zap.Error(err))
		}
	}
	return runErr
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		return manifest.Parse(defaultManifest)
	}
	return manifest.Load(path)
}
