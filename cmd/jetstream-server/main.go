// Package main runs the JetStream backend: the aircraft HTTP API and the
// realtime websocket hub the trackers subscribe to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/yegors/jetstream/internal/api"
	"github.com/yegors/jetstream/internal/config"
	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/storage/sqlite"
	"github.com/yegors/jetstream/internal/websocket"
	"github.com/yegors/jetstream/pkg/logger"
)

func main() {
	var configPath string
	var logLevel string

	pflag.StringVarP(&configPath, "config", "c", "", "path to a TOML or YAML config file")
	pflag.StringVar(&logLevel, "log-level", "", "override logging.level")
	pflag.Parse()

	if err := run(configPath, logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "jetstream-server: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(configPath, logLevel string) (err error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	log = log.Named("server")

	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, db.Close())
	}()

	storage, err := sqlite.NewAircraftStorage(db, log)
	if err != nil {
		return err
	}

	hub := websocket.NewServer(websocket.Options{
		SendBufferSize: cfg.Server.WSSendBufferSize,
		WriteTimeout:   cfg.Server.WriteTimeout(),
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}, log)
	hub.SetControlHandler(func(clientID string, cmd fleet.TrackingCommand) {
		log.Info("Tracking command",
			logger.String("client_id", clientID),
			logger.String("action", string(cmd.Action)),
			logger.String("aircraft_id", cmd.AircraftID),
			logger.Int("update_interval_ms", cmd.UpdateIntervalMs),
			logger.Int("retry_attempts", cmd.RetryAttempts))
	})

	router := api.NewRouter(storage, hub, cfg, log)
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneLoop(ctx, storage, cfg.Storage, log)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Listening", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	// The hub goes first so hijacked websocket connections do not hold up Shutdown
	return multierr.Combine(
		hub.Close(),
		srv.Shutdown(shutdownCtx),
	)
}

// pruneLoop trims stored position history to the configured retention
func pruneLoop(ctx context.Context, storage *sqlite.AircraftStorage, cfg config.StorageConfig, log *logger.Logger) {
	ticker := time.NewTicker(cfg.PruneInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := storage.PrunePositions(cfg.PositionRetention)
			if err != nil {
				log.Error("Failed to prune positions", logger.Error(err))
				continue
			}
			if deleted > 0 {
				log.Debug("Pruned positions", logger.Int64("deleted", deleted))
			}
		}
	}
}
