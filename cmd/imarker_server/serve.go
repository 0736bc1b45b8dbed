package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OCAP2/interactive-markers/internal/api"
	"github.com/OCAP2/interactive-markers/internal/config"
	"github.com/OCAP2/interactive-markers/internal/feedback"
	"github.com/OCAP2/interactive-markers/internal/influx"
	"github.com/OCAP2/interactive-markers/internal/logging"
	"github.com/OCAP2/interactive-markers/internal/monitor"
	intOtel "github.com/OCAP2/interactive-markers/internal/otel"
	"github.com/OCAP2/interactive-markers/internal/registry"
	"github.com/OCAP2/interactive-markers/internal/storage"
	"github.com/OCAP2/interactive-markers/internal/transport/websocket"
	"github.com/OCAP2/interactive-markers/internal/worker"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

const (
	gracefulTimeout      = 30 * time.Second
	serverRequestTimeout = 10 * time.Second
	serverReadTimeout    = 10 * time.Second
	serverIdleTimeout    = 60 * time.Second
	statusInterval       = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the marker server",
		Long: `Start the marker server. Settings are read from ` + config.FileName + ` in
--config-dir; every key has a default, so the file is optional.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on (overrides server.address)")
	if err := viper.BindPFlag("server.address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	return cmd
}

// checkOrigin allows the listed origins; "*" allows any. With no list the
// upgrader's same-origin check applies.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func feedbackOptions(cfg config.FeedbackConfig) []feedback.Option {
	var opts []feedback.Option
	if cfg.BufferSize > 0 {
		opts = append(opts, feedback.Buffered(cfg.BufferSize))
		if cfg.Blocking {
			opts = append(opts, feedback.Blocking())
		}
	}
	if cfg.Logged {
		opts = append(opts, feedback.Logged())
	}
	return opts
}

func openLogFile(logsDir string, sessionStart time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.LogFilePath(logsDir, serverName, sessionStart)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}
	return f, path, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	sessionStart := time.Now()

	configDir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return err
	}
	cfgErr := config.Load(configDir)

	logsDir := viper.GetString("logsDir")
	logLevel := viper.GetString("logLevel")
	logFile, logPath, err := openLogFile(logsDir, sessionStart)
	if err != nil {
		return err
	}
	defer logFile.Close()

	serverCfg := config.GetServerConfig()
	storageCfg := config.GetStorageConfig()
	namespace := serverCfg.TopicNamespace

	// metrics are always collected; log export follows the otel section
	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		Metrics:      true,
		SetGlobal:    true,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}

	slogManager := logging.NewSlogManager()
	setupOpts := []logging.SetupOption{
		logging.WithSession(
			slog.String("namespace", namespace),
			slog.String("storage", storageCfg.Type),
		),
	}
	if graylogCfg := config.GetGraylogConfig(); graylogCfg.Enabled {
		setupOpts = append(setupOpts, logging.WithGraylog(graylogCfg.Address))
	}
	slogManager.Setup(io.MultiWriter(os.Stdout, logFile), logLevel, otelProvider.LoggerProvider(), setupOpts...)
	logger := slogManager.Logger()
	slog.SetDefault(logger)
	defer slogManager.Close()

	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", cfgErr)
	} else {
		logger.Info("Loaded config", "dir", configDir)
	}
	logger.Info("Begin logging in logs directory", "path", logPath, "version", Version)

	// storage
	backend, err := storage.NewBackend(storageCfg, namespace, logging.NewComponentLogger(logFile, "storage", logLevel))
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	// registry and transport
	reg, err := registry.New(registry.WithLogger(logger.With("component", "registry")))
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}
	wsServer := websocket.New(websocket.Config{
		SendQueueSize: serverCfg.SendQueueSize,
		WriteTimeout:  serverCfg.WriteTimeout,
		CheckOrigin:   checkOrigin(serverCfg.AllowedOrigins),
	}, logger.With("component", "websocket"))
	reg.SetTransport(wsServer)
	slogManager.BindSeq(reg)

	dispatcher, err := feedback.New(reg,
		logging.NewDispatcherLogger(logging.NewComponentLogger(logFile, "feedback", logLevel)),
		feedbackOptions(config.GetFeedbackConfig())...)
	if err != nil {
		return fmt.Errorf("create feedback dispatcher: %w", err)
	}
	defer dispatcher.Close()

	wsServer.OnSubscribe(func(clientID string) {
		if err := reg.FullSync(context.Background(), clientID); err != nil {
			logger.Warn("Full sync failed", "client", clientID, "error", err)
		}
	})
	wsServer.OnFeedback(func(fb core.Feedback) {
		if err := dispatcher.Dispatch(fb); err != nil {
			logger.Warn("Feedback not delivered", "client", fb.ClientID, "marker", fb.MarkerName, "error", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// publish statistics
	deps := worker.Dependencies{
		Registry: reg,
		Logger:   logger.With("component", "worker"),
	}
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		influxManager := influx.NewManager(
			logging.NewComponentLogger(logFile, "influx", logLevel),
			namespace,
			filepath.Join(logsDir, "influx_backup.log.gzip"),
		)
		if err := influxManager.Connect(ctx, influxCfg); err != nil {
			logger.Error("Failed to connect to InfluxDB", "error", err)
		} else {
			deps.Stats = influxManager
			defer func() {
				if err := influxManager.Close(); err != nil {
					logger.Error("Failed to close InfluxDB", "error", err)
				}
			}()
		}
	}

	workers := worker.NewManager(deps, backend)
	restored, err := workers.Restore(ctx)
	if err != nil {
		return err
	}
	logger.Info("Restored marker snapshot", "markers", restored)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		workers.RunPublisher(ctx, serverCfg.PublishInterval)
	}()
	go func() {
		defer wg.Done()
		workers.RunSnapshots(ctx, storageCfg.SnapshotInterval)
	}()

	monitorService := monitor.NewService(monitor.Dependencies{
		Registry:      reg,
		Transport:     wsServer,
		WorkerManager: workers,
		Namespace:     namespace,
		StatusFile:    filepath.Join(logsDir, serverName+".status.json"),
		Logger:        logger.With("component", "monitor"),
	})
	if err := monitorService.Start(statusInterval); err != nil {
		logger.Error("Failed to start status monitor", "error", err)
	}
	defer monitorService.Stop()

	router := api.NewServer(reg, wsServer, monitorService,
		api.WithNamespace(namespace),
		api.WithRequestTimeout(serverRequestTimeout),
		api.WithMetricsHandler(otelProvider.MetricsHandler()),
		api.WithLogger(logger.With("component", "api")),
	)
	server := &http.Server{
		Addr:              serverCfg.Address,
		Handler:           router,
		ReadHeaderTimeout: serverReadTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", "address", serverCfg.Address, "namespace", namespace)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := wsServer.Close(); err != nil && !errors.Is(err, websocket.ErrClosed) {
		logger.Error("WebSocket shutdown failed", "error", err)
	}
	wg.Wait()

	if err := workers.SaveSnapshot(shutdownCtx); err != nil {
		logger.Error("Final snapshot failed", "error", err)
	} else {
		logger.Info("Saved final snapshot", "markers", reg.Size(), "seq", reg.Seq())
	}

	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("OTel shutdown failed", "error", err)
	}
	return runErr
}
