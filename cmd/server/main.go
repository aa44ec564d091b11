package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ytmux/api"
	"github.com/yourusername/ytmux/api/handlers"
	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/internal/domain"
	"github.com/yourusername/ytmux/internal/infrastructure"
	"github.com/yourusername/ytmux/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Run in the foreground instead of forking a daemon")
	configPath = flag.String("config", "", "Path to config file")
)

const shutdownTimeout = 30 * time.Second

func main() {
	flag.Parse()

	if !*serverMode {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "ytmux-server: %v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary in server mode, detached from the terminal
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		abs, err := filepath.Abs(*configPath)
		if err == nil {
			args = append(args, "-config", abs)
		}
	}

	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := createDirectories(config); err != nil {
		return err
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer multiLog.Close()

	log, err := logger.New(logger.Config{
		Name:       "server",
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting ytmux server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("destination_dir", config.Download.DestinationDir),
		zap.String("probe_backend", config.Tools.ProbeBackend),
		zap.Bool("parallel_fetch", config.Download.ParallelFetch))

	toolsErr := app.CheckTools(&config.Tools)
	if toolsErr != nil {
		log.Warn("External tools unavailable, downloads will fail until installed", zap.Error(toolsErr))
		multiLog.LogAppError("tools_unavailable", zap.Error(toolsErr))
	}

	repo, err := infrastructure.NewSQLiteDownloadRepository(config.Queue.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	var notifier app.Notifier
	var queueNotifier app.QueueNotifier
	if config.Notification.Enabled {
		service := infrastructure.NewNotificationService(&config.Notification, log)
		notifier = service
		queueNotifier = service
	}

	hub := app.NewProgressHub()
	orchestrator := app.NewOrchestratorFromConfig(config, log)
	downloadMgr := app.NewDownloadManager(repo, orchestrator, notifier, hub, log)

	queueMgr := app.NewQueueManager(repo, downloadMgr, &config.Queue, multiLog)
	if queueNotifier != nil {
		queueMgr.SetNotifier(queueNotifier)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Download.AutoStartWorkers {
		if err := queueMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}

	router := api.SetupRouter(api.RouterConfig{
		QueueMgr:           queueMgr,
		DownloadMgr:        downloadMgr,
		Hub:                hub,
		MultiLogger:        multiLog,
		Logger:             log,
		LogsDir:            config.Download.LogsDir,
		DefaultDestination: config.Download.DestinationDir,
		ToolsErr:           toolsErr,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-queueMgr.WaitForExit():
		log.Info("Queue manager triggered auto-exit (all downloads complete)")
	case err := <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
		runErr = fmt.Errorf("http server: %w", err)
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := queueMgr.Stop(); err != nil {
		log.Error("Error stopping queue manager", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return runErr
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.DestinationDir,
		config.Download.LogsDir,
		filepath.Dir(config.Queue.DatabasePath),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
