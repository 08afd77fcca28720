package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagglehome/gagglehome/pkg/auth"
	"github.com/gagglehome/gagglehome/pkg/blog"
	"github.com/gagglehome/gagglehome/pkg/themes"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan // Wait for a signal
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			break
		}

		if action == actionRestart {
			baseLogger.Info("--- Server Restarting ---")
			continue
		} else {
			break
		}
	}

	baseLogger.Info("GaggleHome has shut down.")
}

// run is the main loop that hosts both servers, and returns whenever the server is shutdown or restarted
func run(actionChan chan string) (string, error) {

	cm, err := NewConfigManager("./config.json")
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	var logLevel slog.Level
	switch strings.ToLower(config.Server.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...", "version", Version)

	for _, dir := range []string{config.Server.DataDir, config.Server.MediaDir} {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	if err = blog.SetupSchema(db); err != nil {
		logger.Error("Failed to setup blog schema", "error", err)
	}
	if err = themes.SetupSchema(db); err != nil {
		logger.Error("Failed to setup themes schema", "error", err)
	}
	if err = auth.SetupSchema(db); err != nil {
		logger.Error("Failed to setup auth schema", "error", err)
	}

	server, err := NewServer(cm, logger, db, actionChan)
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	// Background work for this cycle: asset watching and session pruning.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	importCtx, importCancel := context.WithTimeout(bgCtx, 30*time.Second)
	if n, err := server.themeStore.ImportDir(importCtx, config.Server.ThemesDir); err != nil {
		logger.Error("Theme import failed", "dir", config.Server.ThemesDir, "error", err)
	} else if n > 0 {
		logger.Info("Imported theme definitions", "count", n, "dir", config.Server.ThemesDir)
	}
	importCancel()

	if config.Server.WatchAssets {
		go func() {
			if err := server.assetStore.Watch(bgCtx, server.shell); err != nil {
				logger.Error("Asset watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				if n, err := server.authStore.PruneSessions(bgCtx); err != nil {
					logger.Error("Session pruning failed", "error", err)
				} else if n > 0 {
					logger.Debug("Pruned expired sessions", "count", n)
				}
			}
		}
	}()

	siteHttpServer := &http.Server{Addr: config.Server.ServerAddr, Handler: server.siteHandler}
	opsHttpServer := &http.Server{Addr: config.Server.OpsAddr, Handler: server.opsMux}

	go func() {
		logger.Info("Starting ops server", "address", opsHttpServer.Addr)
		if err := opsHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Ops server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting GaggleHome site server", "address", siteHttpServer.Addr)
		if err := siteHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Site server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping servers for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = opsHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Ops server shutdown failed", "error", err)
	}
	if err = siteHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Site server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")

	bgCancel()

	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}
